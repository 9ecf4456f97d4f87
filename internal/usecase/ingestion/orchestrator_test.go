package ingestion

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, legalText)

	rep, err := f.orch.Run(context.Background(), doc.ID())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []domdoc.ProcessingStatus{
		domdoc.StatusPending, domdoc.StatusUploaded, domdoc.StatusExtracting, domdoc.StatusProcessing,
		domdoc.StatusChunking, domdoc.StatusIndexing, domdoc.StatusReady,
	}
	if got := f.docs.statuses(doc.ID()); !slices.Equal(got, want) {
		t.Errorf("status history = %v, want %v", got, want)
	}
	if rep.Status != domdoc.StatusReady || !rep.KeywordIndexed || rep.Chunks != 3 {
		t.Errorf("report = %+v", rep)
	}
	if rep.EmbeddingTokens == 0 {
		t.Error("expected embedding usage in report")
	}

	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if stored.ChunkCount() != 3 {
		t.Errorf("chunk count = %d, want 3", stored.ChunkCount())
	}
	scope, _ := filter.Scope([]string{doc.ID()}, "", "")
	if n, _ := f.vectors.Count(context.Background(), scope); n != 3 {
		t.Errorf("vector chunks = %d, want 3", n)
	}
	if n, _ := f.keywords.Count(context.Background(), scope); n != 3 {
		t.Errorf("keyword chunks = %d, want 3", n)
	}
	if f.locker.isHeld(doc.ID()) {
		t.Error("lock must be released after the run")
	}
}

func TestRun_ChunksCarryOverlapAndSections(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, legalText)

	if _, err := f.orch.Run(context.Background(), doc.ID()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for id, sc := range f.vectors.chunks {
		if !strings.HasPrefix(sc.chunk.Section, "SECTION ") {
			t.Errorf("%s: section = %q", id, sc.chunk.Section)
		}
		if !sc.chunk.Overlap.Applied {
			t.Errorf("%s: overlap not applied", id)
		}
		if sc.owner.UserID != "u1" || sc.owner.ThreadID != "t1" {
			t.Errorf("%s: owner = %+v", id, sc.owner)
		}
	}
}

func TestRun_KeywordFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, testConfig())
	f.keywords.indexErr = domain.ErrKeywordSearchNotSupported
	doc := f.seed(t, legalText)

	before := testutil.ToFloat64(metrics.IngestionKeywordFailuresTotal)
	rep, err := f.orch.Run(context.Background(), doc.ID())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Status != domdoc.StatusReady || rep.KeywordIndexed {
		t.Errorf("report = %+v, want ready without keywords", rep)
	}
	if got := testutil.ToFloat64(metrics.IngestionKeywordFailuresTotal) - before; got != 1 {
		t.Errorf("keyword failures delta = %v, want 1", got)
	}
}

func TestRun_VectorWriteRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	f.vectors.upsertErr = []error{errBackend, errBackend}
	doc := f.seed(t, legalText)

	rep, err := f.orch.Run(context.Background(), doc.ID())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Status != domdoc.StatusReady {
		t.Errorf("status = %s", rep.Status)
	}
	if f.vectors.calls != 3 {
		t.Errorf("upsert calls = %d, want 3", f.vectors.calls)
	}
}

func TestRun_VectorWriteExhaustedFails(t *testing.T) {
	f := newFixture(t, testConfig())
	f.vectors.upsertErr = []error{errBackend, errBackend, errBackend}
	doc := f.seed(t, legalText)

	rep, err := f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "indexing" {
		t.Errorf("expected indexing stage error, got %v", err)
	}

	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if stored.Status() != domdoc.StatusFailed || rep.Status != domdoc.StatusFailed {
		t.Errorf("status = %s / %s, want failed", stored.Status(), rep.Status)
	}
	if !strings.HasPrefix(stored.ErrorMessage(), "indexing: ") {
		t.Errorf("error message = %q", stored.ErrorMessage())
	}
}

func TestRun_QuotaExceededNotRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	f.vectors.upsertErr = []error{domain.ErrEmbeddingQuotaExceeded}
	doc := f.seed(t, legalText)

	rep, err := f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if f.vectors.calls != 1 {
		t.Errorf("upsert calls = %d, want 1", f.vectors.calls)
	}
	if rep.Status != domdoc.StatusFailed {
		t.Errorf("status = %s, want failed", rep.Status)
	}
}

func TestRun_ExtractionFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.extract.err = domain.ErrExtractionFailed
	doc := f.seed(t, legalText)

	_, err := f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}

	got := f.docs.statuses(doc.ID())
	if got[len(got)-2] != domdoc.StatusExtracting || got[len(got)-1] != domdoc.StatusFailed {
		t.Errorf("status history = %v, want ... extracting, failed", got)
	}
	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if !strings.HasPrefix(stored.ErrorMessage(), "extracting: ") {
		t.Errorf("error message = %q", stored.ErrorMessage())
	}
}

func TestRun_EmptyAfterCleaning(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, "  \n 12 \n\n- 3 -\n")

	_, err := f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if stored.Status() != domdoc.StatusFailed {
		t.Errorf("status = %s", stored.Status())
	}
}

func TestRun_DeletedMidRunStops(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, legalText)

	f.docs.beforeSave = func(d *domdoc.Document) {
		if d.Status() == domdoc.StatusChunking {
			_ = f.docs.Delete(context.Background(), d.ID())
		}
	}

	_, err := f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, domain.ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if _, err := f.docs.Get(context.Background(), doc.ID()); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("deleted document must stay deleted, got %v", err)
	}
	if got := f.docs.statuses(doc.ID()); got[len(got)-1] != domdoc.StatusProcessing {
		t.Errorf("no status may be written after deletion, history = %v", got)
	}
	if len(f.vectors.chunks) != 0 {
		t.Errorf("no chunks may be indexed after deletion, got %d", len(f.vectors.chunks))
	}
}

func TestRun_DeletedDuringIndexingPurgesChunks(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := newTestDocService(f, &mockSubmitter{})
	doc := f.seed(t, legalText)

	// удаление проходит каскадом раньше, чем прогон пишет векторы
	f.vectors.beforeUpsert = func(chunk.Owner, []chunk.Chunk) {
		f.vectors.beforeUpsert = nil
		if err := svc.Delete(context.Background(), doc.ID()); err != nil {
			t.Errorf("Delete: %v", err)
		}
	}

	rep, err := f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, domain.ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if _, err := f.docs.Get(context.Background(), doc.ID()); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("deleted document must stay deleted, got %v", err)
	}
	if n := f.vectors.size(); n != 0 {
		t.Errorf("vector chunks of a deleted document = %d, want 0", n)
	}
	if n := f.keywords.size(); n != 0 {
		t.Errorf("keyword chunks of a deleted document = %d, want 0", n)
	}
	if rep.Chunks != 0 || rep.KeywordIndexed {
		t.Errorf("report = %+v, want nothing indexed", rep)
	}
}

func TestRun_TerminalDocumentRejected(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, legalText)
	if _, err := f.orch.Run(context.Background(), doc.ID()); err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if stored.Status() != domdoc.StatusReady {
		t.Errorf("ready document changed to %s", stored.Status())
	}
}

func TestRun_LockHeld(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, legalText)
	lease, err := f.locker.Acquire(context.Background(), doc.ID(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release(context.Background()) //nolint:errcheck // test cleanup

	_, err = f.orch.Run(context.Background(), doc.ID())
	if !errors.Is(err, domain.ErrIngestionInProgress) {
		t.Fatalf("expected ErrIngestionInProgress, got %v", err)
	}
	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if stored.Status() != domdoc.StatusUploaded {
		t.Errorf("status = %s, want uploaded", stored.Status())
	}
}

func TestRun_InterruptedRunFails(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, legalText)
	stuck, _ := doc.WithStatus(domdoc.StatusExtracting, "", 3)
	if err := f.docs.Save(context.Background(), &stuck); err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.Run(context.Background(), doc.ID())
	if err == nil || !strings.Contains(err.Error(), "interrupted during extracting") {
		t.Fatalf("expected interrupted error, got %v", err)
	}
	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if stored.Status() != domdoc.StatusFailed {
		t.Errorf("status = %s, want failed", stored.Status())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, testConfig())
	doc := f.seed(t, legalText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Run(ctx, doc.ID())
	if !errors.Is(err, domain.ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	stored, _ := f.docs.Get(context.Background(), doc.ID())
	if stored.Status() != domdoc.StatusUploaded {
		t.Errorf("cancelled run must not touch the document, status = %s", stored.Status())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero ttl", func(c *Config) { c.LockTTL = 0 }, true},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, true},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, true},
		{"bad chunking", func(c *Config) { c.Chunking.OverlapSize = c.Chunking.TargetSize }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
