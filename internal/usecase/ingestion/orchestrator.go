// Package ingestion drives documents through the processing state machine:
// uploaded → extracting → processing → chunking → indexing → ready, or failed.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/metrics"
	"github.com/kailas-cloud/lexrag/internal/usecase/chunking"
)

// DefaultLockTTL bounds how long a crashed run blocks the document.
const DefaultLockTTL = 10 * time.Minute

// Run outcomes (metric label values).
const (
	outcomeReady     = "ready"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeRejected  = "rejected"
)

// Config tunes a run.
type Config struct {
	Chunking chunking.Config
	LockTTL  time.Duration
	Retry    RetryConfig
}

// DefaultConfig returns the default chunking, a 10 minute lock and 3 vector write attempts.
func DefaultConfig() Config {
	return Config{
		Chunking: chunking.DefaultConfig(),
		LockTTL:  DefaultLockTTL,
		Retry:    DefaultRetryConfig(),
	}
}

// Validate checks the chunking and retry settings.
func (c Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock ttl must be positive: %w", domain.ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d: %w", c.Retry.MaxAttempts, domain.ErrInvalidConfig)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays %s..%s: %w", c.Retry.BaseDelay, c.Retry.MaxDelay, domain.ErrInvalidConfig)
	}
	return nil
}

// Deps are the collaborators of an Orchestrator. Stitcher is optional:
// nil disables overlap.
type Deps struct {
	Documents DocumentStore
	Objects   ObjectStore
	Extractor Extractor
	Cleaner   TextCleaner
	Chunker   Chunker
	Stitcher  Stitcher
	Embedder  domain.Embedder
	Vectors   VectorWriter
	Keywords  KeywordWriter
	Locker    Locker
}

// Report summarizes one run.
type Report struct {
	DocumentID      string
	Chunks          int
	KeywordIndexed  bool
	Duration        time.Duration
	Status          domdoc.ProcessingStatus
	Error           string
	EmbeddingTokens int
}

// Orchestrator executes ingestion runs. Safe for concurrent use:
// runs of different documents proceed in parallel, runs of one document are serialized by the lock.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now, logger: logger}, nil
}

// run is the mutable state of one ingestion.
type run struct {
	doc            domdoc.Document
	start          time.Time
	chunks         int
	keywordIndexed bool
	indexStarted   bool
	usage          *domain.EmbeddingUsage
}

// Run moves an uploaded document through every stage. Each status is persisted
// before its stage starts. A document deleted mid-run aborts with ErrRunCancelled
// and nothing more is written.
func (o *Orchestrator) Run(ctx context.Context, documentID string) (Report, error) {
	ctx, usage := domain.NewContextWithUsage(ctx)
	r := &run{start: o.now(), usage: usage}
	log := o.logger.With(zap.String("document_id", documentID))

	lease, err := o.deps.Locker.Acquire(ctx, documentID, o.cfg.LockTTL)
	if err != nil {
		metrics.IngestionRunsTotal.WithLabelValues(outcomeRejected).Inc()
		return Report{DocumentID: documentID}, fmt.Errorf("lock document: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release ingestion lock", zap.Error(err))
		}
	}()

	doc, err := o.deps.Documents.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			err = fmt.Errorf("document %s: %w", documentID, domain.ErrRunCancelled)
		}
		return o.finish(ctx, r, documentID, fmt.Errorf("load document: %w", err), log)
	}
	r.doc = doc

	switch st := doc.Status(); {
	case st == domdoc.StatusUploaded:
		err = o.execute(ctx, r)
	case st.IsTerminal() || st == domdoc.StatusPending:
		metrics.IngestionRunsTotal.WithLabelValues(outcomeRejected).Inc()
		return Report{DocumentID: documentID, Status: st},
			fmt.Errorf("document %s is %s: %w", documentID, st, domain.ErrInvalidStatusTransition)
	default:
		// остаток прерванного прогона
		err = fmt.Errorf("previous run interrupted during %s", st)
	}
	return o.finish(ctx, r, documentID, err, log)
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	var text string
	err := o.stage(ctx, r, domdoc.StatusExtracting, func(ctx context.Context) error {
		data, err := o.deps.Objects.Fetch(ctx, r.doc.Locator())
		if err != nil {
			return fmt.Errorf("fetch upload: %w", err)
		}
		text, err = o.deps.Extractor.Extract(ctx, data, r.doc.MediaType())
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, r, domdoc.StatusProcessing, func(context.Context) error {
		cleaned := o.deps.Cleaner.Clean(text)
		if strings.TrimSpace(cleaned.Text) == "" {
			return domain.ErrEmptyDocument
		}
		text = cleaned.Text
		return nil
	})
	if err != nil {
		return err
	}

	var chunks []chunk.Chunk
	err = o.stage(ctx, r, domdoc.StatusChunking, func(ctx context.Context) error {
		var err error
		chunks, err = o.deps.Chunker.Chunk(ctx, r.doc.ID(), text, o.cfg.Chunking)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return domain.ErrChunkingFailed
		}
		if o.deps.Stitcher != nil {
			if chunks, err = o.deps.Stitcher.Apply(chunks, text); err != nil {
				return fmt.Errorf("apply overlap: %w", err)
			}
		}
		r.chunks = len(chunks)
		return nil
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, r, domdoc.StatusIndexing, func(ctx context.Context) error {
		r.indexStarted = true
		return o.index(ctx, r, chunks)
	})
	if err != nil {
		return err
	}

	return o.advance(ctx, r, domdoc.StatusReady)
}

// stage persists next, then runs the work of that stage.
func (o *Orchestrator) stage(
	ctx context.Context, r *run, next domdoc.ProcessingStatus, work func(ctx context.Context) error,
) error {
	if err := o.advance(ctx, r, next); err != nil {
		return err
	}

	start := o.now()
	err := work(ctx)
	metrics.IngestionStageDuration.WithLabelValues(next.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.NewStageError(next.String(), err)
	}
	return nil
}

// advance reloads the document and persists the transition to next.
func (o *Orchestrator) advance(ctx context.Context, r *run, next domdoc.ProcessingStatus) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("before %s: %w: %w", next, domain.ErrRunCancelled, err)
	}

	cur, err := o.deps.Documents.Get(ctx, r.doc.ID())
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("document deleted before %s: %w", next, domain.ErrRunCancelled)
		}
		return fmt.Errorf("reload document: %w", err)
	}

	updated, err := cur.WithStatus(next, "", o.now().UnixMilli())
	if err != nil {
		return err
	}
	if next == domdoc.StatusReady {
		updated = updated.WithChunkCount(r.chunks)
	}
	if err := o.deps.Documents.Save(ctx, &updated); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("document deleted before %s: %w", next, domain.ErrRunCancelled)
		}
		return fmt.Errorf("save status %s: %w", next, err)
	}

	r.doc = updated
	metrics.IngestionTransitionsTotal.WithLabelValues(next.String()).Inc()
	return nil
}

// index writes vectors and keywords concurrently. The vector side is required
// and retried; the keyword side is best effort.
func (o *Orchestrator) index(ctx context.Context, r *run, chunks []chunk.Chunk) error {
	owner := chunk.Owner{UserID: r.doc.UserID(), ThreadID: r.doc.ThreadID()}

	var wg sync.WaitGroup
	var vecErr, kwErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		vecErr = retry(ctx, o.cfg.Retry, func(ctx context.Context) error {
			return o.writeVectors(ctx, owner, chunks)
		})
	}()
	go func() {
		defer wg.Done()
		kwErr = o.deps.Keywords.Index(ctx, owner, chunks)
	}()
	wg.Wait()

	if kwErr != nil {
		metrics.IngestionKeywordFailuresTotal.Inc()
		o.logger.Warn("Keyword indexing failed, document stays vector-only",
			zap.String("document_id", r.doc.ID()), zap.Error(kwErr))
	}
	r.keywordIndexed = kwErr == nil

	if vecErr != nil {
		return fmt.Errorf("vector index: %w", vecErr)
	}
	return nil
}

func (o *Orchestrator) writeVectors(ctx context.Context, owner chunk.Owner, chunks []chunk.Chunk) error {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	res, err := domain.EmbedAll(ctx, o.deps.Embedder, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(res.Embeddings) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks: %w",
			len(res.Embeddings), len(chunks), domain.ErrEmbeddingProviderError)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	return o.deps.Vectors.Upsert(ctx, owner, chunks, res.Embeddings)
}

// finish records the outcome. Fatal errors move the document to failed,
// cancellations leave it as the deleter left it.
func (o *Orchestrator) finish(
	ctx context.Context, r *run, documentID string, err error, log *zap.Logger,
) (Report, error) {
	rep := Report{
		DocumentID:     documentID,
		Chunks:         r.chunks,
		KeywordIndexed: r.keywordIndexed,
		Status:         r.doc.Status(),
	}
	if r.usage != nil {
		rep.EmbeddingTokens = r.usage.TotalTokens()
	}

	switch {
	case err == nil:
		rep.Duration = time.Since(r.start)
		metrics.IngestionRunsTotal.WithLabelValues(outcomeReady).Inc()
		log.Info("Document ingested",
			zap.Int("chunks", rep.Chunks),
			zap.Bool("keyword_indexed", rep.KeywordIndexed),
			zap.Duration("duration", rep.Duration))
		return rep, nil

	case errors.Is(err, domain.ErrRunCancelled) || ctx.Err() != nil:
		if !errors.Is(err, domain.ErrRunCancelled) {
			err = fmt.Errorf("%w: %w", domain.ErrRunCancelled, err)
		}
		o.purge(ctx, r, log)
		rep.Chunks, rep.KeywordIndexed = 0, false
		rep.Duration = time.Since(r.start)
		rep.Error = err.Error()
		metrics.IngestionRunsTotal.WithLabelValues(outcomeCancelled).Inc()
		log.Info("Ingestion cancelled", zap.Error(err))
		return rep, err
	}

	if ferr := o.markFailed(ctx, r, err); ferr != nil {
		if errors.Is(ferr, domain.ErrRunCancelled) {
			o.purge(ctx, r, log)
			rep.Chunks, rep.KeywordIndexed = 0, false
			rep.Duration = time.Since(r.start)
			rep.Error = err.Error()
			metrics.IngestionRunsTotal.WithLabelValues(outcomeCancelled).Inc()
			return rep, fmt.Errorf("%w: %w", ferr, err)
		}
		log.Error("Failed to persist failed status", zap.Error(ferr))
		err = errors.Join(err, ferr)
	}

	rep.Status = r.doc.Status()
	rep.Duration = time.Since(r.start)
	rep.Error = err.Error()
	metrics.IngestionRunsTotal.WithLabelValues(outcomeFailed).Inc()
	log.Warn("Ingestion failed", zap.String("status", rep.Status.String()), zap.Error(err))
	return rep, err
}

// purge removes whatever a cancelled run may have written after the delete
// cascade already ran. Runs cancelled before indexing wrote nothing.
func (o *Orchestrator) purge(ctx context.Context, r *run, log *zap.Logger) {
	if !r.indexStarted {
		return
	}
	ctx = context.WithoutCancel(ctx)
	id := r.doc.ID()

	vecN, err := o.deps.Vectors.DeleteByDocument(ctx, id)
	if err != nil {
		log.Error("Failed to purge vectors of cancelled run", zap.Error(err))
	}
	kwN, err := o.deps.Keywords.DeleteByDocument(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrKeywordSearchNotSupported) {
		log.Error("Failed to purge keywords of cancelled run", zap.Error(err))
	}
	log.Info("Cancelled run purged",
		zap.Int("vector_chunks", vecN),
		zap.Int("keyword_chunks", kwN))
}

func (o *Orchestrator) markFailed(ctx context.Context, r *run, cause error) error {
	cur, err := o.deps.Documents.Get(ctx, r.doc.ID())
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.ErrRunCancelled
		}
		return fmt.Errorf("reload document: %w", err)
	}

	failed, err := cur.WithStatus(domdoc.StatusFailed, cause.Error(), o.now().UnixMilli())
	if err != nil {
		return err
	}
	if err := o.deps.Documents.Save(ctx, &failed); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.ErrRunCancelled
		}
		return fmt.Errorf("save failed status: %w", err)
	}

	r.doc = failed
	metrics.IngestionTransitionsTotal.WithLabelValues(domdoc.StatusFailed.String()).Inc()
	return nil
}
