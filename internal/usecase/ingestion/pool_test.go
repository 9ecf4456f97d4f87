package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

type mockRunner struct {
	runFn func(ctx context.Context, id string) (Report, error)
	calls atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context, id string) (Report, error) {
	m.calls.Add(1)
	if m.runFn != nil {
		return m.runFn(ctx, id)
	}
	return Report{DocumentID: id}, nil
}

func TestPool_ProcessesAll(t *testing.T) {
	r := &mockRunner{runFn: func(_ context.Context, id string) (Report, error) {
		if id == "bad" {
			return Report{}, errBackend
		}
		return Report{DocumentID: id}, nil
	}}
	p := NewPool(r, 3, 16, zap.NewNop())

	for _, id := range []string{"a", "b", "bad", "c"} {
		if err := p.Submit(id); err != nil {
			t.Fatalf("Submit(%s): %v", id, err)
		}
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	st := p.Stats()
	if st.Processed != 3 || st.Failed != 1 || st.Queued != 0 {
		t.Errorf("stats = %+v, want 3 processed, 1 failed", st)
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	r := &mockRunner{runFn: func(context.Context, string) (Report, error) {
		started <- struct{}{}
		<-release
		return Report{}, nil
	}}
	p := NewPool(r, 1, 1, zap.NewNop())

	if err := p.Submit("running"); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := p.Submit("queued"); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("overflow"); !errors.Is(err, domain.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := NewPool(&mockRunner{}, 1, 1, zap.NewNop())
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("late"); !errors.Is(err, domain.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	// второй Shutdown не паникует
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestPool_ShutdownTimeoutCancelsRuns(t *testing.T) {
	var cancelled atomic.Bool
	started := make(chan struct{})
	var once sync.Once
	r := &mockRunner{runFn: func(ctx context.Context, _ string) (Report, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		cancelled.Store(true)
		return Report{}, ctx.Err()
	}}
	p := NewPool(r, 1, 4, zap.NewNop())
	if err := p.Submit("slow"); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !cancelled.Load() {
		t.Error("in-flight run must observe cancellation")
	}
	if p.Stats().Failed != 1 {
		t.Errorf("failed = %d, want 1", p.Stats().Failed)
	}
}

func TestPool_RunsOrchestrator(t *testing.T) {
	f := newFixture(t, testConfig())
	d1, d2 := f.seed(t, legalText), f.seed(t, legalText)
	docs := []string{d1.ID(), d2.ID()}

	p := NewPool(f.orch, 2, 4, zap.NewNop())
	for _, id := range docs {
		if err := p.Submit(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, id := range docs {
		d, _ := f.docs.Get(context.Background(), id)
		if d.Status() != "ready" {
			t.Errorf("%s: status = %s", id, d.Status())
		}
	}
}
