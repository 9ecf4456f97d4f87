package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

// Pool defaults.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// PoolStats are cumulative worker pool counters.
type PoolStats struct {
	Processed int64
	Failed    int64
	Queued    int
}

// Pool runs ingestions on a fixed set of workers fed by a bounded queue.
// Submit → channel(docID) → N workers → Runner.Run.
type Pool struct {
	runner Runner
	jobs   chan string
	wg     sync.WaitGroup

	// ctx is the root of every run; cancelled when Shutdown gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	processed atomic.Int64
	failed    atomic.Int64
	logger    *zap.Logger
}

// NewPool starts workers immediately.
func NewPool(runner Runner, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner: runner,
		jobs:   make(chan string, queueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	for i := range workers {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.worker(workerID)
		}(i)
	}
	return p
}

// Submit enqueues a document without blocking.
func (p *Pool) Submit(documentID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.ErrPoolClosed
	}

	select {
	case p.jobs <- documentID:
		metrics.IngestionQueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		return fmt.Errorf("document %s: %w", documentID, domain.ErrQueueFull)
	}
}

// Shutdown stops accepting work and waits for queued runs to drain.
// When ctx expires first, in-flight runs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("ingestion pool shutdown: %w", ctx.Err())
	}
}

// Stats returns the counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Queued:    len(p.jobs),
	}
}

func (p *Pool) worker(id int) {
	for docID := range p.jobs {
		metrics.IngestionQueueDepth.Set(float64(len(p.jobs)))
		p.process(id, docID)
	}
}

func (p *Pool) process(id int, docID string) {
	rep, err := p.runner.Run(p.ctx, docID)
	if err != nil {
		p.failed.Add(1)
		level := p.logger.Warn
		if errors.Is(err, domain.ErrRunCancelled) || errors.Is(err, domain.ErrIngestionInProgress) {
			level = p.logger.Info
		}
		level("Ingestion run ended with error",
			zap.Int("worker", id),
			zap.String("document_id", docID),
			zap.String("status", rep.Status.String()),
			zap.Error(err))
		return
	}
	p.processed.Add(1)
}
