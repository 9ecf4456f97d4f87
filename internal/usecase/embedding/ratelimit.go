package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

// Rate limit defaults, well below the provider's published limits.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10
	DefaultRateLimitBackoff  = 20 * time.Second
)

// RateLimitConfig is a token bucket for one provider.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Validate rejects non-positive limits.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: requests_per_second must be positive", domain.ErrInvalidConfig)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("%w: burst must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

// RateLimiter throttles provider calls and honours backoff after a 429.
type RateLimiter struct {
	provider string
	limiter  *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
}

// NewRateLimiter creates a limiter for the named provider.
func NewRateLimiter(provider string, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// Wait blocks until a request may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.EmbeddingRateLimitWait.WithLabelValues(r.provider).Observe(time.Since(start).Seconds())
	}()

	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limit backoff: %w", ctx.Err())
		case <-t.C:
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Backoff pauses all callers for d. Non-positive d uses DefaultRateLimitBackoff.
func (r *RateLimiter) Backoff(d time.Duration) {
	if d <= 0 {
		d = DefaultRateLimitBackoff
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if at := time.Now().Add(d); at.After(r.retryAt) {
		r.retryAt = at
	}
}
