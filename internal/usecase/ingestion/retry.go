package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

// Retry defaults for the vector write.
const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 5 * time.Second
)

// RetryConfig bounds exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns 3 attempts, 500ms base, 5s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultRetryBaseDelay,
		MaxDelay:    DefaultRetryMaxDelay,
	}
}

// delay returns the wait before the given retry (1-based): base << (attempt-1), capped.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return min(d, c.MaxDelay)
}

// permanent errors are not retried: another attempt cannot succeed before the quota resets.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingQuotaExceeded)
}

// retry calls op until it succeeds or attempts run out. Stops early on ctx or a permanent error.
func retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if permanent(err) {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		if attempt == attempts {
			break
		}

		t := time.NewTimer(cfg.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
