package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

// BudgetAction defines behavior when the token budget is spent.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but lets the request through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject fails the request with ErrEmbeddingQuotaExceeded.
	BudgetActionReject BudgetAction = "reject"
)

// ParseBudgetAction maps a config value to an action. Empty means warn.
func ParseBudgetAction(s string) (BudgetAction, error) {
	switch BudgetAction(s) {
	case "", BudgetActionWarn:
		return BudgetActionWarn, nil
	case BudgetActionReject:
		return BudgetActionReject, nil
	default:
		return "", fmt.Errorf("%w: unknown budget action %q", domain.ErrInvalidConfig, s)
	}
}

const persistTimeout = 2 * time.Second

// BudgetStore persists token counters. IncrBy may be called repeatedly for the same key.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetConfig sets the caps. A zero limit means unlimited.
type BudgetConfig struct {
	Provider     string
	KeyPrefix    string
	DailyLimit   int64
	MonthlyLimit int64
	Action       BudgetAction
}

// Enabled reports whether any cap is set.
func (c BudgetConfig) Enabled() bool { return c.DailyLimit > 0 || c.MonthlyLimit > 0 }

// BudgetTracker counts embedding tokens per UTC day and month.
// Check is in-memory; Record writes behind to the store when one is attached.
// Request counts are kept in memory only.
type BudgetTracker struct {
	mu              sync.Mutex
	cfg             BudgetConfig
	dailyUsed       int64
	monthlyUsed     int64
	dailyRequests   int64
	monthlyRequests int64
	day             time.Time
	month           time.Time
	store           BudgetStore
	now             func() time.Time
	logger          *zap.Logger
}

// NewBudgetTracker creates a tracker with empty counters.
func NewBudgetTracker(cfg BudgetConfig, logger *zap.Logger) *BudgetTracker {
	b := &BudgetTracker{cfg: cfg, now: time.Now, logger: logger}
	b.day, b.month = periodStarts(b.now())
	return b
}

// WithStore attaches a persistence store and loads the current counters from it.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.store = store
	b.load(ctx)
	return b
}

func (b *BudgetTracker) load(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	if val, err := b.store.Get(ctx, b.dailyKey(now)); err == nil {
		b.dailyUsed = val
	} else {
		b.logger.Warn("Failed to load daily token budget", zap.Error(err))
	}
	if val, err := b.store.Get(ctx, b.monthlyKey(now)); err == nil {
		b.monthlyUsed = val
	} else {
		b.logger.Warn("Failed to load monthly token budget", zap.Error(err))
	}

	b.logger.Info("Token budget loaded",
		zap.String("provider", b.cfg.Provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("monthly_used", b.monthlyUsed),
	)
}

func (b *BudgetTracker) dailyKey(t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", b.cfg.KeyPrefix, b.cfg.Provider, t.Format("2006-01-02"))
}

func (b *BudgetTracker) monthlyKey(t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", b.cfg.KeyPrefix, b.cfg.Provider, t.Format("2006-01"))
}

// Check reports whether a new provider call is allowed.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	dailyExceeded := b.cfg.DailyLimit > 0 && b.dailyUsed >= b.cfg.DailyLimit
	monthlyExceeded := b.cfg.MonthlyLimit > 0 && b.monthlyUsed >= b.cfg.MonthlyLimit
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}
	metrics.EmbeddingBudgetExceededTotal.WithLabelValues(b.cfg.Provider, string(b.cfg.Action)).Inc()

	if b.cfg.Action == BudgetActionReject {
		return fmt.Errorf("%s: %w", b.cfg.Provider, domain.ErrEmbeddingQuotaExceeded)
	}
	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.cfg.Provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("daily_limit", b.cfg.DailyLimit),
		zap.Int64("monthly_used", b.monthlyUsed),
		zap.Int64("monthly_limit", b.cfg.MonthlyLimit),
	)
	return nil
}

// Record adds the tokens of one completed provider call.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.rollover()
	b.dailyUsed += tokens
	b.monthlyUsed += tokens
	b.dailyRequests++
	b.monthlyRequests++
	store := b.store
	now := b.now().UTC()
	b.mu.Unlock()

	if store == nil || tokens == 0 {
		return
	}

	// write-behind: вызывающий не ждёт дольше persistTimeout
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, key := range []string{b.dailyKey(now), b.monthlyKey(now)} {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("Failed to persist token budget", zap.String("key", key), zap.Error(err))
		}
	}
}

// Usage is a point-in-time view of one budget period.
type Usage struct {
	Limit     int64
	Used      int64
	Requests  int64
	Remaining int64 // -1 when unlimited
	Start     time.Time
	End       time.Time
}

// Daily returns today's usage (UTC).
func (b *BudgetTracker) Daily() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return usage(b.cfg.DailyLimit, b.dailyUsed, b.dailyRequests, b.day, b.day.AddDate(0, 0, 1))
}

// Monthly returns this month's usage (UTC).
func (b *BudgetTracker) Monthly() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return usage(b.cfg.MonthlyLimit, b.monthlyUsed, b.monthlyRequests, b.month, b.month.AddDate(0, 1, 0))
}

func usage(limit, used, requests int64, start, end time.Time) Usage {
	u := Usage{Limit: limit, Used: used, Requests: requests, Remaining: -1, Start: start, End: end}
	if limit > 0 {
		u.Remaining = max(limit-used, 0)
	}
	return u
}

// rollover zeroes counters when the UTC day or month changes. Caller holds mu.
func (b *BudgetTracker) rollover() {
	day, month := periodStarts(b.now())
	if day.After(b.day) {
		b.dailyUsed, b.dailyRequests = 0, 0
		b.day = day
	}
	if month.After(b.month) {
		b.monthlyUsed, b.monthlyRequests = 0, 0
		b.month = month
	}
}

func periodStarts(t time.Time) (day, month time.Time) {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
