package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

type memBudgetStore struct {
	mu     sync.Mutex
	vals   map[string]int64
	getErr error
}

func newMemBudgetStore() *memBudgetStore { return &memBudgetStore{vals: map[string]int64{}} }

func (m *memBudgetStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] += val
	return nil
}

func (m *memBudgetStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.vals[key], nil
}

func newTestTracker(cfg BudgetConfig, now *time.Time) *BudgetTracker {
	b := NewBudgetTracker(cfg, zap.NewNop())
	b.now = func() time.Time { return *now }
	b.day, b.month = periodStarts(*now)
	return b
}

func TestParseBudgetAction(t *testing.T) {
	for in, want := range map[string]BudgetAction{"": BudgetActionWarn, "warn": BudgetActionWarn, "reject": BudgetActionReject} {
		got, err := ParseBudgetAction(in)
		if err != nil || got != want {
			t.Errorf("ParseBudgetAction(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseBudgetAction("block"); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBudgetTracker_Reject(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	b := newTestTracker(BudgetConfig{Provider: "openai", DailyLimit: 100, Action: BudgetActionReject}, &now)

	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("fresh budget rejected: %v", err)
	}
	b.Record(60)
	b.Record(40)
	rejected := metrics.EmbeddingBudgetExceededTotal.WithLabelValues("openai", "reject")
	before := testutil.ToFloat64(rejected)
	if err := b.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if d := testutil.ToFloat64(rejected) - before; d != 1 {
		t.Errorf("budget exceeded counter delta = %v, want 1", d)
	}

	d := b.Daily()
	if d.Used != 100 || d.Remaining != 0 || d.Requests != 2 {
		t.Errorf("daily = %+v", d)
	}
	if m := b.Monthly(); m.Remaining != -1 || m.Used != 100 {
		t.Errorf("monthly without a limit = %+v", m)
	}
}

func TestBudgetTracker_WarnAllows(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	b := newTestTracker(BudgetConfig{Provider: "openai", MonthlyLimit: 10, Action: BudgetActionWarn}, &now)

	b.Record(50)
	if err := b.Check(context.Background()); err != nil {
		t.Errorf("warn action must allow the call, got %v", err)
	}
}

func TestBudgetTracker_Rollover(t *testing.T) {
	now := time.Date(2026, 10, 31, 23, 59, 0, 0, time.UTC)
	b := newTestTracker(BudgetConfig{Provider: "openai", DailyLimit: 100, MonthlyLimit: 1000}, &now)
	b.Record(100)

	now = now.Add(2 * time.Minute)
	d, m := b.Daily(), b.Monthly()
	if d.Used != 0 || m.Used != 0 {
		t.Errorf("counters must reset on day and month change: daily %d monthly %d", d.Used, m.Used)
	}
	if !d.Start.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)) || !m.End.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("periods = %v..%v, %v..%v", d.Start, d.End, m.Start, m.End)
	}

	now = now.Add(24 * time.Hour)
	b.Record(5)
	if b.Daily().Used != 5 || b.Monthly().Used != 5 {
		t.Errorf("daily %+v monthly %+v", b.Daily(), b.Monthly())
	}
}

func TestBudgetTracker_Store(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	store := newMemBudgetStore()
	store.vals["lexrag:budget:openai:daily:2026-10-17"] = 70
	store.vals["lexrag:budget:openai:monthly:2026-10"] = 900

	b := newTestTracker(BudgetConfig{Provider: "openai", KeyPrefix: "lexrag:", DailyLimit: 100}, &now)
	b.WithStore(context.Background(), store)
	if b.Daily().Used != 70 || b.Monthly().Used != 900 {
		t.Fatalf("loaded daily %d monthly %d", b.Daily().Used, b.Monthly().Used)
	}

	b.Record(30)
	if store.vals["lexrag:budget:openai:daily:2026-10-17"] != 100 || store.vals["lexrag:budget:openai:monthly:2026-10"] != 930 {
		t.Errorf("store = %v", store.vals)
	}
}

func TestBudgetTracker_StoreLoadFailure(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	store := newMemBudgetStore()
	store.getErr = errors.New("connection refused")

	b := newTestTracker(BudgetConfig{Provider: "openai", DailyLimit: 100}, &now)
	b.WithStore(context.Background(), store)
	if b.Daily().Used != 0 {
		t.Errorf("failed load must start from zero, got %d", b.Daily().Used)
	}
}
