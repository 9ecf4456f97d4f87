package usage

import (
	"context"
	"testing"
	"time"

	domusage "github.com/kailas-cloud/lexrag/internal/domain/usage"
	"github.com/kailas-cloud/lexrag/internal/usecase/embedding"
)

type mockBudgetReader struct {
	daily   embedding.Usage
	monthly embedding.Usage
}

func (m *mockBudgetReader) Daily() embedding.Usage   { return m.daily }
func (m *mockBudgetReader) Monthly() embedding.Usage { return m.monthly }

var (
	dayStart   = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	monthStart = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
)

func TestReport_Daily(t *testing.T) {
	br := &mockBudgetReader{daily: embedding.Usage{
		Limit: 10000, Used: 3000, Requests: 12, Remaining: 7000,
		Start: dayStart, End: dayStart.AddDate(0, 0, 1),
	}}
	svc := New(br, "openai")
	r := svc.Report(context.Background(), domusage.PeriodDay)

	if r.Period() != domusage.PeriodDay || r.Provider() != "openai" {
		t.Errorf("period %q provider %q", r.Period(), r.Provider())
	}
	if r.PeriodStart() != dayStart.UnixMilli() || r.PeriodEnd() != dayStart.AddDate(0, 0, 1).UnixMilli() {
		t.Errorf("period = %d..%d", r.PeriodStart(), r.PeriodEnd())
	}
	if r.Budget().TokensLimit() != 10000 || r.Budget().TokensRemaining() != 7000 || r.Budget().IsExhausted() {
		t.Errorf("budget = %+v", r.Budget())
	}
	if r.Budget().ResetsAt() != r.PeriodEnd() {
		t.Errorf("budget must reset at the period end")
	}
	if r.Metrics().Tokens() != 3000 || r.Metrics().EmbeddingRequests() != 12 {
		t.Errorf("metrics = %+v", r.Metrics())
	}
}

func TestReport_MonthlyExhausted(t *testing.T) {
	br := &mockBudgetReader{monthly: embedding.Usage{
		Limit: 100000, Used: 120000, Remaining: 0,
		Start: monthStart, End: monthStart.AddDate(0, 1, 0),
	}}
	r := New(br, "openai").Report(context.Background(), domusage.PeriodMonth)

	if !r.Budget().IsExhausted() {
		t.Error("budget should be exhausted")
	}
	if r.PeriodStart() != monthStart.UnixMilli() {
		t.Errorf("start = %d", r.PeriodStart())
	}
}

func TestReport_UnlimitedTracker(t *testing.T) {
	br := &mockBudgetReader{daily: embedding.Usage{
		Used: 500, Requests: 2, Remaining: -1, Start: dayStart, End: dayStart.AddDate(0, 0, 1),
	}}
	r := New(br, "openai").Report(context.Background(), domusage.PeriodDay)

	if !r.Budget().IsUnlimited() || r.Budget().IsExhausted() {
		t.Errorf("budget = %+v", r.Budget())
	}
	if r.Metrics().Tokens() != 500 {
		t.Errorf("tokens = %d", r.Metrics().Tokens())
	}
}

func TestReport_NilReader(t *testing.T) {
	svc := New(nil, "openai")
	svc.now = func() time.Time { return time.Date(2026, 10, 17, 15, 4, 5, 0, time.UTC) }

	day := svc.Report(context.Background(), domusage.PeriodDay)
	if day.PeriodStart() != dayStart.UnixMilli() || day.PeriodEnd() != dayStart.AddDate(0, 0, 1).UnixMilli() {
		t.Errorf("day = %d..%d", day.PeriodStart(), day.PeriodEnd())
	}
	if !day.Budget().IsUnlimited() || day.Metrics().Tokens() != 0 {
		t.Errorf("nil reader must report unlimited zero usage: %+v %+v", day.Budget(), day.Metrics())
	}

	month := svc.Report(context.Background(), domusage.PeriodMonth)
	if month.PeriodStart() != monthStart.UnixMilli() || month.PeriodEnd() != monthStart.AddDate(0, 1, 0).UnixMilli() {
		t.Errorf("month = %d..%d", month.PeriodStart(), month.PeriodEnd())
	}
}
