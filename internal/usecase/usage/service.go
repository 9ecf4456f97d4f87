// Package usage reports embedding token consumption against the configured budget.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/lexrag/internal/domain/usage"
	"github.com/kailas-cloud/lexrag/internal/domain/usage/budget"
	"github.com/kailas-cloud/lexrag/internal/domain/usage/metrics"
	"github.com/kailas-cloud/lexrag/internal/usecase/embedding"
)

// Service handles usage reporting.
type Service struct {
	br       BudgetReader
	provider string
	now      func() time.Time
}

// New creates a Service. br can be nil (no budget configured): reports are
// then unlimited with zero counters.
func New(br BudgetReader, provider string) *Service {
	return &Service{br: br, provider: provider, now: time.Now}
}

// Report builds the usage report for the given period.
func (s *Service) Report(_ context.Context, period domusage.Period) domusage.Report {
	var u embedding.Usage
	switch {
	case s.br == nil:
		u = s.empty(period)
	case period == domusage.PeriodMonth:
		u = s.br.Monthly()
	default:
		u = s.br.Daily()
	}

	start, end := u.Start.UnixMilli(), u.End.UnixMilli()
	b := budget.Unlimited(end)
	if u.Limit > 0 {
		b = budget.New(u.Limit, u.Remaining, u.Remaining == 0, end)
	}
	return domusage.NewReport(period, start, end, s.provider, metrics.New(u.Requests, u.Used), b)
}

func (s *Service) empty(period domusage.Period) embedding.Usage {
	now := s.now().UTC()
	if period == domusage.PeriodMonth {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return embedding.Usage{Remaining: -1, Start: start, End: start.AddDate(0, 1, 0)}
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return embedding.Usage{Remaining: -1, Start: start, End: start.AddDate(0, 0, 1)}
}
