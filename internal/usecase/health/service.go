package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "healthy"
	// Degraded indicates that search or ingestion runs with reduced capability.
	Degraded Status = "degraded"
	// Unhealthy indicates that a critical component (the document store) is unreachable.
	Unhealthy Status = "unhealthy"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Component names in Report.Checks.
const (
	ComponentDatabase    = "database"
	ComponentEmbedding   = "embedding"
	ComponentKeyword     = "keyword_index"
	ComponentObjectStore = "object_store"
)

const defaultProbeTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Probe is one named component check. A failing critical probe makes the
// service unhealthy; any other failure degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Database probes the document store. Critical.
func Database(db DBPinger) Probe {
	return Probe{Name: ComponentDatabase, Critical: true, Check: db.Ping}
}

// Embedding probes the embedding provider. A nil checker yields no probe.
func Embedding(e EmbeddingChecker) Probe {
	if e == nil {
		return Probe{}
	}
	return Probe{Name: ComponentEmbedding, Check: e.HealthCheck}
}

// Keyword probes the full-text index. A nil checker yields no probe.
func Keyword(k KeywordChecker) Probe {
	if k == nil {
		return Probe{}
	}
	return Probe{Name: ComponentKeyword, Check: k.Healthy}
}

// ObjectStore probes the upload storage. A nil checker yields no probe.
func ObjectStore(o ObjectStoreChecker) Probe {
	if o == nil {
		return Probe{}
	}
	return Probe{Name: ComponentObjectStore, Check: o.Writable}
}

// Service coordinates health checks.
type Service struct {
	probes  []Probe
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Service. Probes without a Check are dropped.
func New(logger *zap.Logger, probes ...Probe) *Service {
	s := &Service{timeout: defaultProbeTimeout, logger: logger}
	for _, p := range probes {
		if p.Check != nil {
			s.probes = append(s.probes, p)
		}
	}
	return s
}

// WithTimeout overrides the per-probe deadline.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs all probes concurrently, each under its own deadline.
func (s *Service) Check(ctx context.Context) Report {
	errs := make([]error, len(s.probes))
	var wg sync.WaitGroup
	for i, p := range s.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			errs[i] = p.Check(pctx)
		}()
	}
	wg.Wait()

	report := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.probes))}
	for i, p := range s.probes {
		if errs[i] == nil {
			report.Checks[p.Name] = CheckOK
			continue
		}
		s.logger.Warn("Health check failed",
			zap.String("component", p.Name),
			zap.Bool("critical", p.Critical),
			zap.Error(errs[i]),
		)
		report.Checks[p.Name] = CheckError
		switch {
		case p.Critical:
			report.Status = Unhealthy
		case report.Status == Healthy:
			report.Status = Degraded
		}
	}
	return report
}
