package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion Prometheus metrics.
var (
	IngestionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_total",
			Help:      "Ingestion runs by outcome",
		},
		[]string{"outcome"}, // "ready" / "failed" / "cancelled" / "rejected"
	)

	IngestionStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_stage_duration_seconds",
			Help:      "Duration of each ingestion stage in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	IngestionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_status_transitions_total",
			Help:      "Persisted document status transitions",
		},
		[]string{"to"},
	)

	IngestionKeywordFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_keyword_index_failures_total",
			Help:      "Best-effort keyword index writes that failed",
		},
	)

	IngestionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingestion_queue_depth",
			Help:      "Documents waiting for an ingestion worker",
		},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestionMetrics registers ingestion metrics. Must be called once from main.
func RegisterIngestionMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestionRunsTotal)
	prometheus.MustRegister(IngestionStageDuration)
	prometheus.MustRegister(IngestionTransitionsTotal)
	prometheus.MustRegister(IngestionKeywordFailuresTotal)
	prometheus.MustRegister(IngestionQueueDepth)
	ingestMetricsRegistered = true
}
