package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "entsearch"

// Indexing, search, and background pipeline Prometheus metrics.
var (
	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_operations_total",
			Help:      "Index and remove operations by entity type and outcome",
		},
		[]string{"op", "type", "outcome"}, // op: index/remove; outcome: created/updated/removed/noop/error
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search execution time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"status"},
	)

	SearchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_candidates",
			Help:      "Number of matching candidates per search before pagination",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejections_total",
			Help:      "Searches rejected by the rate limiter",
		},
	)

	RateLimitStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_store_errors_total",
			Help:      "Rate limit checks that failed open because the store was unavailable",
		},
	)

	AnalyticsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_total",
			Help:      "Query analytics events by result",
		},
		[]string{"result"}, // "recorded" / "dropped" / "error"
	)

	ReindexJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_jobs_total",
			Help:      "Reindex jobs by terminal status",
		},
		[]string{"status"},
	)

	ReindexPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_pages_total",
			Help:      "System of record pages processed by reindex jobs",
		},
		[]string{"type", "outcome"}, // "ok" / "error"
	)

	ReindexEntitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_entities_total",
			Help:      "Entities processed by reindex jobs",
		},
		[]string{"type", "outcome"}, // "indexed" / "failed" / "pruned"
	)

	ReindexActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reindex_active_jobs",
			Help:      "Reindex jobs currently running in this process",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers the indexing and search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		IndexOperationsTotal,
		SearchDuration,
		SearchCandidates,
		RateLimitRejectionsTotal,
		RateLimitStoreErrorsTotal,
		AnalyticsEventsTotal,
		ReindexJobsTotal,
		ReindexPagesTotal,
		ReindexEntitiesTotal,
		ReindexActiveJobs,
	)
	searchMetricsRegistered = true
}
