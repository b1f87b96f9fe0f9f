package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provisioning metrics
	ProvisioningOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_provisioning_outcomes_total",
			Help: "Total number of reconciled index specifications by outcome",
		},
		[]string{"namespace", "kind", "status"},
	)

	ProvisioningStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "index_provisioning_step_duration_seconds",
			Help:    "Time spent reconciling one index specification",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"namespace", "kind"},
	)

	ProvisioningRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_provisioning_runs_total",
			Help: "Total number of provisioning runs",
		},
		[]string{"result"},
	)

	ProvisioningRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "index_provisioning_run_duration_seconds",
			Help:    "Duration of a whole provisioning run",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// Store call metrics
	StoreCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_store_calls_total",
			Help: "Total number of calls issued to the document store",
		},
		[]string{"operation", "result"},
	)

	StoreCallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_store_call_retries_total",
			Help: "Total number of retried store calls",
		},
		[]string{"operation"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)
)

// RecordOutcome records one reconciled specification
func RecordOutcome(namespace, kind, status string, seconds float64) {
	ProvisioningOutcomesTotal.WithLabelValues(namespace, kind, status).Inc()
	ProvisioningStepDuration.WithLabelValues(namespace, kind).Observe(seconds)
}

// RecordRun records a finished provisioning run
func RecordRun(result string, seconds float64) {
	ProvisioningRunsTotal.WithLabelValues(result).Inc()
	ProvisioningRunDuration.Observe(seconds)
}

// RecordStoreCall records a store call and its result
func RecordStoreCall(operation, result string) {
	StoreCallsTotal.WithLabelValues(operation, result).Inc()
}

// RecordStoreRetry records a retried store call
func RecordStoreRetry(operation string) {
	StoreCallRetries.WithLabelValues(operation).Inc()
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}
