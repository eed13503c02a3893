// Package metrics provides Prometheus metrics collection for the request
// orchestration core: per-operation request counts and latency, cache tier
// hit/miss/eviction counters, resilience attempt/failure/fallback counters
// and circuit breaker transitions, and batch execution counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blueberrycongee/aicore/internal/resilience"
)

const namespace = "aicore"

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 1.5, 2.0, 3.0, 5.0, 7.5, 10.0, 15.0,
	20.0, 30.0, 45.0, 60.0, 90.0, 120.0,
}

// =============================================================================
// Request metrics (OperationRegistry)
// =============================================================================

var (
	// RequestsTotal counts processed requests by operation and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of processed requests",
		},
		[]string{"operation", "status"},
	)

	// RequestDuration tracks end-to-end request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"operation"},
	)
)

// =============================================================================
// Cache metrics (CacheFacade)
// =============================================================================

var (
	// CacheHitsTotal counts cache hits by tier.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits by tier",
		},
		[]string{"tier"},
	)

	// CacheMissesTotal counts cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
	)

	// CacheEvictionsTotal counts evictions by reason (lru, ttl).
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total L1 evictions by reason",
		},
		[]string{"reason"},
	)

	// CacheInFlightSingleflight tracks concurrently-deduplicated producer calls.
	CacheInFlightSingleflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_inflight_singleflight",
			Help:      "Number of in-flight single-flight producer calls",
		},
	)

	// CacheRemoteErrorsTotal counts remote-tier errors (triggers the internal breaker).
	CacheRemoteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_remote_errors_total",
			Help:      "Total remote cache tier errors",
		},
	)
)

// =============================================================================
// Resilience metrics (ResilienceOrchestrator)
// =============================================================================

var (
	// ResilienceAttemptsTotal counts work invocations per operation.
	ResilienceAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_attempts_total",
			Help:      "Total work attempts per operation",
		},
		[]string{"operation"},
	)

	// ResilienceSuccessesTotal counts successful work invocations.
	ResilienceSuccessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_successes_total",
			Help:      "Total successful work invocations per operation",
		},
		[]string{"operation"},
	)

	// ResilienceFailuresTotal counts failed work invocations by error kind.
	ResilienceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_failures_total",
			Help:      "Total failed work invocations per operation by error kind",
		},
		[]string{"operation", "kind"},
	)

	// ResilienceFallbacksTotal counts fallback invocations.
	ResilienceFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_fallbacks_total",
			Help:      "Total fallback producer invocations per operation",
		},
		[]string{"operation"},
	)

	// ResilienceCircuitTransitionsTotal counts circuit breaker state transitions.
	ResilienceCircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_circuit_transitions_total",
			Help:      "Total circuit breaker state transitions per operation",
		},
		[]string{"operation", "from", "to"},
	)

	// ResilienceWorkDuration tracks work invocation latency.
	ResilienceWorkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resilience_work_duration_seconds",
			Help:      "Latency of successful work invocations per operation",
			Buckets:   LatencyBuckets,
		},
		[]string{"operation"},
	)
)

// =============================================================================
// Batch metrics (BatchExecutor)
// =============================================================================

var (
	// BatchesTotal counts completed batches.
	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of batches executed",
		},
	)

	// BatchItemsTotal counts items processed across all batches, by outcome.
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Total batch items processed by outcome",
		},
		[]string{"status"},
	)

	// BatchSize tracks the distribution of batch sizes.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Distribution of batch item counts",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
	)
)

// ResilienceRecorder adapts the package-level Prometheus vectors above to
// the resilience.Metrics interface, so the orchestrator never imports
// Prometheus directly.
type ResilienceRecorder struct{}

var _ resilience.Metrics = ResilienceRecorder{}

func (ResilienceRecorder) RecordAttempt(operationID string) {
	ResilienceAttemptsTotal.WithLabelValues(operationID).Inc()
}

func (ResilienceRecorder) RecordSuccess(operationID string, duration time.Duration) {
	ResilienceSuccessesTotal.WithLabelValues(operationID).Inc()
	ResilienceWorkDuration.WithLabelValues(operationID).Observe(duration.Seconds())
}

func (ResilienceRecorder) RecordFailure(operationID, kind string) {
	ResilienceFailuresTotal.WithLabelValues(operationID, kind).Inc()
}

func (ResilienceRecorder) RecordFallback(operationID string) {
	ResilienceFallbacksTotal.WithLabelValues(operationID).Inc()
}

func (ResilienceRecorder) RecordStateTransition(operationID string, from, to resilience.CircuitState) {
	ResilienceCircuitTransitionsTotal.WithLabelValues(operationID, from.String(), to.String()).Inc()
}
