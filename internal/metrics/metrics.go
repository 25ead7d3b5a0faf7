// Package metrics provides Prometheus metrics for changetree.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Status cache
	statusCacheRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_status_cache_requests_total",
			Help: "Total number of batch status requests",
		},
	)

	statusCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_status_cache_hits_total",
			Help: "Batch status requests served from cache",
		},
	)

	statusCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_status_cache_misses_total",
			Help: "Batch status requests that ran the status query",
		},
	)

	statusQueryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_status_query_failures_total",
			Help: "Status queries that returned an error",
		},
	)

	// Circuit breaker
	breakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_circuit_breaker_trips_total",
			Help: "Times the status circuit breaker opened",
		},
	)

	breakerRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_circuit_breaker_rejections_total",
			Help: "Attempts rejected while the breaker was open",
		},
	)

	// Classification
	classifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "changetree_classify_duration_seconds",
			Help:    "Time spent building the change tree",
			Buckets: prometheus.DefBuckets,
		},
	)

	classifyResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changetree_classify_results_total",
			Help: "Tree builds by resulting state",
		},
		[]string{"state"},
	)

	// Deleted file tracking
	trackerInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_deleted_records_inserted_total",
			Help: "Deleted-file records written for the first time",
		},
	)

	trackerPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_deleted_records_persist_failures_total",
			Help: "Deleted-file saves that failed to persist",
		},
	)

	// Coordinator
	viewReveals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_view_reveals_total",
			Help: "Reveal calls issued to visible views",
		},
	)

	reloadsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changetree_reloads_skipped_total",
			Help: "Reload requests ignored because a reload was in flight",
		},
	)
)

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordStatusRequest records a batch status request and whether it hit the cache.
func RecordStatusRequest(hit bool) {
	statusCacheRequests.Inc()
	if hit {
		statusCacheHits.Inc()
		return
	}
	statusCacheMisses.Inc()
}

// RecordStatusFailure records a failed status query.
func RecordStatusFailure() {
	statusQueryFailures.Inc()
}

// RecordBreakerTrip records the breaker opening.
func RecordBreakerTrip() {
	breakerTrips.Inc()
}

// RecordBreakerRejection records an attempt refused by an open breaker.
func RecordBreakerRejection() {
	breakerRejections.Inc()
}

// RecordClassification records one tree build.
func RecordClassification(state string, duration time.Duration) {
	classifyDuration.Observe(duration.Seconds())
	classifyResults.WithLabelValues(state).Inc()
}

// RecordDeletedInserted records newly written deleted-file records.
func RecordDeletedInserted(n int) {
	if n > 0 {
		trackerInserted.Add(float64(n))
	}
}

// RecordPersistFailure records a failed tracker save.
func RecordPersistFailure() {
	trackerPersistFailures.Inc()
}

// RecordReveal counts one reveal call.
func RecordReveal() {
	viewReveals.Inc()
}

// RecordReloadSkipped counts one ignored reload request.
func RecordReloadSkipped() {
	reloadsSkipped.Inc()
}
