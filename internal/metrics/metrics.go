// Package metrics exposes Prometheus collectors for the monitoring pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlJobsTotal          *prometheus.CounterVec
	crawlDurationSeconds    prometheus.Histogram
	imagesProcessedTotal    prometheus.Counter
	tigersDetectedTotal     prometheus.Counter
	tigersIdentifiedTotal   prometheus.Counter
	evidenceCreatedTotal    *prometheus.CounterVec
	searchAttemptsTotal     *prometheus.CounterVec
	searchCacheTotal        *prometheus.CounterVec
	dispatchFailuresTotal   *prometheus.CounterVec
	activeWorkers           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tigerwatch_crawl_jobs_total",
				Help: "Total number of crawl jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tigerwatch_crawl_duration_seconds",
				Help:    "Histogram of end-to-end crawl job durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		imagesProcessedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tigerwatch_images_processed_total",
				Help: "Total number of candidate images run through detection.",
			},
		)

		tigersDetectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tigerwatch_tigers_detected_total",
				Help: "Total number of positive tiger detections.",
			},
		)

		tigersIdentifiedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tigerwatch_tigers_identified_total",
				Help: "Total number of positive tiger identifications.",
			},
		)

		evidenceCreatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tigerwatch_evidence_created_total",
				Help: "Total number of evidence records created, labeled by source type.",
			},
			[]string{"source_type"},
		)

		searchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tigerwatch_search_attempts_total",
				Help: "Total search provider attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		searchCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tigerwatch_search_cache_total",
				Help: "Search cache lookups, labeled by result (hit/miss/error).",
			},
			[]string{"result"},
		)

		dispatchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tigerwatch_dispatch_failures_total",
				Help: "Scheduler dispatch failures, labeled by reason.",
			},
			[]string{"reason"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tigerwatch_active_workers",
				Help: "Number of workers currently processing a crawl job.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records a finished crawl job.
func ObserveJob(status string, duration time.Duration) {
	crawlJobsTotal.WithLabelValues(status).Inc()
	crawlDurationSeconds.Observe(duration.Seconds())
}

// ObserveImage counts an image run through the detection stage.
func ObserveImage() {
	imagesProcessedTotal.Inc()
}

// ObserveDetection counts a positive detection.
func ObserveDetection() {
	tigersDetectedTotal.Inc()
}

// ObserveIdentification counts a positive identification.
func ObserveIdentification() {
	tigersIdentifiedTotal.Inc()
}

// ObserveEvidence counts a created evidence record.
func ObserveEvidence(sourceType string) {
	evidenceCreatedTotal.WithLabelValues(sourceType).Inc()
}

// ObserveSearchAttempt records one provider attempt in the fallback chain.
func ObserveSearchAttempt(provider, outcome string) {
	searchAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveSearchCache records a cache lookup result.
func ObserveSearchCache(result string) {
	searchCacheTotal.WithLabelValues(result).Inc()
}

// ObserveDispatchFailure records a per-facility dispatch failure.
func ObserveDispatchFailure(reason string) {
	dispatchFailuresTotal.WithLabelValues(reason).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
