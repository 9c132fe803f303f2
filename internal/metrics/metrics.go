// Package metrics exposes Prometheus collectors for the acquisition worker.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal               *prometheus.CounterVec
	tierAttemptsTotal       *prometheus.CounterVec
	tierDurationSeconds     *prometheus.HistogramVec
	productsNormalizedTotal *prometheus.CounterVec
	normalizeDropsTotal     prometheus.Counter
	proxyAttemptsTotal      *prometheus.CounterVec
	safetyTripsTotal        prometheus.Counter
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	browserRecyclesTotal    prometheus.Counter
	activeWorkers           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acquisition_jobs_total",
				Help: "Total acquisition jobs processed, labeled by kind and terminal status.",
			},
			[]string{"kind", "status"},
		)

		tierAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acquisition_tier_attempts_total",
				Help: "Total tier invocations, labeled by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		)

		tierDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acquisition_tier_duration_seconds",
				Help:    "Histogram of per-tier acquisition latencies.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tier"},
		)

		productsNormalizedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "products_normalized_total",
				Help: "Total canonical products produced, labeled by source.",
			},
			[]string{"source"},
		)

		normalizeDropsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "normalize_drops_total",
				Help: "Total raw records dropped by the normalizer as unparseable.",
			},
		)

		proxyAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_attempts_total",
				Help: "Total proxied attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		safetyTripsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "safety_breaker_trips_total",
				Help: "Total times the safety breaker transitioned to open.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by endpoint family.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"family"},
		)

		browserRecyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_recycles_total",
				Help: "Total scheduled browser teardown/recreate cycles.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "acquisition_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the jobs counter for a terminal status.
func ObserveJob(kind, status string) {
	jobsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveTier records a tier invocation outcome and latency.
func ObserveTier(tier string, success bool, duration time.Duration) {
	tierAttemptsTotal.WithLabelValues(tier, strconv.FormatBool(success)).Inc()
	tierDurationSeconds.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveNormalized counts canonical products by source.
func ObserveNormalized(source string, count int) {
	if count > 0 {
		productsNormalizedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveNormalizeDrop counts one unparseable raw record.
func ObserveNormalizeDrop() {
	normalizeDropsTotal.Inc()
}

// ObserveProxyAttempt counts one proxied attempt outcome.
func ObserveProxyAttempt(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	proxyAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSafetyTrip counts one breaker trip.
func ObserveSafetyTrip() {
	safetyTripsTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(family string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(family).Observe(duration.Seconds())
}

// ObserveBrowserRecycle counts one scheduled browser recycle.
func ObserveBrowserRecycle() {
	browserRecyclesTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
