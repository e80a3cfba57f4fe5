// Package telemetry exposes Prometheus metrics for the crawl engine.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwatch_work_items_total",
			Help: "Total number of work items finished, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	pagesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfwatch_pages_fetched_total",
			Help: "Total number of catalog pages fetched.",
		},
	)

	upstreamAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwatch_upstream_attempts_total",
			Help: "Total upstream call attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfwatch_rate_limit_delay_seconds",
			Help:    "Histogram of delays imposed by the rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 3, 4, 5, 10, 30},
		},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		},
	)

	retryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfwatch_retry_attempts",
			Help:    "Histogram of attempts consumed per logical upstream operation.",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)

// CountWorkItem records a finished work item by outcome (completed, failed).
func CountWorkItem(outcome string) {
	workItemsTotal.WithLabelValues(outcome).Inc()
}

// CountPageFetched records one fetched catalog page.
func CountPageFetched() {
	pagesFetchedTotal.Inc()
}

// CountUpstreamAttempt records one upstream call attempt by outcome
// (success, error, rejected).
func CountUpstreamAttempt(outcome string) {
	upstreamAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records a delay imposed by the rate limiter.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// SetBreakerState publishes the current circuit breaker state.
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// ObserveRetryAttempts records attempts consumed by one logical operation.
func ObserveRetryAttempts(attempts int) {
	retryAttempts.Observe(float64(attempts))
}
