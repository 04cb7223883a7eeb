// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks current active connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	// RateLimitDecisionsTotal counts limiter decisions by tier and outcome.
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"tier", "outcome"},
	)

	// RateLimitStoreErrorsTotal counts counter-store failures that were admitted fail-open.
	RateLimitStoreErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Total number of rate limit store errors (admitted fail-open)",
		},
	)

	// LicenseVerificationsTotal counts license checks by outcome and reason.
	LicenseVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_verifications_total",
			Help: "Total number of license verifications",
		},
		[]string{"valid", "reason"},
	)

	// LicenseUpstreamDuration measures licensing service latency.
	LicenseUpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "license_upstream_duration_seconds",
			Help:    "Licensing service call duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// LicenseCacheHitsTotal counts license results served from cache.
	LicenseCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "license_cache_hits_total",
			Help: "Total number of license cache hits",
		},
	)

	// LicenseCacheMissesTotal counts license cache misses.
	LicenseCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "license_cache_misses_total",
			Help: "Total number of license cache misses",
		},
	)

	// CircuitBreakerState reports breaker state per upstream (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// SubscriptionChecksTotal counts subscription verifications by outcome.
	SubscriptionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_checks_total",
			Help: "Total number of subscription verifications",
		},
		[]string{"active"},
	)

	// WebhookEventsTotal counts received billing webhook events by type.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of billing webhook events",
		},
		[]string{"type"},
	)

	// ToolInvocationsTotal counts formatter invocations by tool and result.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "result"},
	)

	// DBQueryDuration measures database query latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRateLimitDecision records an admitted or rejected request.
func RecordRateLimitDecision(tier string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	RateLimitDecisionsTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordRateLimitStoreError records a fail-open admission.
func RecordRateLimitStoreError() {
	RateLimitStoreErrorsTotal.Inc()
}

// RecordLicenseVerification records the outcome of a license check.
func RecordLicenseVerification(valid bool, reason string) {
	if reason == "" {
		reason = "none"
	}
	LicenseVerificationsTotal.WithLabelValues(strconv.FormatBool(valid), reason).Inc()
}

// RecordLicenseUpstream records the latency of a licensing service call.
func RecordLicenseUpstream(duration time.Duration) {
	LicenseUpstreamDuration.Observe(duration.Seconds())
}

// RecordLicenseCacheHit records a license cache hit.
func RecordLicenseCacheHit() {
	LicenseCacheHitsTotal.Inc()
}

// RecordLicenseCacheMiss records a license cache miss.
func RecordLicenseCacheMiss() {
	LicenseCacheMissesTotal.Inc()
}

// SetCircuitBreakerState publishes a breaker state transition.
func SetCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordSubscriptionCheck records a subscription verification.
func RecordSubscriptionCheck(active bool) {
	SubscriptionChecksTotal.WithLabelValues(strconv.FormatBool(active)).Inc()
}

// RecordWebhookEvent records a received webhook event.
func RecordWebhookEvent(eventType string) {
	WebhookEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordToolInvocation records a formatter invocation.
func RecordToolInvocation(tool string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	ToolInvocationsTotal.WithLabelValues(tool, result).Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
