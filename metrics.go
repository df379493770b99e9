package weatherproof

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle
// and reliability layers. It is safe for concurrent use, and a nil
// collector is a valid no-op so instrumented code never has to check.
type MetricsCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec

	retriesTotal *prometheus.CounterVec
	backoffDelay *prometheus.HistogramVec

	circuitBreakerState *prometheus.GaugeVec
	circuitBreakerTrips *prometheus.CounterVec

	rateLimiterRejections *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	staleServed *prometheus.CounterVec

	autoRetriesTotal *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_requests_total",
				Help: "Total number of GetData calls by outcome",
			},
			[]string{"key", "result"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weatherproof_request_duration_seconds",
				Help:    "Duration of GetData calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"key", "result"},
		),
		attemptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_attempts_total",
				Help: "Total number of physical provider attempts by classification",
			},
			[]string{"key", "class"},
		),
		attemptDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weatherproof_attempt_duration_seconds",
				Help:    "Duration of physical provider attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"key", "class"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_retries_total",
				Help: "Total number of transport retry attempts",
			},
			[]string{"key", "attempt"},
		),
		backoffDelay: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weatherproof_backoff_delay_seconds",
				Help:    "Backoff delays slept between retry attempts in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"key"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weatherproof_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"key"},
		),
		circuitBreakerTrips: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_circuit_breaker_trips_total",
				Help: "Total number of circuit breaker open transitions",
			},
			[]string{"key"},
		),
		rateLimiterRejections: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_rate_limiter_rejections_total",
				Help: "Total number of requests rejected by the local rate limiter",
			},
			[]string{"key", "reason"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_cache_hits_total",
				Help: "Total number of fresh cache hits",
			},
			[]string{"key"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key"},
		),
		staleServed: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_stale_served_total",
				Help: "Total number of responses served from expired cache entries",
			},
			[]string{"key"},
		),
		autoRetriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_auto_retries_total",
				Help: "Total number of supervisory retries",
			},
			[]string{"key"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatherproof_errors_total",
				Help: "Total number of errors encountered by type",
			},
			[]string{"key", "type"},
		),
	}

	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequest records one GetData call with its outcome and duration.
// result is one of fresh_hit, stale_fallback, refreshed, rejected, error.
func (mc *MetricsCollector) RecordRequest(key, result string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(key, result).Inc()
	mc.requestDuration.WithLabelValues(key, result).Observe(duration.Seconds())
}

// RecordAttempt records one physical provider attempt with its
// classification and duration.
func (mc *MetricsCollector) RecordAttempt(key, class string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.attemptsTotal.WithLabelValues(key, class).Inc()
	mc.attemptDuration.WithLabelValues(key, class).Observe(duration.Seconds())
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(key string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(key, strconv.Itoa(attempt)).Inc()
}

// RecordBackoffDelay observes the delay slept before a retry.
func (mc *MetricsCollector) RecordBackoffDelay(key string, delay time.Duration) {
	if mc == nil {
		return
	}

	mc.backoffDelay.WithLabelValues(key).Observe(delay.Seconds())
}

// RecordCircuitBreakerState sets the gauge to the breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(key string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(key).Set(stateValue)
}

// RecordCircuitBreakerTrip increments the trip counter.
func (mc *MetricsCollector) RecordCircuitBreakerTrip(key string) {
	if mc == nil {
		return
	}

	mc.circuitBreakerTrips.WithLabelValues(key).Inc()
}

// RecordRateLimiterRejection increments the rejection counter. reason is
// in_flight or interval.
func (mc *MetricsCollector) RecordRateLimiterRejection(key, reason string) {
	if mc == nil {
		return
	}

	mc.rateLimiterRejections.WithLabelValues(key, reason).Inc()
}

// RecordCacheHit increments the fresh hit counter.
func (mc *MetricsCollector) RecordCacheHit(key string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(key).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(key string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(key).Inc()
}

// RecordStaleServed increments the stale fallback counter.
func (mc *MetricsCollector) RecordStaleServed(key string) {
	if mc == nil {
		return
	}

	mc.staleServed.WithLabelValues(key).Inc()
}

// RecordAutoRetry increments the supervisory retry counter.
func (mc *MetricsCollector) RecordAutoRetry(key string) {
	if mc == nil {
		return
	}

	mc.autoRetriesTotal.WithLabelValues(key).Inc()
}

// RecordError increments the error counter by type.
func (mc *MetricsCollector) RecordError(key, errorType string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(key, errorType).Inc()
}

// GetRegistry exposes the underlying prometheus registry when the
// collector was built on one, or nil for wrapped registerers.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
