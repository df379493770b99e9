package weatherproof

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsCollectorWithRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	if collector == nil {
		t.Fatal("NewMetricsCollectorWithRegistry() returned nil")
	}
	if collector.requestsTotal == nil {
		t.Error("requestsTotal metric not initialized")
	}
	if collector.attemptsTotal == nil {
		t.Error("attemptsTotal metric not initialized")
	}
	if collector.retriesTotal == nil {
		t.Error("retriesTotal metric not initialized")
	}
	if collector.backoffDelay == nil {
		t.Error("backoffDelay metric not initialized")
	}
	if collector.circuitBreakerState == nil {
		t.Error("circuitBreakerState metric not initialized")
	}
	if collector.circuitBreakerTrips == nil {
		t.Error("circuitBreakerTrips metric not initialized")
	}
	if collector.rateLimiterRejections == nil {
		t.Error("rateLimiterRejections metric not initialized")
	}
	if collector.cacheHits == nil {
		t.Error("cacheHits metric not initialized")
	}
	if collector.cacheMisses == nil {
		t.Error("cacheMisses metric not initialized")
	}
	if collector.staleServed == nil {
		t.Error("staleServed metric not initialized")
	}
	if collector.autoRetriesTotal == nil {
		t.Error("autoRetriesTotal metric not initialized")
	}
	if collector.errorsTotal == nil {
		t.Error("errorsTotal metric not initialized")
	}
	if collector.GetRegistry() != registry {
		t.Error("Expected GetRegistry to return the supplied registry")
	}
}

func TestNilMetricsCollectorIsNoOp(t *testing.T) {
	var mc *MetricsCollector

	// None of these may panic on a nil receiver.
	mc.RecordRequest("oslo", "refreshed", time.Second)
	mc.RecordAttempt("oslo", "success", time.Second)
	mc.RecordRetry("oslo", 1)
	mc.RecordBackoffDelay("oslo", time.Second)
	mc.RecordCircuitBreakerState("oslo", StateOpen)
	mc.RecordCircuitBreakerTrip("oslo")
	mc.RecordRateLimiterRejection("oslo", "interval")
	mc.RecordCacheHit("oslo")
	mc.RecordCacheMiss("oslo")
	mc.RecordStaleServed("oslo")
	mc.RecordAutoRetry("oslo")
	mc.RecordError("oslo", "ServerError")

	if mc.GetRegistry() != nil {
		t.Error("Expected nil registry from nil collector")
	}
}

func TestMetricsCollectorCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordCacheHit("oslo")
	mc.RecordCacheHit("oslo")
	mc.RecordCacheMiss("oslo")
	mc.RecordStaleServed("oslo")
	mc.RecordAutoRetry("oslo")
	mc.RecordError("oslo", "ServerError")
	mc.RecordRateLimiterRejection("oslo", "interval")
	mc.RecordRateLimiterRejection("oslo", "in_flight")
	mc.RecordCircuitBreakerTrip("oslo")

	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("oslo")); got != 2 {
		t.Errorf("Expected 2 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(mc.staleServed.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected 1 stale served, got %v", got)
	}
	if got := testutil.ToFloat64(mc.autoRetriesTotal.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected 1 auto retry, got %v", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("oslo", "ServerError")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(mc.rateLimiterRejections.WithLabelValues("oslo", "interval")); got != 1 {
		t.Errorf("Expected 1 interval rejection, got %v", got)
	}
	if got := testutil.ToFloat64(mc.rateLimiterRejections.WithLabelValues("oslo", "in_flight")); got != 1 {
		t.Errorf("Expected 1 in-flight rejection, got %v", got)
	}
	if got := testutil.ToFloat64(mc.circuitBreakerTrips.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected 1 breaker trip, got %v", got)
	}
}

func TestMetricsCollectorBreakerStateGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordCircuitBreakerState("oslo", StateClosed)
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("oslo")); got != 0 {
		t.Errorf("Expected closed=0, got %v", got)
	}

	mc.RecordCircuitBreakerState("oslo", StateOpen)
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected open=1, got %v", got)
	}

	mc.RecordCircuitBreakerState("oslo", StateHalfOpen)
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("oslo")); got != 2 {
		t.Errorf("Expected half-open=2, got %v", got)
	}
}

func TestMetricsCollectorRetryCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRetry("oslo", 1)
	mc.RecordRetry("oslo", 1)
	mc.RecordRetry("oslo", 2)

	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("oslo", "1")); got != 2 {
		t.Errorf("Expected 2 first retries, got %v", got)
	}
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("oslo", "2")); got != 1 {
		t.Errorf("Expected 1 second retry, got %v", got)
	}
}

func TestClientRecordsMetricsEndToEnd(t *testing.T) {
	var failing bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "forecast")
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)
	clock := newFakeClock()
	client := New(urlBuilder(server.URL),
		WithClock(clock),
		WithMetricsCollector(mc),
		WithMaxRetries(0),
		WithAutoRetryDelays(),
		WithRateLimitInterval(0),
	)
	ctx := context.Background()

	// Miss then fetch, then a fresh hit.
	if _, err := client.GetData(ctx, "oslo"); err != nil {
		t.Fatalf("GetData() returned error: %v", err)
	}
	if _, err := client.GetData(ctx, "oslo"); err != nil {
		t.Fatalf("GetData() returned error: %v", err)
	}

	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("oslo", "refreshed")); got != 1 {
		t.Errorf("Expected 1 refreshed request, got %v", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("oslo", "fresh_hit")); got != 1 {
		t.Errorf("Expected 1 fresh hit request, got %v", got)
	}
	if got := testutil.ToFloat64(mc.attemptsTotal.WithLabelValues("oslo", "success")); got != 1 {
		t.Errorf("Expected 1 successful attempt, got %v", got)
	}

	// A failure past the TTL serves stale and records it.
	failing = true
	clock.Advance(2 * time.Hour)
	if _, err := client.GetData(ctx, "oslo"); err != nil {
		t.Fatalf("Expected stale fallback, got %v", err)
	}

	if got := testutil.ToFloat64(mc.staleServed.WithLabelValues("oslo")); got != 1 {
		t.Errorf("Expected 1 stale served, got %v", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("oslo", "stale_fallback")); got != 1 {
		t.Errorf("Expected 1 stale fallback request, got %v", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("oslo", "ServerError")); got != 1 {
		t.Errorf("Expected 1 recorded server error, got %v", got)
	}
}
