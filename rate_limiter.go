package weatherproof

import (
	"time"

	"github.com/haakond/weatherproof/internal/flight"
)

// RateLimiter bounds how often a new logical request may start per key:
// at most one request in flight, and no sooner than a minimum interval
// after the previous one completed. Retries inside a logical request are
// the transport's concern and are not limited here.
type RateLimiter struct {
	interval time.Duration
	clock    Clock
	tracker  *flight.Tracker
	logger   Logger
	metrics  *MetricsCollector
}

// NewRateLimiter creates a rate limiter enforcing the given minimum
// interval between completed logical requests for the same key.
func NewRateLimiter(interval time.Duration, clock Clock) *RateLimiter {
	if clock == nil {
		clock = NewClock()
	}
	return &RateLimiter{
		interval: interval,
		clock:    clock,
		tracker:  flight.New(),
	}
}

// Allow reports whether a new logical request for key may start, and
// reserves the in-flight slot when it may. A caller that got true must
// call Done once the logical request completes, whatever its outcome.
func (r *RateLimiter) Allow(key string) bool {
	if r.intervalPending(key) {
		r.reject(key, "interval")
		return false
	}
	if !r.tracker.Begin(key) {
		r.reject(key, "in_flight")
		return false
	}
	return true
}

// Done releases key's in-flight slot and stamps the completion time the
// next inter-request interval is measured from.
func (r *RateLimiter) Done(key string) {
	r.tracker.End(key, r.clock.Now())
}

// Limited reports whether Allow would currently deny key, without
// reserving anything.
func (r *RateLimiter) Limited(key string) bool {
	return r.tracker.InFlight(key) || r.intervalPending(key)
}

// Reset clears all limiter state for key, releasing any in-flight mark
// and forgetting the last completion.
func (r *RateLimiter) Reset(key string) {
	r.tracker.Forget(key)
	if r.logger != nil {
		r.logger.Info("Rate limiter reset", "key", key)
	}
}

func (r *RateLimiter) intervalPending(key string) bool {
	if r.interval <= 0 {
		return false
	}
	last, ok := r.tracker.LastCompleted(key)
	if !ok {
		return false
	}
	return r.clock.Now().Sub(last) < r.interval
}

func (r *RateLimiter) reject(key, reason string) {
	if r.logger != nil {
		r.logger.Debug("Rate limiter rejected request", "key", key, "reason", reason)
	}
	r.metrics.RecordRateLimiterRejection(key, reason)
}
