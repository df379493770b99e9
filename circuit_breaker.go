package weatherproof

import (
	"context"
	"sort"
	"sync"
	"time"
)

// breakerEntry is the state machine for one key. Transitions happen under
// the entry mutex; the guarded operation runs outside it.
type breakerEntry struct {
	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	cooldown    time.Duration
	openPeriods int
	probing     bool
}

// CircuitBreaker tracks one breaker state machine per key. Keys never
// share failure statistics: a provider outage observed through one key
// does not gate requests for another.
type CircuitBreaker struct {
	config  CircuitBreakerConfig
	clock   Clock
	logger  Logger
	metrics *MetricsCollector

	mu   sync.RWMutex
	keys map[string]*breakerEntry
}

// NewCircuitBreaker creates a circuit breaker. Zero config fields take
// reference defaults: threshold 5, base cooldown 15s, max cooldown 10m.
func NewCircuitBreaker(config CircuitBreakerConfig, clock Clock) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.BaseCooldown == 0 {
		config.BaseCooldown = 15 * time.Second
	}
	if config.MaxCooldown == 0 {
		config.MaxCooldown = 10 * time.Minute
	}
	if clock == nil {
		clock = NewClock()
	}

	return &CircuitBreaker{
		config: config,
		clock:  clock,
		keys:   make(map[string]*breakerEntry),
	}
}

func (cb *CircuitBreaker) entry(key string) *breakerEntry {
	cb.mu.RLock()
	e, ok := cb.keys[key]
	cb.mu.RUnlock()
	if ok {
		return e
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if e, ok = cb.keys[key]; ok {
		return e
	}
	e = &breakerEntry{
		state:    StateClosed,
		cooldown: cb.config.BaseCooldown,
	}
	cb.keys[key] = e
	return e
}

// Execute runs op under the breaker for key and records its outcome.
// While the breaker is open and the cooldown has not elapsed, op is not
// invoked and a terminal CircuitOpenError outcome is returned; such
// rejections do not touch failure statistics, only real attempt
// outcomes do. force admits a half-open probe even while the cooldown is
// still running, which is the manual-override path; it never admits a
// second concurrent probe.
func (cb *CircuitBreaker) Execute(ctx context.Context, key string, force bool, op Operation) Outcome {
	e := cb.entry(key)

	if !cb.admit(e, key, force) {
		return Terminal(&Error{
			Type:      ErrorTypeCircuitOpen,
			Message:   "circuit open, request rejected without contacting provider",
			Key:       key,
			Timestamp: cb.clock.Now(),
		})
	}

	out := op(ctx)

	if out.Kind == OutcomeSuccess {
		cb.recordSuccess(e, key)
	} else {
		cb.recordFailure(e, key)
	}
	return out
}

func (cb *CircuitBreaker) admit(e *breakerEntry, key string, force bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if force || cb.clock.Now().Sub(e.openedAt) >= e.cooldown {
			e.state = StateHalfOpen
			e.probing = true
			if cb.logger != nil {
				cb.logger.Info("Circuit breaker half-open, admitting probe", "key", key, "forced", force)
			}
			cb.metrics.RecordCircuitBreakerState(key, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		// Exactly one probe tests recovery; everyone else is rejected.
		if e.probing {
			return false
		}
		e.probing = true
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess(e *breakerEntry, key string) {
	e.mu.Lock()
	recovered := e.state != StateClosed
	e.state = StateClosed
	e.failures = 0
	e.openPeriods = 0
	e.cooldown = cb.config.BaseCooldown
	e.probing = false
	e.mu.Unlock()

	if recovered && cb.logger != nil {
		cb.logger.Info("Circuit breaker closed after successful probe", "key", key)
	}
	cb.metrics.RecordCircuitBreakerState(key, StateClosed)
}

func (cb *CircuitBreaker) recordFailure(e *breakerEntry, key string) {
	now := cb.clock.Now()

	e.mu.Lock()
	switch e.state {
	case StateClosed:
		e.failures++
		if e.failures >= cb.config.FailureThreshold {
			e.state = StateOpen
			e.openedAt = now
			e.openPeriods = 1
			e.cooldown = cb.config.BaseCooldown
			e.probing = false
			cb.logTripped(key, e.failures, e.cooldown)
			cb.metrics.RecordCircuitBreakerState(key, StateOpen)
			cb.metrics.RecordCircuitBreakerTrip(key)
		}
	case StateHalfOpen:
		// The probe failed: reopen and wait longer before the next one.
		e.failures++
		e.state = StateOpen
		e.openedAt = now
		e.openPeriods++
		e.cooldown = cb.growCooldown(e.openPeriods)
		e.probing = false
		cb.logTripped(key, e.failures, e.cooldown)
		cb.metrics.RecordCircuitBreakerState(key, StateOpen)
		cb.metrics.RecordCircuitBreakerTrip(key)
	case StateOpen:
		// Outcome of an attempt admitted before the trip; the open state
		// already accounts for the failure run.
	}
	e.mu.Unlock()
}

func (cb *CircuitBreaker) logTripped(key string, failures int, cooldown time.Duration) {
	if cb.logger != nil {
		cb.logger.Warn("Circuit breaker opened", "key", key, "consecutiveFailures", failures, "cooldown", cooldown)
	}
}

// growCooldown doubles the base cooldown for every consecutive open
// period, capped at MaxCooldown.
func (cb *CircuitBreaker) growCooldown(openPeriods int) time.Duration {
	if openPeriods < 1 {
		openPeriods = 1
	}
	cooldown := cb.config.BaseCooldown
	for i := 1; i < openPeriods; i++ {
		cooldown *= 2
		if cooldown >= cb.config.MaxCooldown || cooldown < 0 {
			return cb.config.MaxCooldown
		}
	}
	if cooldown > cb.config.MaxCooldown {
		return cb.config.MaxCooldown
	}
	return cooldown
}

// State returns the current state for key. Breakers transition lazily, so
// an open breaker whose cooldown elapsed still reports open until the
// next Execute admits a probe.
func (cb *CircuitBreaker) State(key string) CircuitState {
	e := cb.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ConsecutiveFailures returns the consecutive failure count for key.
func (cb *CircuitBreaker) ConsecutiveFailures(key string) int {
	e := cb.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

// Suppressed reports whether requests for key are currently rejected
// without contacting the provider: open state with cooldown still running.
func (cb *CircuitBreaker) Suppressed(key string) bool {
	e := cb.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateOpen && cb.clock.Now().Sub(e.openedAt) < e.cooldown
}

// Status returns a read-only snapshot for key.
func (cb *CircuitBreaker) Status(key string) BreakerStatus {
	e := cb.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return BreakerStatus{
		Key:                 key,
		State:               e.state,
		ConsecutiveFailures: e.failures,
		OpenedAt:            e.openedAt,
		Cooldown:            e.cooldown,
	}
}

// Snapshot returns the status of every key the breaker has seen, sorted
// by key.
func (cb *CircuitBreaker) Snapshot() []BreakerStatus {
	cb.mu.RLock()
	keys := make([]string, 0, len(cb.keys))
	for key := range cb.keys {
		keys = append(keys, key)
	}
	cb.mu.RUnlock()

	sort.Strings(keys)
	statuses := make([]BreakerStatus, 0, len(keys))
	for _, key := range keys {
		statuses = append(statuses, cb.Status(key))
	}
	return statuses
}

// Reset drops all breaker state for key, returning it to closed with the
// base cooldown. Used for operator-triggered recovery and test isolation.
func (cb *CircuitBreaker) Reset(key string) {
	cb.mu.Lock()
	delete(cb.keys, key)
	cb.mu.Unlock()

	if cb.logger != nil {
		cb.logger.Info("Circuit breaker reset", "key", key)
	}
	cb.metrics.RecordCircuitBreakerState(key, StateClosed)
}
