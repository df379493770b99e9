package weatherproof

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Client is the supervisor callers interact with. For each key it
// composes the cache, the rate limiter, the circuit breaker and the
// retrying transport into one GetData operation, and it prefers returning
// stale cached data flagged Degraded over surfacing an error whenever any
// value was ever fetched for the key. It is safe for concurrent use;
// distinct keys never contend on shared state.
type Client struct {
	requests        RequestBuilder
	doer            Doer
	maxRetries      int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	jitterMax       time.Duration
	attemptTimeout  time.Duration
	ttl             time.Duration
	rateInterval    time.Duration
	autoRetryDelays []time.Duration
	breakerConfig   CircuitBreakerConfig
	userAgent       string
	validator       Validator
	store           Store
	cacheEnabled    bool
	clock           Clock
	logger          Logger
	metrics         *MetricsCollector
	debug           *DebugConfig
	validationError error

	cache     *Cache
	limiter   *RateLimiter
	breaker   *CircuitBreaker
	transport *Transport

	mu          sync.Mutex
	lastFailure map[string]*Error
}

// New constructs a Client using the provided functional options. requests
// maps each key to its provider request and is invoked once per physical
// attempt. A best effort validation is performed; call IsValid /
// ValidationError for errors.
func New(requests RequestBuilder, options ...Option) *Client {
	client := &Client{
		requests:        requests,
		doer:            &http.Client{},
		maxRetries:      5,
		initialBackoff:  time.Second,
		maxBackoff:      30 * time.Second,
		jitterMax:       time.Second,
		attemptTimeout:  10 * time.Second,
		ttl:             time.Hour,
		rateInterval:    time.Minute,
		autoRetryDelays: []time.Duration{2 * time.Second, 5 * time.Second},
		breakerConfig:   CircuitBreakerConfig{},
		cacheEnabled:    true,
		clock:           NewClock(),
		debug:           DefaultDebugConfig(),
		lastFailure:     make(map[string]*Error),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.assemble()
	return client
}

// assemble wires the components from the resolved configuration.
func (c *Client) assemble() {
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	c.cache = NewCache(c.store, c.clock, c.logger)

	c.limiter = NewRateLimiter(c.rateInterval, c.clock)
	c.limiter.logger = c.logger
	c.limiter.metrics = c.metrics

	c.breaker = NewCircuitBreaker(c.breakerConfig, c.clock)
	c.breaker.logger = c.logger
	c.breaker.metrics = c.metrics

	c.transport = NewTransport(c.requests, c.doer, TransportConfig{
		MaxRetries:     c.maxRetries,
		InitialBackoff: c.initialBackoff,
		MaxBackoff:     c.maxBackoff,
		JitterMax:      c.jitterMax,
		AttemptTimeout: c.attemptTimeout,
		UserAgent:      c.userAgent,
	}, c.clock)
	c.transport.logger = c.logger
	c.transport.metrics = c.metrics
	c.transport.debug = c.debug
}

// GetData returns the current value for key. A fresh cache entry is
// returned without any upstream traffic. Otherwise the call goes through
// the rate limiter and the circuit breaker to the retrying transport, the
// cache is refreshed on success, and on failure any cached value, however
// old, is returned with Stale/Degraded set instead of an error.
//
// Per-call behavior is controlled through the context:
// WithContextForceRefresh bypasses the fresh-cache check and the
// breaker's remaining cooldown, WithContextCacheDisabled skips the cache
// entirely, WithContextCacheTTL overrides the TTL for this call.
func (c *Client) GetData(ctx context.Context, key string) (*Result, error) {
	start := c.clock.Now()
	ctrl := requestControlFromContext(ctx)
	useCache := c.cacheEnabled && !ctrl.DisableCache

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
		ctx = withRequestID(ctx, requestID)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "key", key, "forceRefresh", ctrl.ForceRefresh)
	}

	if useCache && !ctrl.ForceRefresh {
		if lookup, ok := c.cache.Get(ctx, key); ok && lookup.State == CacheFresh {
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache hit", "requestID", requestID, "key", key, "expiresAt", lookup.ExpiresAt)
			}
			c.metrics.RecordCacheHit(key)
			c.metrics.RecordRequest(key, "fresh_hit", c.clock.Now().Sub(start))
			return resultFromLookup(lookup, false), nil
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Cache miss", "requestID", requestID, "key", key)
		}
		c.metrics.RecordCacheMiss(key)
	}

	if !c.limiter.Allow(key) {
		if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
			c.logger.Warn("Rate limit exceeded", "requestID", requestID, "key", key)
		}
		if useCache {
			if lookup, ok := c.cache.Get(ctx, key); ok {
				c.metrics.RecordStaleServed(key)
				c.metrics.RecordRequest(key, "stale_fallback", c.clock.Now().Sub(start))
				return resultFromLookup(lookup, true), nil
			}
		}
		err := &Error{
			Type:      ErrorTypeRateLimitExceeded,
			Message:   "request rate limited locally",
			Key:       key,
			RequestID: requestID,
			Timestamp: c.clock.Now(),
		}
		c.recordFailure(key, err)
		c.metrics.RecordRequest(key, "rejected", c.clock.Now().Sub(start))
		return nil, err
	}
	defer c.limiter.Done(key)

	op := c.operation(key, requestID)
	out := c.breaker.Execute(ctx, key, ctrl.ForceRefresh, op)

	if out.Kind == OutcomeSuccess {
		return c.finishSuccess(ctx, key, ctrl, out, start, requestID)
	}
	c.recordFailure(key, out.Err)

	// Any cached value, however old, beats an error.
	if useCache {
		if lookup, ok := c.cache.Get(ctx, key); ok {
			if c.logger != nil {
				c.logger.Warn("Serving stale data after fetch failure", "requestID", requestID, "key", key, "error", out.Err.Error())
			}
			c.metrics.RecordStaleServed(key)
			c.metrics.RecordRequest(key, "stale_fallback", c.clock.Now().Sub(start))
			return resultFromLookup(lookup, true), nil
		}
	}

	// No fallback exists: a bounded number of supervisory retries with
	// fixed delays, still through the breaker. Pointless once the breaker
	// rejects, so a circuit-open outcome ends the loop early.
	for _, delay := range c.autoRetryDelays {
		if errors.Is(out.Err, ErrCircuitOpen) {
			break
		}
		if err := c.clock.Sleep(ctx, delay); err != nil {
			break
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Supervisory retry", "requestID", requestID, "key", key, "delay", delay)
		}
		c.metrics.RecordAutoRetry(key)

		out = c.breaker.Execute(ctx, key, false, op)
		if out.Kind == OutcomeSuccess {
			return c.finishSuccess(ctx, key, ctrl, out, start, requestID)
		}
		c.recordFailure(key, out.Err)
	}

	c.metrics.RecordRequest(key, "error", c.clock.Now().Sub(start))
	return nil, out.Err
}

// operation wraps one transport fetch plus payload validation: an empty
// or invalid payload is terminal, counts as a breaker failure, and is
// never cached.
func (c *Client) operation(key, requestID string) Operation {
	return func(ctx context.Context) Outcome {
		out := c.transport.Fetch(ctx, key)
		if out.Kind != OutcomeSuccess {
			return out
		}

		var cause error
		if len(out.Payload) == 0 {
			cause = errors.New("empty payload")
		} else if c.validator != nil {
			cause = c.validator(out.Payload)
		}
		if cause != nil {
			failed := Terminal(&Error{
				Type:       ErrorTypeValidation,
				Message:    "provider payload failed validation",
				Cause:      cause,
				Key:        key,
				Attempt:    out.Attempts,
				MaxRetries: c.maxRetries,
				RequestID:  requestID,
				Timestamp:  c.clock.Now(),
			})
			failed.Attempts = out.Attempts
			return failed
		}
		return out
	}
}

func (c *Client) finishSuccess(ctx context.Context, key string, ctrl RequestControl, out Outcome, start time.Time, requestID string) (*Result, error) {
	ttl := c.ttl
	if ctrl.TTL > 0 {
		ttl = ctrl.TTL
	}
	// The local copy must not outlive the provider's own freshness window.
	if out.Freshness > 0 && out.Freshness < ttl {
		ttl = out.Freshness
	}

	now := c.clock.Now()
	if c.cacheEnabled && !ctrl.DisableCache {
		c.cache.Put(ctx, key, out.Payload, ttl)
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Payload cached", "requestID", requestID, "key", key, "ttl", ttl)
		}
	}

	c.clearFailure(key)
	c.metrics.RecordRequest(key, "refreshed", now.Sub(start))
	return &Result{
		Payload:   out.Payload,
		Stale:     false,
		Degraded:  false,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func resultFromLookup(lookup *Lookup, degraded bool) *Result {
	return &Result{
		Payload:   lookup.Payload,
		Stale:     lookup.State == CacheStale,
		Degraded:  degraded,
		CreatedAt: lookup.CreatedAt,
		ExpiresAt: lookup.ExpiresAt,
	}
}

func (c *Client) recordFailure(key string, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Type:      ErrorTypeNetwork,
			Message:   err.Error(),
			Key:       key,
			Timestamp: c.clock.Now(),
		}
	}
	c.mu.Lock()
	c.lastFailure[key] = e
	c.mu.Unlock()
	c.metrics.RecordError(key, string(e.Type))
}

func (c *Client) clearFailure(key string) {
	c.mu.Lock()
	delete(c.lastFailure, key)
	c.mu.Unlock()
}

// LastFailure returns a human-readable classification of the most recent
// failure observed for key, or the empty string when the last call
// succeeded.
func (c *Client) LastFailure(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.lastFailure[key]; ok {
		return e.Error()
	}
	return ""
}

// BreakerState returns the circuit breaker state for key.
func (c *Client) BreakerState(key string) CircuitState {
	return c.breaker.State(key)
}

// ConsecutiveFailures returns the breaker's consecutive failure count for
// key.
func (c *Client) ConsecutiveFailures(key string) int {
	return c.breaker.ConsecutiveFailures(key)
}

// RateLimited reports whether a new request for key would currently be
// rejected by the local rate limiter.
func (c *Client) RateLimited(key string) bool {
	return c.limiter.Limited(key)
}

// RetrySuppressed reports whether upstream fetches for key are currently
// pointless: the breaker is open and its cooldown has not elapsed.
func (c *Client) RetrySuppressed(key string) bool {
	return c.breaker.Suppressed(key)
}

// BreakerSnapshot returns the breaker status of every key seen so far.
func (c *Client) BreakerSnapshot() []BreakerStatus {
	return c.breaker.Snapshot()
}

// ResetBreaker drops all breaker state for key, used to recover from a
// stuck open state without restarting the process.
func (c *Client) ResetBreaker(key string) {
	c.breaker.Reset(key)
}

// ResetRateLimit clears the rate limiter state for key.
func (c *Client) ResetRateLimit(key string) {
	c.limiter.Reset(key)
}

// InvalidateCache removes the cached entry for key immediately.
func (c *Client) InvalidateCache(ctx context.Context, key string) {
	c.cache.Invalidate(ctx, key)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (c *Client) ValidateConfigurationStrict() {
	if err := c.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
}
