package weatherproof

import (
	"fmt"
	"net/http"
	"time"
)

// WithMaxRetries sets the maximum number of retries per logical request;
// n retries means up to n+1 physical attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the backoff before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff caps the exponential part of the backoff.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithJitterMax sets the upper bound of the random delay added on top of
// each backoff.
func WithJitterMax(d time.Duration) Option {
	return func(c *Client) {
		c.jitterMax = d
	}
}

// WithAttemptTimeout sets the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.attemptTimeout = d
	}
}

// WithTTL sets how long fetched payloads stay fresh in the cache.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// WithStore sets a custom cache backing store, e.g. a RedisStore shared
// between processes.
func WithStore(store Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithCacheDisabled turns the cache off entirely: every call goes
// upstream and no stale fallback exists.
func WithCacheDisabled() Option {
	return func(c *Client) {
		c.cacheEnabled = false
	}
}

// WithRateLimitInterval sets the minimum interval between completed
// requests per key. Zero keeps only the in-flight gate.
func WithRateLimitInterval(d time.Duration) Option {
	return func(c *Client) {
		c.rateInterval = d
	}
}

// WithAutoRetryDelays sets the supervisory retry delays used when a fetch
// fails and no cached fallback exists. An empty slice disables them.
func WithAutoRetryDelays(delays ...time.Duration) Option {
	return func(c *Client) {
		c.autoRetryDelays = delays
	}
}

// WithCircuitBreaker sets the circuit breaker configuration. Zero fields
// keep their defaults.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breakerConfig = config
	}
}

// WithUserAgent sets the User-Agent header stamped on provider requests
// that do not already carry one.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithValidator sets a payload validator run after every successful
// fetch, before the payload is cached.
func WithValidator(fn Validator) Option {
	return func(c *Client) {
		c.validator = fn
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.doer = client
	}
}

// WithDoer sets a custom transport implementation; *http.Client
// satisfies Doer.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithClock sets the time source used for freshness checks, cooldowns and
// backoff sleeps. Tests inject a fake clock here.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request
// IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateRequestConfig()...)
	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateSupervisorConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

// validateRequestConfig validates the request construction dependencies.
func (c *Client) validateRequestConfig() []string {
	var errors []string

	if c.requests == nil {
		errors = append(errors, "request builder cannot be nil")
	}

	if c.doer == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}

	return errors
}

// validateRetryConfig validates retry-related configuration.
func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.maxRetries < 0 {
		errors = append(errors, "maxRetries must be non-negative")
	}

	if c.initialBackoff <= 0 {
		errors = append(errors, "initialBackoff must be positive")
	}

	if c.maxBackoff < c.initialBackoff {
		errors = append(errors, "maxBackoff must be greater than or equal to initialBackoff")
	}

	if c.jitterMax < 0 {
		errors = append(errors, "jitterMax must be non-negative")
	}

	if c.attemptTimeout <= 0 {
		errors = append(errors, "attemptTimeout must be positive")
	}

	return errors
}

// validateCacheConfig validates cache configuration.
func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.cacheEnabled && c.ttl <= 0 {
		errors = append(errors, "ttl must be positive when the cache is enabled")
	}

	return errors
}

// validateRateLimiterConfig validates rate limiter configuration.
func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if c.rateInterval < 0 {
		errors = append(errors, "rateLimitInterval must be non-negative")
	}

	return errors
}

// validateCircuitBreakerConfig validates circuit breaker configuration.
// Zero values mean defaults, so only explicit nonsense is rejected.
func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.breakerConfig.FailureThreshold < 0 {
		errors = append(errors, "circuitBreaker FailureThreshold must be non-negative")
	}
	if c.breakerConfig.BaseCooldown < 0 {
		errors = append(errors, "circuitBreaker BaseCooldown must be non-negative")
	}
	if c.breakerConfig.MaxCooldown < 0 {
		errors = append(errors, "circuitBreaker MaxCooldown must be non-negative")
	}
	if c.breakerConfig.BaseCooldown > 0 && c.breakerConfig.MaxCooldown > 0 &&
		c.breakerConfig.MaxCooldown < c.breakerConfig.BaseCooldown {
		errors = append(errors, "circuitBreaker MaxCooldown must be greater than or equal to BaseCooldown")
	}

	return errors
}

// validateSupervisorConfig validates supervisory retry configuration.
func (c *Client) validateSupervisorConfig() []string {
	var errors []string

	for i, delay := range c.autoRetryDelays {
		if delay <= 0 {
			errors = append(errors, fmt.Sprintf("autoRetryDelays[%d] must be positive", i))
		}
	}

	return errors
}

// validateDebugConfig validates debug configuration.
func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

// validateExtremeValues validates that configuration values are within
// reasonable bounds.
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.maxRetries > 100 {
		errors = append(errors, "maxRetries > 100 may cause excessive resource usage")
	}

	if c.initialBackoff > 10*time.Minute {
		errors = append(errors, "initialBackoff > 10m may cause very long delays")
	}
	if c.maxBackoff > time.Hour {
		errors = append(errors, "maxBackoff > 1h may cause extremely long delays")
	}

	if c.attemptTimeout > 10*time.Minute {
		errors = append(errors, "attemptTimeout > 10m may cause requests to hang for too long")
	}

	if c.cacheEnabled && c.ttl > 7*24*time.Hour {
		errors = append(errors, "ttl > 168h may cause stale data issues")
	}

	return errors
}
