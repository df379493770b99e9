// Package weatherproof shields a consumer from an unreliable, rate-limited
// upstream data provider with composable reliability primitives:
//
//   - TTL cache with explicit fresh / stale / absent lookup states and
//     stale data served as a degraded fallback when the provider is down
//   - Retrying transport (bounded attempts, exponential backoff + jitter,
//     retryable vs terminal failure classification)
//   - Per-key circuit breaker (closed / open / half-open states with a
//     cooldown that grows while the provider keeps failing)
//   - Per-key rate limiting (single in-flight request, minimum interval
//     between completed requests)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Every failure classified as data, not control flow: callers see a
//     typed *Error and a Stale/Degraded flag pair, never a panic
//   - Safe concurrent use of a single *Client across many keys with no
//     cross-key locking
//   - Testability – the clock, transport and backing store are pluggable
//
// Typical usage:
//
//	client := weatherproof.New(builder,
//	    weatherproof.WithTTL(time.Hour),
//	    weatherproof.WithMaxRetries(5),
//	    weatherproof.WithCircuitBreaker(weatherproof.CircuitBreakerConfig{}),
//	    weatherproof.WithSimpleLogger(),
//	)
//	res, err := client.GetData(ctx, "weather:oslo")
//
// GetData prefers returning stale cached data flagged Degraded over
// surfacing an error, so long as any value was ever fetched for the key.
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger or NewZapLogger) + enable debug flags selectively
// (WithDebug / WithDebugConfig) for insight without noise.
package weatherproof
