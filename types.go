package weatherproof

import (
	"context"
	"net/http"
	"time"
)

// RequestBuilder maps a resource key to an outgoing provider request.
// It is called once per physical attempt so every attempt gets a fresh,
// re-issuable request bound to the attempt's context.
type RequestBuilder func(ctx context.Context, key string) (*http.Request, error)

// Doer abstracts the underlying HTTP client; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator inspects a fetched payload before it is accepted. Returning a
// non-nil error classifies the fetch as a validation failure: it counts
// against the circuit breaker and is never cached.
type Validator func(payload []byte) error

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// a closed breaker open.
	FailureThreshold int
	// BaseCooldown is the open-state duration after the first trip. Each
	// consecutive open period doubles it.
	BaseCooldown time.Duration
	// MaxCooldown caps the growth of the cooldown.
	MaxCooldown time.Duration
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerStatus is a read-only snapshot of one key's breaker.
type BreakerStatus struct {
	Key                 string
	State               CircuitState
	ConsecutiveFailures int
	OpenedAt            time.Time
	Cooldown            time.Duration
}

// CacheState classifies a cache lookup that found an entry.
type CacheState int

const (
	// CacheFresh means the entry has not expired.
	CacheFresh CacheState = iota
	// CacheStale means the entry expired but its payload is still usable
	// as a degraded fallback.
	CacheStale
)

// Entry is the stored form of a cached payload. Entries are replaced on
// refresh, never mutated.
type Entry struct {
	Key       string    `json:"-"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Lookup is the result of a cache read that found an entry.
type Lookup struct {
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
	State     CacheState
}

// Store is the cache backing store. Implementations must be safe for
// concurrent use. Expired entries are retained until replaced or deleted;
// freshness is the Cache's concern, not the store's.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// OutcomeSuccess carries a payload from a 2xx provider response.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetryable is a failure worth another physical attempt:
	// no response, 5xx, or provider-side 429.
	OutcomeRetryable
	// OutcomeTerminal is a failure no retry can fix.
	OutcomeTerminal
)

// Outcome is the tagged result passed between the transport, the breaker
// and the client, so failure handling is data rather than control flow.
type Outcome struct {
	Kind OutcomeKind
	// Payload is set only for OutcomeSuccess.
	Payload []byte
	// Err is set for both failure kinds.
	Err error
	// Attempts counts the physical calls made for this logical request.
	Attempts int
	// Freshness is the provider-declared freshness lifetime of the
	// payload (from Cache-Control/Expires), or 0 if none was declared.
	Freshness time.Duration
}

// Succeed builds a success outcome.
func Succeed(payload []byte) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

// Retryable builds a retryable failure outcome.
func Retryable(err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Err: err}
}

// Terminal builds a terminal failure outcome.
func Terminal(err error) Outcome {
	return Outcome{Kind: OutcomeTerminal, Err: err}
}

// Operation is the unit of work a circuit breaker guards: one logical
// request through the retrying transport.
type Operation func(ctx context.Context) Outcome

// Result is what GetData returns to callers.
type Result struct {
	// Payload is the raw provider payload.
	Payload []byte
	// Stale is true when Payload came from an expired cache entry.
	Stale bool
	// Degraded is true when Payload is not the outcome of a successful
	// upstream fetch on this call: the provider was unreachable, rate
	// limited locally, or short-circuited, and the cache stood in.
	Degraded bool
	// CreatedAt is when the payload was originally fetched.
	CreatedAt time.Time
	// ExpiresAt is when the payload stops being fresh.
	ExpiresAt time.Time
}

// Option represents a configuration option for the Client.
type Option func(*Client)

// Context keys for per-request control.
type contextKey string

const requestControlKey contextKey = "weatherproof_request_control"

// RequestControl carries per-call overrides for GetData, attached to the
// context with the WithContext* helpers.
type RequestControl struct {
	// ForceRefresh bypasses the fresh-cache check and the breaker's
	// remaining cooldown (a manual override still limited to one probe).
	ForceRefresh bool
	// DisableCache skips both cache reads and writes for this call.
	DisableCache bool
	// TTL overrides the client TTL for this call when > 0.
	TTL time.Duration
}
