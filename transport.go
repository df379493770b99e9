package weatherproof

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haakond/weatherproof/internal/backoff"
)

// maxPayloadSize bounds how much of a provider response is read.
const maxPayloadSize = 10 * 1024 * 1024

// TransportConfig configures a Transport. Zero durations take reference
// defaults: 1s initial backoff, 30s max backoff, 1s jitter, 10s
// per-attempt timeout. MaxRetries: 0 is honored as "no retries".
type TransportConfig struct {
	// MaxRetries is the number of retries after the initial attempt, so
	// a logical request makes at most MaxRetries+1 physical calls.
	MaxRetries int
	// InitialBackoff is the base delay; retry n waits
	// InitialBackoff·2^(n−1) plus jitter.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential part of the delay.
	MaxBackoff time.Duration
	// JitterMax is the width of the uniform random component added to
	// every delay.
	JitterMax time.Duration
	// AttemptTimeout bounds each physical call. An attempt runs to
	// completion or to this deadline; it is never aborted in between.
	AttemptTimeout time.Duration
	// UserAgent identifies this client to the provider on every attempt
	// that does not already carry a User-Agent header.
	UserAgent string
}

// Transport performs one logical request as a bounded sequence of
// physical attempts with exponential backoff and jitter between them.
// Failures are classified as retryable (no response, 5xx, 429) or
// terminal (any other 4xx). The transport has no cache or breaker side
// effects, which keeps it independently testable.
type Transport struct {
	doer           Doer
	requests       RequestBuilder
	maxRetries     int
	attemptTimeout time.Duration
	schedule       *backoff.Schedule
	userAgent      string
	clock          Clock
	logger         Logger
	metrics        *MetricsCollector
	debug          *DebugConfig
}

// NewTransport creates a Transport issuing requests built by requests
// through doer.
func NewTransport(requests RequestBuilder, doer Doer, config TransportConfig, clock Clock) *Transport {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.JitterMax == 0 {
		config.JitterMax = time.Second
	}
	if config.AttemptTimeout == 0 {
		config.AttemptTimeout = 10 * time.Second
	}
	if doer == nil {
		doer = &http.Client{}
	}
	if clock == nil {
		clock = NewClock()
	}

	return &Transport{
		doer:           doer,
		requests:       requests,
		maxRetries:     config.MaxRetries,
		attemptTimeout: config.AttemptTimeout,
		schedule: backoff.NewSchedule(
			backoff.ExponentialJitter{},
			config.InitialBackoff,
			config.MaxBackoff,
			config.JitterMax,
		),
		userAgent: config.UserAgent,
		clock:     clock,
	}
}

// Fetch performs one logical request for key: up to MaxRetries+1 physical
// attempts, never delaying before the first. The first success or first
// terminal classification returns immediately; exhausting the budget on
// retryable failures escalates the last error as terminal. The outcome
// reports how many physical calls were made and, on success, the
// provider-declared payload freshness.
func (t *Transport) Fetch(ctx context.Context, key string) Outcome {
	requestID := requestIDFromContext(ctx)
	if requestID == "" && t.debug != nil && t.debug.Enabled && t.debug.RequestIDGen != nil {
		requestID = t.debug.RequestIDGen()
	}

	var lastErr error
	totalAttempts := t.maxRetries + 1

	for attempt := 0; attempt < totalAttempts; attempt++ {
		if attempt > 0 {
			delay := t.schedule.Delay(attempt)
			if t.debug != nil && t.debug.Enabled && t.debug.LogRetries && t.logger != nil {
				t.logger.Info("Scheduling retry", "requestID", requestID, "key", key, "attempt", attempt+1, "totalAttempts", totalAttempts, "backoff", delay)
			}
			t.metrics.RecordRetry(key, attempt)
			t.metrics.RecordBackoffDelay(key, delay)

			if err := t.clock.Sleep(ctx, delay); err != nil {
				out := Terminal(t.newError(ErrorTypeNetwork, "canceled while waiting to retry", err, key, attempt, requestID, 0))
				out.Attempts = attempt
				return out
			}
		}

		out := t.attemptOnce(ctx, key, attempt, requestID)
		out.Attempts = attempt + 1
		if out.Kind != OutcomeRetryable {
			return out
		}
		lastErr = out.Err
	}

	// Budget exhausted on retryable failures only; the last observed
	// error escalates as terminal.
	out := Terminal(lastErr)
	out.Attempts = totalAttempts
	return out
}

func (t *Transport) attemptOnce(ctx context.Context, key string, attempt int, requestID string) Outcome {
	attemptCtx := ctx
	if t.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, t.attemptTimeout)
		defer cancel()
	}

	req, err := t.requests(attemptCtx, key)
	if err != nil {
		return Terminal(t.newError(ErrorTypeClient, "building provider request failed", err, key, attempt, requestID, 0))
	}
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	if t.debug != nil && t.debug.Enabled && t.debug.LogRequests && t.logger != nil {
		t.logger.Debug("Starting attempt", "requestID", requestID, "key", key, "attempt", attempt+1, "url", req.URL.String())
	}

	start := t.clock.Now()
	resp, err := t.doer.Do(req)
	duration := t.clock.Now().Sub(start)

	if err != nil {
		t.metrics.RecordAttempt(key, "network_error", duration)
		return Retryable(t.newError(ErrorTypeNetwork, "no response from provider", err, key, attempt, requestID, 0))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
		if readErr != nil {
			t.metrics.RecordAttempt(key, "network_error", duration)
			return Retryable(t.newError(ErrorTypeNetwork, "reading provider response failed", readErr, key, attempt, requestID, resp.StatusCode))
		}
		t.metrics.RecordAttempt(key, "success", duration)
		out := Succeed(body)
		out.Freshness = providerFreshness(resp.Header, t.clock.Now())
		return out

	case resp.StatusCode == http.StatusTooManyRequests:
		t.metrics.RecordAttempt(key, "rate_limited", duration)
		return Retryable(t.newError(ErrorTypeRateLimited, "provider rate limited the request", nil, key, attempt, requestID, resp.StatusCode))

	case resp.StatusCode >= 500:
		t.metrics.RecordAttempt(key, "server_error", duration)
		return Retryable(t.newError(ErrorTypeServer, fmt.Sprintf("provider returned %d", resp.StatusCode), nil, key, attempt, requestID, resp.StatusCode))

	default:
		// Non-429 4xx and anything else unexpected: no retry can fix it.
		t.metrics.RecordAttempt(key, "client_error", duration)
		return Terminal(t.newError(ErrorTypeClient, fmt.Sprintf("provider rejected request with %d", resp.StatusCode), nil, key, attempt, requestID, resp.StatusCode))
	}
}

func (t *Transport) newError(errorType ErrorType, message string, cause error, key string, attempt int, requestID string, statusCode int) *Error {
	return &Error{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		Key:        key,
		StatusCode: statusCode,
		Attempt:    attempt + 1,
		MaxRetries: t.maxRetries,
		RequestID:  requestID,
		Timestamp:  t.clock.Now(),
	}
}

// providerFreshness returns the payload lifetime the provider declared on
// the response, preferring Cache-Control max-age over Expires, or 0 when
// nothing usable was declared. The client uses it to clamp the cache TTL
// so the local copy never outlives the provider's own freshness window.
func providerFreshness(header http.Header, now time.Time) time.Duration {
	for _, part := range strings.Split(header.Get("Cache-Control"), ",") {
		part = strings.TrimSpace(part)
		value, found := strings.CutPrefix(part, "max-age=")
		if !found {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, "\""))
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if expires := header.Get("Expires"); expires != "" {
		t, err := http.ParseTime(expires)
		if err != nil || !t.After(now) {
			return 0
		}
		return t.Sub(now)
	}

	return 0
}
