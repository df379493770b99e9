package weatherproof

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType tags an *Error with its failure classification.
type ErrorType string

const (
	// ErrorTypeNetwork: no response was received (connectivity, timeout).
	ErrorTypeNetwork ErrorType = "NetworkError"
	// ErrorTypeServer: the provider answered with a 5xx status.
	ErrorTypeServer ErrorType = "ServerError"
	// ErrorTypeRateLimited: the provider answered with 429.
	ErrorTypeRateLimited ErrorType = "RateLimited"
	// ErrorTypeClient: the provider answered with a non-429 4xx status.
	ErrorTypeClient ErrorType = "ClientError"
	// ErrorTypeCircuitOpen: the local breaker rejected the request
	// without contacting the provider.
	ErrorTypeCircuitOpen ErrorType = "CircuitOpenError"
	// ErrorTypeRateLimitExceeded: the local limiter rejected the request
	// without contacting the provider.
	ErrorTypeRateLimitExceeded ErrorType = "RateLimitExceededError"
	// ErrorTypeValidation: the payload arrived but was malformed or empty.
	ErrorTypeValidation ErrorType = "ValidationError"
)

// Sentinel errors for errors.Is matching against the taxonomy.
var (
	ErrNetwork           = errors.New("weatherproof: no response from provider")
	ErrServer            = errors.New("weatherproof: provider server error")
	ErrRateLimited       = errors.New("weatherproof: provider rate limited")
	ErrClient            = errors.New("weatherproof: provider rejected request")
	ErrCircuitOpen       = errors.New("weatherproof: circuit open")
	ErrRateLimitExceeded = errors.New("weatherproof: rate limit exceeded")
	ErrValidation        = errors.New("weatherproof: invalid payload")
)

var sentinelByType = map[ErrorType]error{
	ErrorTypeNetwork:           ErrNetwork,
	ErrorTypeServer:            ErrServer,
	ErrorTypeRateLimited:       ErrRateLimited,
	ErrorTypeClient:            ErrClient,
	ErrorTypeCircuitOpen:       ErrCircuitOpen,
	ErrorTypeRateLimitExceeded: ErrRateLimitExceeded,
	ErrorTypeValidation:        ErrValidation,
}

// Error is the error type surfaced by this package. Type carries the
// failure classification; the remaining fields carry request diagnostics.
type Error struct {
	Type       ErrorType
	Message    string
	Key        string
	StatusCode int
	Attempt    int
	MaxRetries int
	RequestID  string
	Timestamp  time.Time
	Cause      error
}

// IsTransient determines if an error represents a transient failure that
// might succeed on a later call. Returns true for network errors, 5xx
// responses, provider 429s, an open breaker and the local limiter (all of
// which clear with time). Returns false for non-429 4xx responses and
// validation failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeNetwork, ErrorTypeServer, ErrorTypeRateLimited,
			ErrorTypeCircuitOpen, ErrorTypeRateLimitExceeded:
			return true
		default:
			return false
		}
	}

	return false
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries+1)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches either another *Error of the same Type or the taxonomy
// sentinel for this Type, so errors.Is(err, ErrCircuitOpen) works.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	if sentinel, ok := sentinelByType[e.Type]; ok {
		return target == sentinel
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Key != "" {
		info += fmt.Sprintf("Key: %s\n", e.Key)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries+1)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
