package weatherproof

import (
	"context"

	"github.com/google/uuid"
)

// DebugConfig gates verbose per-call logging. All flags require Enabled
// and a configured Logger to have any effect.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCache     bool
	LogRateLimit bool
	LogCircuit   bool
	LogRetries   bool
	// RequestIDGen produces correlation IDs stamped on log lines and
	// errors for one logical request.
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with all categories armed,
// so WithDebug() only has to flip Enabled.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogCache:     true,
		LogRateLimit: true,
		LogCircuit:   true,
		LogRetries:   true,
		RequestIDGen: NewRequestID,
	}
}

// NewRequestID returns a random correlation ID.
func NewRequestID() string {
	return uuid.NewString()
}

const requestIDKey contextKey = "weatherproof_request_id"

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
