package transport

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	// requestIDKey is the context key for the logical request id
	requestIDKey contextKey = "request_id"
	// HeaderXRequestID is the default header name carrying the request id
	HeaderXRequestID = "X-Request-ID"
)

// WithRequestID attaches a logical request id to the context. Every attempt
// sent with a descendant context reuses it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id from context if present
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns the context's request id or a new uuid
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return newUUID()
}

func newUUID() string {
	return uuid.New().String()
}
