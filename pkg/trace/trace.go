package trace

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// GenerateTraceID generates a new trace ID.
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext returns the trace_id stored in the context, if any.
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(contextKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext stores the trace_id in the context.
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, traceID)
}

// HeaderName is the HTTP header trace IDs travel in.
const HeaderName = "X-Trace-ID"
