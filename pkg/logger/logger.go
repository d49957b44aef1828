package logger

import (
	"context"

	"go.uber.org/zap"

	"mailsync/pkg/trace"
)

var Log *zap.Logger

func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace extracts the trace_id from the context and attaches it to the
// logger so one sync pass is greppable end to end.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
