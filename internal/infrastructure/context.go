package infrastructure

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
)

// GenerateTraceID creates a new random trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// EnsureTraceID returns a context that is guaranteed to carry a trace
// ID, generating one when absent.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateTraceID())
}

// LoggerWithContext returns a logger with trace ID from context
func LoggerWithContext(ctx context.Context) *slog.Logger {
	logger := GetLogger()
	if traceID := GetTraceID(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}
	return logger
}

// InfoContext logs an info message with context values
func InfoContext(ctx context.Context, msg string, args ...any) {
	GetLogger().InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context values
func WarnContext(ctx context.Context, msg string, args ...any) {
	GetLogger().WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context values
func ErrorContext(ctx context.Context, msg string, args ...any) {
	GetLogger().ErrorContext(ctx, msg, args...)
}

// DebugContext logs a debug message with context values
func DebugContext(ctx context.Context, msg string, args ...any) {
	GetLogger().DebugContext(ctx, msg, args...)
}

// WithComponent returns a logger tagged with a component name
func WithComponent(component string) *slog.Logger {
	return GetLogger().With(slog.String("component", component))
}

// WithError returns logger attributes for an error
func WithError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// WithFields converts a map to slog attributes
func WithFields(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
