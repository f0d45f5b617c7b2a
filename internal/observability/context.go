package observability

import (
	"context"

	"go.uber.org/zap"
)

// Context keys set by the HTTP correlation middleware.
const (
	correlationIDKey = "correlation_id"
	loggerKey        = "logger"
)

// WithCorrelationID stores the request correlation id and a logger tagged with it.
func WithCorrelationID(ctx context.Context, corrID string, logger *zap.Logger) context.Context {
	ctx = context.WithValue(ctx, correlationIDKey, corrID)
	if logger != nil {
		ctx = context.WithValue(ctx, loggerKey, logger.With(zap.String("correlation_id", corrID)))
	}
	return ctx
}

// CorrelationIDFromContext returns the request correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// LoggerFromContext returns the request-scoped logger, falling back to fallback.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}
