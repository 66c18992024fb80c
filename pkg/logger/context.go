package logger

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey struct{}

var loggerContextKey = contextKey{}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts a logger from the context.
// If no logger is found, returns the global logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerContextKey).(*Logger); ok {
			return l
		}
	}
	return Get()
}

// WithSegment stores a logger scoped to one audio segment in the context
func WithSegment(ctx context.Context, source string, index int) context.Context {
	l := FromContext(ctx).WithFields(map[string]interface{}{
		"source":  source,
		"segment": index,
	})
	return WithLogger(ctx, l)
}

// Ctx returns the underlying zerolog logger from the context
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l.logger
}

func DebugCtx(ctx context.Context) *zerolog.Event { return FromContext(ctx).Debug() }
func InfoCtx(ctx context.Context) *zerolog.Event  { return FromContext(ctx).Info() }
func WarnCtx(ctx context.Context) *zerolog.Event  { return FromContext(ctx).Warn() }
func ErrorCtx(ctx context.Context) *zerolog.Event { return FromContext(ctx).Error() }
