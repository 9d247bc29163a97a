// Package ctxlog carries a slog.Logger through a context.Context so that
// control-path code can log without threading a logger argument everywhere.
// The audio render path never logs; it has no business calling into here.
package ctxlog

import (
	"context"
	"log/slog"
)

// key is an unexported type so no other package can collide with our context key.
type key struct{}

var loggerKey = key{}

// WithLogger returns a new context with the provided logger embedded.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the slog.Logger from a context. A missing logger is a
// wiring bug, not a runtime condition, so it panics rather than degrading to
// the global default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	panic("ctxlog: logger missing from context")
}
