// Package log decorates slog handlers with values the queue carries in
// the context.
package log

import (
	"context"
	"log/slog"

	"github.com/nilcoder/taskq/internal/execid"
)

type execIDHandler struct {
	inner slog.Handler
}

// WithExecID wraps inner so that every record logged with a context
// holding an execution id gets an exec_id attribute.
func WithExecID(inner slog.Handler) slog.Handler {
	return execIDHandler{inner: inner}
}

func (h execIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h execIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := execid.From(ctx); ok {
		r.AddAttrs(slog.String("exec_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h execIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return execIDHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h execIDHandler) WithGroup(name string) slog.Handler {
	return execIDHandler{inner: h.inner.WithGroup(name)}
}
