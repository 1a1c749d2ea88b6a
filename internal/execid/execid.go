// Package execid tags each worker pass over a single task or schedule
// with a unique id, carried through the context, so every log line from
// one execution attempt or one schedule firing can be correlated.
package execid

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

// New mints the id for one execution attempt or schedule firing.
func New() string {
	return uuid.NewString()
}

// Into attaches id to ctx.
func Into(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key{}, id)
}

// From returns the id attached to ctx, if any.
func From(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
