// Package trace carries the request trace id through a context.
package trace

import "context"

type key struct{}

// WithID attaches trace id to ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key{}, id)
}

// ID returns the trace id attached to ctx, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(key{}).(string)
	return id
}
