// Package actor carries the caller identity resolved by the upstream
// auth collaborator through request contexts.
package actor

import "context"

// Actor identifies who is performing a mutation.
type Actor struct {
	Email string
	Role  string
}

// System is the identity used for writes the service performs on its own
// behalf, such as cascade audit markers.
const System = "system"

type ctxKey struct{}

// WithContext stores the actor on the context.
func WithContext(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext extracts the actor, reporting whether one was set.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
