package principal

import "context"

type principalContextKey struct{}

// ContextWith stores the resolved principal in context.
func ContextWith(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext extracts the resolved principal from context.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
