package auth

import "context"

type contextKey string

const identityKey contextKey = "lifelog-identity"

// WithIdentity stores the authenticated identity on the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// FromContext returns the identity injected by the auth middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || identity.ID < 1 {
		return Identity{}, false
	}
	return identity, true
}
