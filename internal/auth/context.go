package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the context key for storing Identity.
	identityContextKey contextKey = "identity"
)

// Identity is the authenticated principal attached to a request context
// after the bearer token has been validated.
type Identity struct {
	Email string
}

// ContextWithIdentity adds the Identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns nil if not present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// EmailFromContext is a convenience function to get the authenticated
// email from context. Returns empty string if not authenticated.
func EmailFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.Email
}
