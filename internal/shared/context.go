package shared

import (
	"context"
	"time"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID    int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	Role      Role      `json:"role"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// ActorID returns the caller's user id, or 0 for system work.
func ActorID(ctx context.Context) int64 {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}
