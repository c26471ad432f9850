/*Package access provides utilities for access control.

It turns bearer credentials into verified identities and decides whether a
caller's roles permit an operation on an entity type.
*/
package access

import (
	"context"
)

// Role is a role a caller can hold. Roles are not mutually exclusive, a
// caller may hold zero, one or many of them.
type Role string

// all known roles
const (
	RoleAdmin     Role = "admin"
	RoleEditor    Role = "editor"
	RoleRequester Role = "requester"
)

// Identity is the verified result of token authentication: the subject id
// and the set of role claims. It is created per request and never persisted.
type Identity struct {
	UserID string
	Roles  []Role
}

// HasRole returns true if the identity holds the requested role;
// otherwise it returns false.
func (i *Identity) HasRole(role Role) bool {
	if i == nil || i.Roles == nil {
		return false
	}
	for _, hasRole := range i.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyIdentity contextKey = "_identity_"

// ContextWithIdentity returns a new context with this identity added to it
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext retrieves an identity from the context. It returns
// nil if the request was not authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(contextKeyIdentity).(*Identity)
	if ok {
		return identity
	}
	return nil
}
