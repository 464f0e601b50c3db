package shared

import "context"

// Identity is the per-request authorization context materialized after
// token validation. Permissions are resolved live from the repository on
// every request, never read from the token itself.
type Identity struct {
	UserID      int64
	Username    string
	Email       string
	Role        string
	Permissions []string
}

// HasPermission reports whether the identity carries the named permission.
// Comparison is exact; a role display name grants nothing by itself.
func (id *Identity) HasPermission(name string) bool {
	if id == nil || name == "" {
		return false
	}
	for _, p := range id.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context, nil if absent.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
