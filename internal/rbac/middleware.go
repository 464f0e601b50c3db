package rbac

import (
	"log/slog"
	"net/http"

	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

// Middleware guards routes against the permission set already attached
// to the request context by the auth middleware. It performs no
// repository access and fails closed: a missing identity, an empty
// permission set or an empty requirement all deny.
type Middleware struct {
	Logger *slog.Logger
}

// RequirePermission ensures the identity carries the named permission.
// Matching is exact; a role merely named "admin" grants nothing.
func (m Middleware) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if perm == "" || !id.HasPermission(perm) {
				m.deny(r, id, perm)
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the identity carries at least one of the named
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, perm := range perms {
				if perm != "" && id.HasPermission(perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(r, id, "")
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// RequireAll ensures the identity carries every named permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if len(perms) == 0 {
				m.deny(r, id, "")
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			for _, perm := range perms {
				if perm == "" || !id.HasPermission(perm) {
					m.deny(r, id, perm)
					httpx.RespondError(w, httpx.ErrForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(r *http.Request, id *shared.Identity, perm string) {
	if m.Logger == nil {
		return
	}
	m.Logger.Warn("authorization denied",
		slog.Int64("user_id", id.UserID),
		slog.String("role", id.Role),
		slog.String("path", r.URL.Path),
		slog.String("permission", perm),
	)
}
