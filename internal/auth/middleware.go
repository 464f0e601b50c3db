package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

// PermissionResolver aggregates the live permission set for a role name.
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, roleName string) ([]string, error)
}

// Authenticator validates the bearer token and materializes the request
// identity. Per request it performs exactly one permission resolution —
// permissions are never read from the token, so revocations bite on the
// next request.
type Authenticator struct {
	Tokens   *TokenService
	Resolver PermissionResolver
	Logger   *slog.Logger
}

// Middleware rejects missing, malformed, badly signed or expired tokens
// with 401 and attaches the identity with its resolved permissions on
// success.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		claims, err := a.Tokens.Parse(token)
		if err != nil {
			if a.Logger != nil && !errors.Is(err, shared.ErrTokenExpired) {
				a.Logger.Warn("token rejected", slog.Any("error", err))
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}

		perms, err := a.Resolver.ResolvePermissions(r.Context(), claims.Role)
		if err != nil {
			if a.Logger != nil {
				a.Logger.Error("resolve permissions", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}

		identity := &shared.Identity{
			UserID:      claims.UserID,
			Username:    claims.Username,
			Email:       claims.Email,
			Role:        claims.Role,
			Permissions: perms,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", shared.ErrTokenInvalid
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", shared.ErrTokenInvalid
	}
	return parts[1], nil
}
