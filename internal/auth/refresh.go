package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

// RefreshStore keeps refresh tokens in Redis, keyed by an opaque ID that
// travels in an httpOnly SameSite=Strict cookie. The access token itself
// is never stored server-side.
type RefreshStore struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewRefreshStore constructs a RefreshStore.
func NewRefreshStore(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *RefreshStore {
	return &RefreshStore{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Issue creates a refresh token for the user and returns its opaque ID.
func (s *RefreshStore) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(token), strconv.FormatInt(userID, 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store refresh token: %w", err)
	}
	return token, nil
}

// Resolve maps a refresh token back to its user ID.
func (s *RefreshStore) Resolve(ctx context.Context, token string) (int64, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrTokenInvalid
		}
		return 0, fmt.Errorf("auth: load refresh token: %w", err)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, shared.ErrTokenInvalid
	}
	return userID, nil
}

// Revoke deletes a refresh token. Revoking an unknown token is a no-op.
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	return nil
}

// WriteCookie sets the refresh cookie on the response.
func (s *RefreshStore) WriteCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the refresh cookie.
func (s *RefreshStore) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ReadCookie extracts the refresh token from the request, empty if absent.
func (s *RefreshStore) ReadCookie(r *http.Request) string {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *RefreshStore) key(token string) string {
	return "refresh:" + token
}
