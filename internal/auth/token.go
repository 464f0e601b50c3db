package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

// Tokens are HS256 JWTs. The claim set carries identity only — no
// permissions — so a permission change takes effect on the very next
// request without re-authentication.
const (
	tokenType      = "JWT"
	tokenAlgorithm = "HS256"
)

type tokenHeader struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// Claims is the access-token payload.
type Claims struct {
	UserID    int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// TokenService issues and validates signed access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a TokenService. The secret comes from
// validated configuration; an empty secret is refused here as a second
// line of defense behind config loading.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue mints a signed token for the user with the configured lifetime.
func (s *TokenService) Issue(user *User) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	headerJSON, err := json.Marshal(tokenHeader{Type: tokenType, Algorithm: tokenAlgorithm})
	if err != nil {
		return "", fmt.Errorf("auth: marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}

	payload := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return payload + "." + s.sign(payload), nil
}

// Parse verifies the signature and temporal claims and returns the
// decoded claim set. Signature comparison is constant-time and the
// algorithm is pinned to HS256.
func (s *TokenService) Parse(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, shared.ErrTokenInvalid
	}

	payload := parts[0] + "." + parts[1]
	expected := s.sign(payload)
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return nil, shared.ErrTokenInvalid
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, shared.ErrTokenInvalid
	}
	if header.Algorithm != tokenAlgorithm {
		return nil, shared.ErrTokenInvalid
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, shared.ErrTokenInvalid
	}

	if claims.ExpiresAt > 0 && s.now().Unix() > claims.ExpiresAt {
		return nil, shared.ErrTokenExpired
	}
	if claims.UserID <= 0 {
		return nil, shared.ErrTokenInvalid
	}
	return &claims, nil
}

func (s *TokenService) sign(payload string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return base64URLEncode(h.Sum(nil))
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
