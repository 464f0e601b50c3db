package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid indicates a missing, malformed or badly signed token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates an expired token.
	ErrTokenExpired = errors.New("token expired")
)
