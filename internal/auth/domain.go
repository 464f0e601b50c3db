package auth

import "time"

// User represents an account row. The role field is a plain role-name
// string with no foreign key behind it, so the RBAC layer treats it as
// untrusted input to be resolved, never as authoritative.
type User struct {
	ID           int64
	Username     string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
