package rbac

import "time"

// Role is a named, administratively managed bundle of permissions.
// Roles with IsSystem set are built-in and can never be deleted or
// demoted to non-system.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an atomic capability, named MODULE_ACTION.
type Permission struct {
	ID          int64
	Name        string
	Module      string
	Action      string
	Description string
}

// HierarchyEdge is a directed inheritance relation between two roles.
// The child role inherits every permission of the parent role, matching
// a seniority chain such as Admin -> Manager -> Support -> User.
type HierarchyEdge struct {
	ParentRoleID int64
	ChildRoleID  int64
}

// RolePatch carries partial updates for a role. Nil fields are left
// untouched. The system flag is deliberately absent: it cannot be
// changed through updates.
type RolePatch struct {
	Name        *string
	Description *string
}
