package rbac

import "context"

// Repository defines persistence for roles, permissions, assignments and
// hierarchy edges. Implementations must keep every mutation inside a
// single transaction and must never let the hierarchy graph become
// cyclic.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error)
	UpdateRole(ctx context.Context, id int64, patch RolePatch) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context, module string) ([]Permission, error)
	GetRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	AssignPermission(ctx context.Context, roleID, permissionID int64) error
	RemovePermission(ctx context.Context, roleID, permissionID int64) error

	AddEdge(ctx context.Context, parentID, childID int64) error
	RemoveEdge(ctx context.Context, parentID, childID int64) error
	Ancestors(ctx context.Context, roleID int64) ([]Role, error)
	Descendants(ctx context.Context, roleID int64) ([]Role, error)

	// ResolvePermissions returns the sorted, deduplicated permission
	// names granted to the named role, including everything inherited
	// through the hierarchy closure. Must be a single batched query, not
	// one round-trip per ancestor.
	ResolvePermissions(ctx context.Context, roleName string) ([]string, error)
}
