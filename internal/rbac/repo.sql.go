package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fschubi/lbvatlas-sub005/internal/platform/db"
	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
)

// PGRepository implements Repository using PostgreSQL. Hierarchy closure
// and permission resolution are expressed as recursive CTEs so each
// resolution is one round-trip regardless of graph depth.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, name, description, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("rbac: list roles: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %d: %w", id, httpx.ErrNotFound)
		}
		return Role{}, fmt.Errorf("rbac: get role: %w", err)
	}
	return role, nil
}

// GetRoleByName fetches a role by its unique name.
func (r *PGRepository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, httpx.ErrNotFound)
		}
		return Role{}, fmt.Errorf("rbac: get role by name: %w", err)
	}
	return role, nil
}

// CreateRole inserts a new role. A taken name yields a conflict.
func (r *PGRepository) CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, is_system) VALUES ($1, $2, $3) RETURNING `+roleColumns,
		name, description, isSystem))
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role name %q taken: %w", name, httpx.ErrConflict)
		}
		return Role{}, fmt.Errorf("rbac: create role: %w", err)
	}
	return role, nil
}

// UpdateRole applies a partial update. The is_system flag is immutable.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, patch RolePatch) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx,
		`UPDATE roles
		 SET name = COALESCE($2, name),
		     description = COALESCE($3, description),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+roleColumns,
		id, patch.Name, patch.Description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %d: %w", id, httpx.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role name taken: %w", httpx.ErrConflict)
		}
		return Role{}, fmt.Errorf("rbac: update role: %w", err)
	}
	return role, nil
}

// DeleteRole removes a role with its assignments and hierarchy edges in
// one transaction. System roles are refused before anything is touched.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var isSystem bool
		err := tx.QueryRow(ctx, `SELECT is_system FROM roles WHERE id = $1 FOR UPDATE`, id).Scan(&isSystem)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("rbac: role %d: %w", id, httpx.ErrNotFound)
			}
			return fmt.Errorf("rbac: delete role: %w", err)
		}
		if isSystem {
			return fmt.Errorf("rbac: role %d: %w", id, httpx.ErrSystemProtected)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("rbac: delete role assignments: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_hierarchy WHERE parent_role_id = $1 OR child_role_id = $1`, id); err != nil {
			return fmt.Errorf("rbac: delete role edges: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
			return fmt.Errorf("rbac: delete role: %w", err)
		}
		return nil
	})
}

// ListPermissions returns permissions ordered by name, optionally
// filtered by module.
func (r *PGRepository) ListPermissions(ctx context.Context, module string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, module, action, description FROM permissions
		 WHERE $1 = '' OR module = $1
		 ORDER BY name`, module)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// GetRolePermissions returns the permissions directly assigned to a role,
// inherited permissions excluded.
func (r *PGRepository) GetRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.module, p.action, p.description
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = $1
		 ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role permissions: %w", err)
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// AssignPermission attaches a permission to a role. Re-assigning an
// existing pair is a no-op.
func (r *PGRepository) AssignPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("rbac: assign permission %d to role %d: %w", permissionID, roleID, httpx.ErrNotFound)
		}
		return fmt.Errorf("rbac: assign permission: %w", err)
	}
	return nil
}

// RemovePermission detaches a permission from a role. Removing an absent
// pair is a no-op.
func (r *PGRepository) RemovePermission(ctx context.Context, roleID, permissionID int64) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID); err != nil {
		return fmt.Errorf("rbac: remove permission: %w", err)
	}
	return nil
}

// AddEdge inserts a hierarchy edge after checking, in the same
// transaction, that the edge would not close a cycle. The check walks
// the parent chain upward from the new edge's parent: if the new child
// already appears there, the edge is rejected.
func (r *PGRepository) AddEdge(ctx context.Context, parentID, childID int64) error {
	if parentID == childID {
		return fmt.Errorf("rbac: edge %d->%d is self-referential: %w", parentID, childID, httpx.ErrConflict)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var wouldCycle bool
		err := tx.QueryRow(ctx,
			`WITH RECURSIVE anc AS (
			     SELECT parent_role_id FROM role_hierarchy WHERE child_role_id = $1
			   UNION
			     SELECT h.parent_role_id
			     FROM role_hierarchy h
			     JOIN anc a ON h.child_role_id = a.parent_role_id
			 )
			 SELECT EXISTS (SELECT 1 FROM anc WHERE parent_role_id = $2)`,
			parentID, childID).Scan(&wouldCycle)
		if err != nil {
			return fmt.Errorf("rbac: cycle check: %w", err)
		}
		if wouldCycle {
			return fmt.Errorf("rbac: edge %d->%d would create a cycle: %w", parentID, childID, httpx.ErrConflict)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_hierarchy (parent_role_id, child_role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			parentID, childID); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("rbac: edge %d->%d references unknown role: %w", parentID, childID, httpx.ErrNotFound)
			}
			return fmt.Errorf("rbac: add edge: %w", err)
		}
		return nil
	})
}

// RemoveEdge deletes a hierarchy edge. Removing an absent edge is a no-op.
func (r *PGRepository) RemoveEdge(ctx context.Context, parentID, childID int64) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM role_hierarchy WHERE parent_role_id = $1 AND child_role_id = $2`,
		parentID, childID); err != nil {
		return fmt.Errorf("rbac: remove edge: %w", err)
	}
	return nil
}

// Ancestors returns every role the given role inherits from, any depth.
func (r *PGRepository) Ancestors(ctx context.Context, roleID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`WITH RECURSIVE anc AS (
		     SELECT parent_role_id AS id FROM role_hierarchy WHERE child_role_id = $1
		   UNION
		     SELECT h.parent_role_id
		     FROM role_hierarchy h
		     JOIN anc a ON h.child_role_id = a.id
		 )
		 SELECT `+prefixedRoleColumns("r")+`
		 FROM roles r JOIN anc ON anc.id = r.id
		 ORDER BY r.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: ancestors: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

// Descendants returns every role that inherits from the given role.
func (r *PGRepository) Descendants(ctx context.Context, roleID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`WITH RECURSIVE des AS (
		     SELECT child_role_id AS id FROM role_hierarchy WHERE parent_role_id = $1
		   UNION
		     SELECT h.child_role_id
		     FROM role_hierarchy h
		     JOIN des d ON h.parent_role_id = d.id
		 )
		 SELECT `+prefixedRoleColumns("r")+`
		 FROM roles r JOIN des ON des.id = r.id
		 ORDER BY r.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: descendants: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

// ResolvePermissions computes the permission union over the role's
// ancestor closure (role included) in a single statement: one recursive
// traversal plus one join.
func (r *PGRepository) ResolvePermissions(ctx context.Context, roleName string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`WITH RECURSIVE closure AS (
		     SELECT id FROM roles WHERE name = $1
		   UNION
		     SELECT h.parent_role_id
		     FROM role_hierarchy h
		     JOIN closure c ON h.child_role_id = c.id
		 )
		 SELECT DISTINCT p.name
		 FROM closure c
		 JOIN role_permissions rp ON rp.role_id = c.id
		 JOIN permissions p ON p.id = rp.permission_id
		 ORDER BY p.name`, roleName)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve permissions: %w", err)
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("rbac: resolve permissions: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: resolve permissions: %w", err)
	}
	return names, nil
}

func prefixedRoleColumns(alias string) string {
	return alias + ".id, " + alias + ".name, " + alias + ".description, " + alias + ".is_system, " + alias + ".created_at, " + alias + ".updated_at"
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: scan roles: %w", err)
	}
	return roles, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: scan permissions: %w", err)
	}
	return perms, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Repository = (*PGRepository)(nil)
