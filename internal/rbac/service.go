package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

// Auditor records administrative mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates RBAC operations on top of a Repository.
type Service struct {
	repo   Repository
	audit  Auditor
	logger *slog.Logger
}

// NewService constructs a Service. The auditor may be nil.
func NewService(repo Repository, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// GetRoleByName fetches a role by name.
func (s *Service) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, strings.TrimSpace(name))
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required: %w", httpx.ErrValidation)
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), isSystem)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, "role.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole applies a partial update to an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, patch RolePatch) (Role, error) {
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return Role{}, fmt.Errorf("rbac: role name required: %w", httpx.ErrValidation)
		}
		patch.Name = &trimmed
	}
	role, err := s.repo.UpdateRole(ctx, id, patch)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, "role.update", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role. System roles are refused.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.delete", "role", id, nil)
	return nil
}

// ListPermissions returns permissions, optionally filtered by module.
func (s *Service) ListPermissions(ctx context.Context, module string) ([]Permission, error) {
	return s.repo.ListPermissions(ctx, strings.TrimSpace(module))
}

// GetRolePermissions returns the permissions directly assigned to a role.
func (s *Service) GetRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.GetRolePermissions(ctx, roleID)
}

// AssignPermission attaches a permission to a role, idempotently.
func (s *Service) AssignPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.AssignPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.assign_permission", "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// RemovePermission detaches a permission from a role.
func (s *Service) RemovePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.RemovePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.remove_permission", "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// AddHierarchyEdge makes childID inherit every permission of parentID.
// Edges closing a cycle are rejected with a conflict.
func (s *Service) AddHierarchyEdge(ctx context.Context, parentID, childID int64) error {
	if err := s.repo.AddEdge(ctx, parentID, childID); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.add_edge", "role", childID, map[string]any{"parent_role_id": parentID})
	return nil
}

// RemoveHierarchyEdge deletes an inheritance edge, idempotently.
func (s *Service) RemoveHierarchyEdge(ctx context.Context, parentID, childID int64) error {
	if err := s.repo.RemoveEdge(ctx, parentID, childID); err != nil {
		return err
	}
	s.recordAudit(ctx, "role.remove_edge", "role", childID, map[string]any{"parent_role_id": parentID})
	return nil
}

// Ancestors returns the roles the given role inherits from.
func (s *Service) Ancestors(ctx context.Context, roleID int64) ([]Role, error) {
	return s.repo.Ancestors(ctx, roleID)
}

// Descendants returns the roles inheriting from the given role.
func (s *Service) Descendants(ctx context.Context, roleID int64) ([]Role, error) {
	return s.repo.Descendants(ctx, roleID)
}

// ResolvePermissions returns the sorted permission set for a role name:
// its direct permissions plus everything inherited through the ancestor
// closure. The role name comes from untrusted input (a user row's role
// string), so an unknown name degrades to an empty set with a warning
// instead of failing the request; the guard denies on empty sets anyway.
func (s *Service) ResolvePermissions(ctx context.Context, roleName string) ([]string, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return []string{}, nil
	}
	if _, err := s.repo.GetRoleByName(ctx, roleName); err != nil {
		if isNotFound(err) {
			s.logger.Warn("resolve permissions: unknown role", slog.String("role", roleName))
			return []string{}, nil
		}
		return nil, err
	}
	return s.repo.ResolvePermissions(ctx, roleName)
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if id := shared.IdentityFromContext(ctx); id != nil {
		actorID = id.UserID
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, httpx.ErrNotFound) || errors.Is(err, shared.ErrNotFound)
}
