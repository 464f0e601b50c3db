package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

// Handler wires the role/permission administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers the admin routes. Reads require ROLES_READ or
// PERMISSIONS_READ, mutations require ROLES_MANAGE.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(h.guard.RequirePermission(shared.PermRolesRead)).Get("/", h.listRoles)
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequirePermission(shared.PermRolesManage))
			r.Post("/", h.createRole)
			r.Post("/hierarchy", h.addHierarchyEdge)
			r.Delete("/hierarchy", h.removeHierarchyEdge)
		})
		r.Route("/{roleID}", func(r chi.Router) {
			r.With(h.guard.RequirePermission(shared.PermRolesRead)).Get("/", h.getRole)
			r.With(h.guard.RequirePermission(shared.PermRolesRead)).Get("/permissions", h.getRolePermissions)
			r.With(h.guard.RequirePermission(shared.PermRolesRead)).Get("/hierarchy", h.getRoleHierarchy)
			r.Group(func(r chi.Router) {
				r.Use(h.guard.RequirePermission(shared.PermRolesManage))
				r.Put("/", h.updateRole)
				r.Delete("/", h.deleteRole)
				r.Post("/permissions", h.assignPermission)
				r.Delete("/permissions/{permissionID}", h.removePermission)
			})
		})
	})
	r.With(h.guard.RequirePermission(shared.PermPermissionsRead)).Get("/permissions", h.listPermissions)
}

type roleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsSystem:    role.IsSystem,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func toRoleResponses(roles []Role) []roleResponse {
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	return out
}

func toPermissionResponses(perms []Permission) []permissionResponse {
	out := make([]permissionResponse, len(perms))
	for i, p := range perms {
		out[i] = permissionResponse{ID: p.ID, Name: p.Name, Module: p.Module, Action: p.Action, Description: p.Description}
	}
	return out
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": toRoleResponses(roles)})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": toRoleResponse(role)})
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsSystem    bool   `json:"is_system"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description, req.IsSystem)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"role": toRoleResponse(role)})
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, RolePatch{Name: req.Name, Description: req.Description})
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": toRoleResponse(role)})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context(), r.URL.Query().Get("module"))
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": toPermissionResponses(perms)})
}

func (h *Handler) getRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.GetRolePermissions(r.Context(), id)
	if err != nil {
		h.respondError(w, "role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": toPermissionResponses(perms)})
}

type assignPermissionRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req assignPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	if err := h.service.AssignPermission(r.Context(), id, req.PermissionID); err != nil {
		h.respondError(w, "assign permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	permissionID, err := pathID(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemovePermission(r.Context(), roleID, permissionID); err != nil {
		h.respondError(w, "remove permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getRoleHierarchy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ancestors, err := h.service.Ancestors(r.Context(), id)
	if err != nil {
		h.respondError(w, "role ancestors", err)
		return
	}
	descendants, err := h.service.Descendants(r.Context(), id)
	if err != nil {
		h.respondError(w, "role descendants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"ancestors":   toRoleResponses(ancestors),
		"descendants": toRoleResponses(descendants),
	})
}

type hierarchyEdgeRequest struct {
	ParentRoleID int64 `json:"parent_role_id" validate:"required,gt=0"`
	ChildRoleID  int64 `json:"child_role_id" validate:"required,gt=0"`
}

func (h *Handler) addHierarchyEdge(w http.ResponseWriter, r *http.Request) {
	var req hierarchyEdgeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	if err := h.service.AddHierarchyEdge(r.Context(), req.ParentRoleID, req.ChildRoleID); err != nil {
		h.respondError(w, "add hierarchy edge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeHierarchyEdge(w http.ResponseWriter, r *http.Request) {
	var req hierarchyEdgeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	if err := h.service.RemoveHierarchyEdge(r.Context(), req.ParentRoleID, req.ChildRoleID); err != nil {
		h.respondError(w, "remove hierarchy edge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %w", key, httpx.ErrValidation)
	}
	return id, nil
}
