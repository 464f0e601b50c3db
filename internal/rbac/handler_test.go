package rbac_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fschubi/lbvatlas-sub005/internal/rbac"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

type adminEnv struct {
	router *chi.Mux
	repo   *rbac.MemoryRepository
	svc    *rbac.Service
}

func newAdminEnv(t *testing.T, perms ...string) *adminEnv {
	t.Helper()
	repo := rbac.NewMemoryRepository()
	svc := rbac.NewService(repo, nil, slog.Default())
	handler := rbac.NewHandler(slog.Default(), svc, rbac.Middleware{})

	if perms == nil {
		perms = []string{shared.PermRolesRead, shared.PermRolesManage, shared.PermPermissionsRead}
	}
	identity := &shared.Identity{UserID: 7, Username: "admin", Role: "Admin", Permissions: perms}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
		})
	})
	handler.MountRoutes(router)
	return &adminEnv{router: router, repo: repo, svc: svc}
}

func (e *adminEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func TestCreateAndListRoles(t *testing.T) {
	env := newAdminEnv(t)

	res := env.do(t, http.MethodPost, "/roles", map[string]any{"name": "Auditor", "description": "read-only audits"})
	require.Equal(t, http.StatusCreated, res.Code)

	var created struct {
		Role struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			IsSystem bool   `json:"is_system"`
		} `json:"role"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "Auditor", created.Role.Name)
	assert.False(t, created.Role.IsSystem)

	res = env.do(t, http.MethodGet, "/roles", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var listed struct {
		Roles []struct {
			Name string `json:"name"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Len(t, listed.Roles, 1)
	assert.Equal(t, "Auditor", listed.Roles[0].Name)
}

func TestCreateRoleConflict(t *testing.T) {
	env := newAdminEnv(t)

	res := env.do(t, http.MethodPost, "/roles", map[string]any{"name": "Auditor"})
	require.Equal(t, http.StatusCreated, res.Code)
	res = env.do(t, http.MethodPost, "/roles", map[string]any{"name": "Auditor"})
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestCreateRoleValidation(t *testing.T) {
	env := newAdminEnv(t)

	res := env.do(t, http.MethodPost, "/roles", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = env.do(t, http.MethodPost, "/roles", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUpdateRole(t *testing.T) {
	env := newAdminEnv(t)
	role, err := env.svc.CreateRole(context.Background(), "Operator", "before", false)
	require.NoError(t, err)

	res := env.do(t, http.MethodPut, fmt.Sprintf("/roles/%d", role.ID), map[string]any{"description": "after"})
	require.Equal(t, http.StatusOK, res.Code)

	updated, err := env.svc.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Operator", updated.Name)
	assert.Equal(t, "after", updated.Description)
}

func TestDeleteRole(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	system, err := env.svc.CreateRole(ctx, "Admin", "", true)
	require.NoError(t, err)
	regular, err := env.svc.CreateRole(ctx, "Temp", "", false)
	require.NoError(t, err)

	res := env.do(t, http.MethodDelete, fmt.Sprintf("/roles/%d", system.ID), nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = env.do(t, http.MethodDelete, fmt.Sprintf("/roles/%d", regular.ID), nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = env.do(t, http.MethodDelete, fmt.Sprintf("/roles/%d", regular.ID), nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestRolePermissionEndpoints(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	role, err := env.svc.CreateRole(ctx, "Support", "", false)
	require.NoError(t, err)
	perm := env.repo.AddPermission("TICKETS_READ", "TICKETS", "READ", "")

	res := env.do(t, http.MethodPost, fmt.Sprintf("/roles/%d/permissions", role.ID), map[string]any{"permission_id": perm.ID})
	require.Equal(t, http.StatusNoContent, res.Code)

	// Idempotent re-assignment.
	res = env.do(t, http.MethodPost, fmt.Sprintf("/roles/%d/permissions", role.ID), map[string]any{"permission_id": perm.ID})
	require.Equal(t, http.StatusNoContent, res.Code)

	res = env.do(t, http.MethodGet, fmt.Sprintf("/roles/%d/permissions", role.ID), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var listed struct {
		Permissions []struct {
			Name string `json:"name"`
		} `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Len(t, listed.Permissions, 1)
	assert.Equal(t, "TICKETS_READ", listed.Permissions[0].Name)

	res = env.do(t, http.MethodDelete, fmt.Sprintf("/roles/%d/permissions/%d", role.ID, perm.ID), nil)
	require.Equal(t, http.StatusNoContent, res.Code)

	perms, err := env.svc.GetRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestHierarchyEndpoints(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	parent, err := env.svc.CreateRole(ctx, "Manager", "", false)
	require.NoError(t, err)
	child, err := env.svc.CreateRole(ctx, "Support", "", false)
	require.NoError(t, err)

	res := env.do(t, http.MethodPost, "/roles/hierarchy", map[string]any{"parent_role_id": parent.ID, "child_role_id": child.ID})
	require.Equal(t, http.StatusNoContent, res.Code)

	// The reverse edge would close a cycle.
	res = env.do(t, http.MethodPost, "/roles/hierarchy", map[string]any{"parent_role_id": child.ID, "child_role_id": parent.ID})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = env.do(t, http.MethodGet, fmt.Sprintf("/roles/%d/hierarchy", child.ID), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var hierarchy struct {
		Ancestors []struct {
			Name string `json:"name"`
		} `json:"ancestors"`
		Descendants []struct {
			Name string `json:"name"`
		} `json:"descendants"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &hierarchy))
	require.Len(t, hierarchy.Ancestors, 1)
	assert.Equal(t, "Manager", hierarchy.Ancestors[0].Name)
	assert.Empty(t, hierarchy.Descendants)

	res = env.do(t, http.MethodDelete, "/roles/hierarchy", map[string]any{"parent_role_id": parent.ID, "child_role_id": child.ID})
	require.Equal(t, http.StatusNoContent, res.Code)

	ancestors, err := env.svc.Ancestors(ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, ancestors)
}

func TestListPermissionsEndpoint(t *testing.T) {
	env := newAdminEnv(t)
	env.repo.AddPermission("TICKETS_READ", "TICKETS", "READ", "")
	env.repo.AddPermission("DEVICES_READ", "DEVICES", "READ", "")

	res := env.do(t, http.MethodGet, "/permissions", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var listed struct {
		Permissions []struct {
			Name   string `json:"name"`
			Module string `json:"module"`
		} `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	assert.Len(t, listed.Permissions, 2)

	res = env.do(t, http.MethodGet, "/permissions?module=DEVICES", nil)
	require.Equal(t, http.StatusOK, res.Code)
	listed.Permissions = nil
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Len(t, listed.Permissions, 1)
	assert.Equal(t, "DEVICES_READ", listed.Permissions[0].Name)
}

func TestMutationsRequireManagePermission(t *testing.T) {
	env := newAdminEnv(t, shared.PermRolesRead)

	res := env.do(t, http.MethodPost, "/roles", map[string]any{"name": "Auditor"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = env.do(t, http.MethodGet, "/roles", nil)
	assert.Equal(t, http.StatusOK, res.Code)
}
