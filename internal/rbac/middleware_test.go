package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fschubi/lbvatlas-sub005/internal/rbac"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

func runGuard(t *testing.T, mw func(http.Handler) http.Handler, identity *shared.Identity) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if identity != nil {
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), identity))
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRequirePermissionNoIdentity(t *testing.T) {
	guard := rbac.Middleware{}
	res := runGuard(t, guard.RequirePermission("ROLES_READ"), nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequirePermissionEmptySetDenies(t *testing.T) {
	guard := rbac.Middleware{}
	identity := &shared.Identity{UserID: 1, Role: "Support", Permissions: []string{}}
	res := runGuard(t, guard.RequirePermission("ROLES_READ"), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequirePermissionRoleNameGrantsNothing(t *testing.T) {
	guard := rbac.Middleware{}
	// A role merely named "admin" carries no implicit grants.
	identity := &shared.Identity{UserID: 1, Role: "admin", Permissions: []string{"TICKETS_READ"}}
	res := runGuard(t, guard.RequirePermission("MANAGE_SYSTEM_SETTINGS"), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequirePermissionExactMatch(t *testing.T) {
	guard := rbac.Middleware{}
	identity := &shared.Identity{UserID: 1, Role: "Admin", Permissions: []string{"MANAGE_SYSTEM_SETTINGS"}}

	res := runGuard(t, guard.RequirePermission("MANAGE_SYSTEM_SETTINGS"), identity)
	assert.Equal(t, http.StatusOK, res.Code)

	// Case differences do not match.
	identity = &shared.Identity{UserID: 1, Role: "Admin", Permissions: []string{"manage_system_settings"}}
	res = runGuard(t, guard.RequirePermission("MANAGE_SYSTEM_SETTINGS"), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequirePermissionEmptyRequirementDenies(t *testing.T) {
	guard := rbac.Middleware{}
	identity := &shared.Identity{UserID: 1, Permissions: []string{"ROLES_READ"}}
	res := runGuard(t, guard.RequirePermission(""), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAny(t *testing.T) {
	guard := rbac.Middleware{}
	identity := &shared.Identity{UserID: 1, Permissions: []string{"TICKETS_READ"}}

	res := runGuard(t, guard.RequireAny("ROLES_READ", "TICKETS_READ"), identity)
	assert.Equal(t, http.StatusOK, res.Code)

	res = runGuard(t, guard.RequireAny("ROLES_READ", "ROLES_MANAGE"), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = runGuard(t, guard.RequireAny(), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAll(t *testing.T) {
	guard := rbac.Middleware{}
	identity := &shared.Identity{UserID: 1, Permissions: []string{"ROLES_READ", "ROLES_MANAGE"}}

	res := runGuard(t, guard.RequireAll("ROLES_READ", "ROLES_MANAGE"), identity)
	assert.Equal(t, http.StatusOK, res.Code)

	res = runGuard(t, guard.RequireAll("ROLES_READ", "USERS_MANAGE"), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = runGuard(t, guard.RequireAll(), identity)
	assert.Equal(t, http.StatusForbidden, res.Code)
}
