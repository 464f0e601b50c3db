package rbac_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
	"github.com/fschubi/lbvatlas-sub005/internal/rbac"
)

func newService(t *testing.T) (*rbac.Service, *rbac.MemoryRepository) {
	t.Helper()
	repo := rbac.NewMemoryRepository()
	return rbac.NewService(repo, nil, slog.Default()), repo
}

// seedSeniorityChain builds Admin -> Manager -> Support with the
// permissions from the reference scenario.
func seedSeniorityChain(t *testing.T, svc *rbac.Service, repo *rbac.MemoryRepository) (admin, manager, support rbac.Role) {
	t.Helper()
	ctx := context.Background()

	var err error
	admin, err = svc.CreateRole(ctx, "Admin", "top of the chain", true)
	require.NoError(t, err)
	manager, err = svc.CreateRole(ctx, "Manager", "", false)
	require.NoError(t, err)
	support, err = svc.CreateRole(ctx, "Support", "", false)
	require.NoError(t, err)

	usersManage := repo.AddPermission("USERS_MANAGE", "USERS", "MANAGE", "")
	ticketsWrite := repo.AddPermission("TICKETS_WRITE", "TICKETS", "WRITE", "")
	ticketsRead := repo.AddPermission("TICKETS_READ", "TICKETS", "READ", "")

	require.NoError(t, svc.AssignPermission(ctx, admin.ID, usersManage.ID))
	require.NoError(t, svc.AssignPermission(ctx, manager.ID, ticketsWrite.ID))
	require.NoError(t, svc.AssignPermission(ctx, support.ID, ticketsRead.ID))

	require.NoError(t, svc.AddHierarchyEdge(ctx, admin.ID, manager.ID))
	require.NoError(t, svc.AddHierarchyEdge(ctx, manager.ID, support.ID))
	return admin, manager, support
}

func TestResolvePermissionsSeniorityChain(t *testing.T) {
	svc, repo := newService(t)
	seedSeniorityChain(t, svc, repo)
	ctx := context.Background()

	got, err := svc.ResolvePermissions(ctx, "Support")
	require.NoError(t, err)
	assert.Equal(t, []string{"TICKETS_READ", "TICKETS_WRITE", "USERS_MANAGE"}, got)

	got, err = svc.ResolvePermissions(ctx, "Manager")
	require.NoError(t, err)
	assert.Equal(t, []string{"TICKETS_WRITE", "USERS_MANAGE"}, got)

	got, err = svc.ResolvePermissions(ctx, "Admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"USERS_MANAGE"}, got)
}

func TestResolvePermissionsSupersetOfDirect(t *testing.T) {
	svc, repo := newService(t)
	_, manager, support := seedSeniorityChain(t, svc, repo)
	ctx := context.Background()

	for _, role := range []rbac.Role{manager, support} {
		direct, err := svc.GetRolePermissions(ctx, role.ID)
		require.NoError(t, err)
		resolved, err := svc.ResolvePermissions(ctx, role.Name)
		require.NoError(t, err)
		for _, p := range direct {
			assert.Contains(t, resolved, p.Name, "role %s must keep its direct permission %s", role.Name, p.Name)
		}
	}
}

func TestResolvePermissionsChildSupersetOfParent(t *testing.T) {
	svc, repo := newService(t)
	seedSeniorityChain(t, svc, repo)
	ctx := context.Background()

	pairs := [][2]string{{"Admin", "Manager"}, {"Manager", "Support"}}
	for _, pair := range pairs {
		parent, err := svc.ResolvePermissions(ctx, pair[0])
		require.NoError(t, err)
		child, err := svc.ResolvePermissions(ctx, pair[1])
		require.NoError(t, err)
		for _, p := range parent {
			assert.Contains(t, child, p)
		}
	}
}

func TestResolvePermissionsRepeatable(t *testing.T) {
	svc, repo := newService(t)
	seedSeniorityChain(t, svc, repo)
	ctx := context.Background()

	first, err := svc.ResolvePermissions(ctx, "Support")
	require.NoError(t, err)
	for range 5 {
		again, err := svc.ResolvePermissions(ctx, "Support")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolvePermissionsUnknownRole(t *testing.T) {
	svc, _ := newService(t)

	got, err := svc.ResolvePermissions(context.Background(), "Ghost")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestAddEdgeRejectsCycles(t *testing.T) {
	svc, repo := newService(t)
	admin, _, support := seedSeniorityChain(t, svc, repo)
	ctx := context.Background()

	// Closing the chain bottom-to-top would make Admin reachable from
	// itself.
	err := svc.AddHierarchyEdge(ctx, support.ID, admin.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)

	// Self-referential edge.
	err = svc.AddHierarchyEdge(ctx, admin.ID, admin.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)

	ancestors, err := svc.Ancestors(ctx, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, ancestors, "rejected edges must not be persisted")
}

func TestAddEdgeDiamondIsNotACycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	top, err := svc.CreateRole(ctx, "Top", "", false)
	require.NoError(t, err)
	left, err := svc.CreateRole(ctx, "Left", "", false)
	require.NoError(t, err)
	right, err := svc.CreateRole(ctx, "Right", "", false)
	require.NoError(t, err)
	bottom, err := svc.CreateRole(ctx, "Bottom", "", false)
	require.NoError(t, err)

	require.NoError(t, svc.AddHierarchyEdge(ctx, top.ID, left.ID))
	require.NoError(t, svc.AddHierarchyEdge(ctx, top.ID, right.ID))
	require.NoError(t, svc.AddHierarchyEdge(ctx, left.ID, bottom.ID))
	require.NoError(t, svc.AddHierarchyEdge(ctx, right.ID, bottom.ID))

	// The diamond is legal; closing it upward is not.
	err = svc.AddHierarchyEdge(ctx, bottom.ID, top.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)

	ancestors, err := svc.Ancestors(ctx, bottom.ID)
	require.NoError(t, err)
	names := make([]string, len(ancestors))
	for i, a := range ancestors {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"Left", "Right", "Top"}, names)
}

func TestAddEdgeDeepChainCycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	const depth = 20
	roles := make([]rbac.Role, depth)
	for i := range roles {
		role, err := svc.CreateRole(ctx, "Level"+string(rune('A'+i)), "", false)
		require.NoError(t, err)
		roles[i] = role
		if i > 0 {
			require.NoError(t, svc.AddHierarchyEdge(ctx, roles[i-1].ID, roles[i].ID))
		}
	}

	err := svc.AddHierarchyEdge(ctx, roles[depth-1].ID, roles[0].ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestAssignPermissionIdempotent(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "Auditor", "", false)
	require.NoError(t, err)
	perm := repo.AddPermission("TICKETS_READ", "TICKETS", "READ", "")

	require.NoError(t, svc.AssignPermission(ctx, role.ID, perm.ID))
	require.NoError(t, svc.AssignPermission(ctx, role.ID, perm.ID))

	perms, err := svc.GetRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "TICKETS_READ", perms[0].Name)
}

func TestAddEdgeIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	parent, err := svc.CreateRole(ctx, "Parent", "", false)
	require.NoError(t, err)
	child, err := svc.CreateRole(ctx, "Child", "", false)
	require.NoError(t, err)

	require.NoError(t, svc.AddHierarchyEdge(ctx, parent.ID, child.ID))
	require.NoError(t, svc.AddHierarchyEdge(ctx, parent.ID, child.ID))

	ancestors, err := svc.Ancestors(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 1)
}

func TestDeleteSystemRoleFails(t *testing.T) {
	svc, repo := newService(t)
	admin, _, _ := seedSeniorityChain(t, svc, repo)
	ctx := context.Background()

	before, err := svc.ListRoles(ctx)
	require.NoError(t, err)

	err = svc.DeleteRole(ctx, admin.ID)
	require.ErrorIs(t, err, httpx.ErrSystemProtected)

	after, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestDeleteRoleRemovesEdges(t *testing.T) {
	svc, repo := newService(t)
	_, manager, support := seedSeniorityChain(t, svc, repo)
	ctx := context.Background()

	require.NoError(t, svc.DeleteRole(ctx, manager.ID))

	ancestors, err := svc.Ancestors(ctx, support.ID)
	require.NoError(t, err)
	assert.Empty(t, ancestors, "edges through a deleted role disappear with it")

	got, err := svc.ResolvePermissions(ctx, "Support")
	require.NoError(t, err)
	assert.Equal(t, []string{"TICKETS_READ"}, got)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "Admin", "", false)
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, "Admin", "again", false)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateRole(context.Background(), "   ", "", false)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateRolePartialPatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "Operator", "before", false)
	require.NoError(t, err)

	desc := "after"
	updated, err := svc.UpdateRole(ctx, role.ID, rbac.RolePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Operator", updated.Name)
	assert.Equal(t, "after", updated.Description)

	name := "Operators"
	updated, err = svc.UpdateRole(ctx, role.ID, rbac.RolePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Operators", updated.Name)
	assert.Equal(t, "after", updated.Description)
}

func TestUpdateRoleNotFound(t *testing.T) {
	svc, _ := newService(t)

	name := "Ghost"
	_, err := svc.UpdateRole(context.Background(), 4242, rbac.RolePatch{Name: &name})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestListPermissionsModuleFilter(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	repo.AddPermission("TICKETS_READ", "TICKETS", "READ", "")
	repo.AddPermission("TICKETS_WRITE", "TICKETS", "WRITE", "")
	repo.AddPermission("DEVICES_READ", "DEVICES", "READ", "")

	all, err := svc.ListPermissions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	tickets, err := svc.ListPermissions(ctx, "TICKETS")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "TICKETS_READ", tickets[0].Name)
	assert.Equal(t, "TICKETS_WRITE", tickets[1].Name)
}
