package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
)

// MemoryRepository is a non-persistent Repository used by tests and
// lightweight deployments. It enforces the same invariants as the
// Postgres implementation: unique names, acyclic hierarchy, idempotent
// pair inserts, protected system roles.
type MemoryRepository struct {
	mu sync.RWMutex

	roles       map[int64]Role
	rolesByName map[string]int64
	perms       map[int64]Permission
	assignments map[int64]map[int64]struct{} // roleID -> permissionIDs
	parents     map[int64]map[int64]struct{} // childID -> parentIDs
	children    map[int64]map[int64]struct{} // parentID -> childIDs

	nextRoleID int64
	nextPermID int64
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		roles:       make(map[int64]Role),
		rolesByName: make(map[string]int64),
		perms:       make(map[int64]Permission),
		assignments: make(map[int64]map[int64]struct{}),
		parents:     make(map[int64]map[int64]struct{}),
		children:    make(map[int64]map[int64]struct{}),
	}
}

// AddPermission registers a permission definition, reusing the existing
// entry when the name is already known.
func (m *MemoryRepository) AddPermission(name, module, action, description string) Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.perms {
		if p.Name == name {
			return p
		}
	}
	m.nextPermID++
	p := Permission{ID: m.nextPermID, Name: name, Module: module, Action: action, Description: description}
	m.perms[p.ID] = p
	return p
}

func (m *MemoryRepository) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roles := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (m *MemoryRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %d: %w", id, httpx.ErrNotFound)
	}
	return role, nil
}

func (m *MemoryRepository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.rolesByName[name]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %q: %w", name, httpx.ErrNotFound)
	}
	return m.roles[id], nil
}

func (m *MemoryRepository) CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.rolesByName[name]; taken {
		return Role{}, fmt.Errorf("rbac: role name %q taken: %w", name, httpx.ErrConflict)
	}
	m.nextRoleID++
	now := time.Now().UTC()
	role := Role{ID: m.nextRoleID, Name: name, Description: description, IsSystem: isSystem, CreatedAt: now, UpdatedAt: now}
	m.roles[role.ID] = role
	m.rolesByName[name] = role.ID
	return role, nil
}

func (m *MemoryRepository) UpdateRole(ctx context.Context, id int64, patch RolePatch) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %d: %w", id, httpx.ErrNotFound)
	}
	if patch.Name != nil && *patch.Name != role.Name {
		if _, taken := m.rolesByName[*patch.Name]; taken {
			return Role{}, fmt.Errorf("rbac: role name taken: %w", httpx.ErrConflict)
		}
		delete(m.rolesByName, role.Name)
		role.Name = *patch.Name
		m.rolesByName[role.Name] = id
	}
	if patch.Description != nil {
		role.Description = *patch.Description
	}
	role.UpdatedAt = time.Now().UTC()
	m.roles[id] = role
	return role, nil
}

func (m *MemoryRepository) DeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return fmt.Errorf("rbac: role %d: %w", id, httpx.ErrNotFound)
	}
	if role.IsSystem {
		return fmt.Errorf("rbac: role %d: %w", id, httpx.ErrSystemProtected)
	}
	delete(m.roles, id)
	delete(m.rolesByName, role.Name)
	delete(m.assignments, id)
	delete(m.parents, id)
	delete(m.children, id)
	for _, set := range m.parents {
		delete(set, id)
	}
	for _, set := range m.children {
		delete(set, id)
	}
	return nil
}

func (m *MemoryRepository) ListPermissions(ctx context.Context, module string) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perms := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		if module != "" && p.Module != module {
			continue
		}
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (m *MemoryRepository) GetRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roles[roleID]; !ok {
		return nil, fmt.Errorf("rbac: role %d: %w", roleID, httpx.ErrNotFound)
	}
	var perms []Permission
	for permID := range m.assignments[roleID] {
		perms = append(perms, m.perms[permID])
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (m *MemoryRepository) AssignPermission(ctx context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return fmt.Errorf("rbac: role %d: %w", roleID, httpx.ErrNotFound)
	}
	if _, ok := m.perms[permissionID]; !ok {
		return fmt.Errorf("rbac: permission %d: %w", permissionID, httpx.ErrNotFound)
	}
	if m.assignments[roleID] == nil {
		m.assignments[roleID] = make(map[int64]struct{})
	}
	m.assignments[roleID][permissionID] = struct{}{}
	return nil
}

func (m *MemoryRepository) RemovePermission(ctx context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments[roleID], permissionID)
	return nil
}

// AddEdge rejects self-references and any edge that would make the new
// child reachable from itself. Reachability is a breadth-first walk up
// the parent chain, so arbitrarily deep and diamond-shaped graphs are
// handled.
func (m *MemoryRepository) AddEdge(ctx context.Context, parentID, childID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if parentID == childID {
		return fmt.Errorf("rbac: edge %d->%d is self-referential: %w", parentID, childID, httpx.ErrConflict)
	}
	if _, ok := m.roles[parentID]; !ok {
		return fmt.Errorf("rbac: role %d: %w", parentID, httpx.ErrNotFound)
	}
	if _, ok := m.roles[childID]; !ok {
		return fmt.Errorf("rbac: role %d: %w", childID, httpx.ErrNotFound)
	}
	if m.reachableUpward(parentID, childID) {
		return fmt.Errorf("rbac: edge %d->%d would create a cycle: %w", parentID, childID, httpx.ErrConflict)
	}
	if m.parents[childID] == nil {
		m.parents[childID] = make(map[int64]struct{})
	}
	if m.children[parentID] == nil {
		m.children[parentID] = make(map[int64]struct{})
	}
	m.parents[childID][parentID] = struct{}{}
	m.children[parentID][childID] = struct{}{}
	return nil
}

func (m *MemoryRepository) RemoveEdge(ctx context.Context, parentID, childID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parents[childID], parentID)
	delete(m.children[parentID], childID)
	return nil
}

func (m *MemoryRepository) Ancestors(ctx context.Context, roleID int64) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roles[roleID]; !ok {
		return nil, fmt.Errorf("rbac: role %d: %w", roleID, httpx.ErrNotFound)
	}
	return m.collect(m.closure(roleID, m.parents), roleID), nil
}

func (m *MemoryRepository) Descendants(ctx context.Context, roleID int64) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roles[roleID]; !ok {
		return nil, fmt.Errorf("rbac: role %d: %w", roleID, httpx.ErrNotFound)
	}
	return m.collect(m.closure(roleID, m.children), roleID), nil
}

func (m *MemoryRepository) ResolvePermissions(ctx context.Context, roleName string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.rolesByName[roleName]
	if !ok {
		return []string{}, nil
	}
	seen := make(map[string]struct{})
	for roleID := range m.closure(id, m.parents) {
		for permID := range m.assignments[roleID] {
			seen[m.perms[permID].Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// closure returns the set of roles reachable from start by following the
// given adjacency direction, start included.
func (m *MemoryRepository) closure(start int64, adjacency map[int64]map[int64]struct{}) map[int64]struct{} {
	visited := map[int64]struct{}{start: {}}
	queue := []int64{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range adjacency[current] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return visited
}

// reachableUpward reports whether target appears in the parent closure
// of start.
func (m *MemoryRepository) reachableUpward(start, target int64) bool {
	_, ok := m.closure(start, m.parents)[target]
	return ok
}

func (m *MemoryRepository) collect(ids map[int64]struct{}, exclude int64) []Role {
	roles := make([]Role, 0, len(ids))
	for id := range ids {
		if id == exclude {
			continue
		}
		roles = append(roles, m.roles[id])
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

var _ Repository = (*MemoryRepository)(nil)
