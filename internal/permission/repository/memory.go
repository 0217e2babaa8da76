package repository

import (
	"context"
	"sort"
	"sync"

	"multidept-session-trust/backend/internal/permission/domain"
)

// MemoryRepository keeps permissions, roles and overrides in memory.
type MemoryRepository struct {
	mu          sync.RWMutex
	permissions map[string]domain.Permission
	roles       map[string]map[string]bool // role -> permissions
	userRoles   map[string]map[string]bool // user -> roles
	overrides   map[string][]domain.Override
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		permissions: make(map[string]domain.Permission),
		roles:       make(map[string]map[string]bool),
		userRoles:   make(map[string]map[string]bool),
		overrides:   make(map[string][]domain.Override),
	}
}

func (r *MemoryRepository) GetPermission(_ context.Context, name string) (*domain.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.permissions[name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepository) RolePermissions(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := map[string]bool{}
	for role := range r.userRoles[userID] {
		for p := range r.roles[role] {
			set[p] = true
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) Overrides(_ context.Context, userID string) ([]*domain.Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.overrides[userID]
	out := make([]*domain.Override, len(list))
	for i := range list {
		o := list[i]
		out[i] = &o
	}
	return out, nil
}

func (r *MemoryRepository) UpsertPermission(_ context.Context, p *domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permissions[p.Name] = *p
	return nil
}

func (r *MemoryRepository) UpsertRole(_ context.Context, name, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[name] == nil {
		r.roles[name] = make(map[string]bool)
	}
	return nil
}

func (r *MemoryRepository) GrantRolePermission(_ context.Context, role, permission string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[role] == nil {
		r.roles[role] = make(map[string]bool)
	}
	r.roles[role][permission] = true
	return nil
}

func (r *MemoryRepository) AssignRole(_ context.Context, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userRoles[userID] == nil {
		r.userRoles[userID] = make(map[string]bool)
	}
	r.userRoles[userID][role] = true
	return nil
}

func (r *MemoryRepository) CreateOverride(_ context.Context, o *domain.Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[o.UserID] = append(r.overrides[o.UserID], *o)
	return nil
}
