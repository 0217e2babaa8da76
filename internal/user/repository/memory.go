package repository

import (
	"context"
	"sync"

	"multidept-session-trust/backend/internal/user/domain"
)

// MemoryRepository keeps users in memory. Used in development mode and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]domain.User)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[u.ID]; ok {
		existing.Username = u.Username
		existing.Email = u.Email
		existing.DepartmentID = u.DepartmentID
		existing.IsActive = u.IsActive
		r.users[u.ID] = existing
		return nil
	}
	r.users[u.ID] = *u
	return nil
}
