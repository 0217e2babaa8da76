package repository

import (
	"context"
	"sync"

	"multidept-session-trust/backend/internal/audit/domain"
)

// MemoryRepository keeps audit logs in memory, in insertion order.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.SecurityAuditLog
	byID    map[string]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]int)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.SecurityAuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	c := *r.entries[i]
	return &c, nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter, limit, offset int32) ([]*domain.SecurityAuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	var out []*domain.SecurityAuditLog
	skipped := int32(0)
	for i := len(r.entries) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		a := r.entries[i]
		if (f.UserID != "" && a.UserID != f.UserID) ||
			(f.Action != "" && a.Action != f.Action) ||
			(f.DepartmentID != "" && a.DepartmentID != f.DepartmentID) ||
			(f.SessionID != "" && a.SessionID != f.SessionID) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.SecurityAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return nil
	}
	c := *a
	r.byID[a.ID] = len(r.entries)
	r.entries = append(r.entries, &c)
	return nil
}

// All returns every stored entry in insertion order.
func (r *MemoryRepository) All() []*domain.SecurityAuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.SecurityAuditLog, len(r.entries))
	for i, a := range r.entries {
		c := *a
		out[i] = &c
	}
	return out
}
