package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"multidept-session-trust/backend/internal/device/domain"
)

type deviceKey struct{ hash, userID string }

// MemoryRepository keeps fingerprints in memory for single-process runs and tests.
type MemoryRepository struct {
	mu      sync.Mutex
	devices map[deviceKey]*domain.DeviceFingerprint
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[deviceKey]*domain.DeviceFingerprint)}
}

func (r *MemoryRepository) GetByHashAndUser(_ context.Context, hash, userID string) (*domain.DeviceFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceKey{hash, userID}]
	if !ok {
		return nil, nil
	}
	return clone(d), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]*domain.DeviceFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.DeviceFingerprint
	for k, d := range r.devices {
		if k.userID == userID {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, d *domain.DeviceFingerprint) (*domain.DeviceFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := deviceKey{d.FingerprintHash, d.UserID}
	if cur, ok := r.devices[k]; ok {
		if d.LastSeen.After(cur.LastSeen) {
			cur.LastSeen = d.LastSeen
		}
		return clone(cur), nil
	}
	stored := clone(d)
	stored.FirstSeen = d.LastSeen
	stored.IsTrusted, stored.IsBlocked = false, false
	r.devices[k] = stored
	return clone(stored), nil
}

func (r *MemoryRepository) SetTrusted(_ context.Context, hash, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceKey{hash, userID}]
	if !ok || d.IsBlocked {
		return false, nil
	}
	d.IsTrusted = true
	return true, nil
}

func (r *MemoryRepository) SetBlocked(_ context.Context, hash, userID, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceKey{hash, userID}]
	if !ok || d.IsBlocked {
		return false, nil
	}
	t := at
	d.IsBlocked, d.IsTrusted = true, false
	d.BlockedReason, d.BlockedAt = reason, &t
	return true, nil
}

func clone(d *domain.DeviceFingerprint) *domain.DeviceFingerprint {
	c := *d
	c.Attributes.Plugins = append([]string(nil), d.Attributes.Plugins...)
	if d.BlockedAt != nil {
		t := *d.BlockedAt
		c.BlockedAt = &t
	}
	return &c
}
