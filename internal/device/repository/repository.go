package repository

import (
	"context"
	"time"

	"multidept-session-trust/backend/internal/device/domain"
)

// Repository defines persistence for device fingerprints. Fingerprints are unique per (hash, user).
type Repository interface {
	// GetByHashAndUser returns the fingerprint, or nil if not found.
	GetByHashAndUser(ctx context.Context, hash, userID string) (*domain.DeviceFingerprint, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.DeviceFingerprint, error)
	// Upsert inserts d or, when the (hash, user) pair exists, advances its last_seen.
	// It returns the stored row.
	Upsert(ctx context.Context, d *domain.DeviceFingerprint) (*domain.DeviceFingerprint, error)
	// SetTrusted marks a non-blocked fingerprint trusted. It reports false when the row is
	// missing or blocked.
	SetTrusted(ctx context.Context, hash, userID string) (bool, error)
	// SetBlocked blocks the fingerprint and clears trust. It reports whether the row went from
	// unblocked to blocked.
	SetBlocked(ctx context.Context, hash, userID, reason string, at time.Time) (bool, error)
}
