package repository

import (
	"context"
	"time"

	"multidept-session-trust/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Every state transition is a single conditional
// statement, so concurrent callers never both observe the same transition.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// ListLiveByUser returns the user's live sessions (active, not revoked, not expired at now),
	// oldest first by created_at then id.
	ListLiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	// Revoke terminates a live session and reports whether this call performed the transition.
	// Sessions already terminal at now are left untouched.
	Revoke(ctx context.Context, id, reason string, now time.Time) (bool, error)
	// Touch renews last_accessed_at (never moving it backwards) and the last known client address.
	// It reports false when the session is no longer live.
	Touch(ctx context.Context, id string, at time.Time, ip, userAgent string) (bool, error)
	MarkSuspicious(ctx context.Context, id, reason string) error
	// IncrementFailedAttempts bumps the counter of a live session.
	IncrementFailedAttempts(ctx context.Context, id string, now time.Time) (bool, error)
	// ExtendExpiry moves expires_at of a live remember-me session forward; it never shortens it.
	ExtendExpiry(ctx context.Context, id string, expiresAt, now time.Time) (bool, error)
	RecordMfaVerification(ctx context.Context, id string, at time.Time) (bool, error)
	// ExpireBefore marks every live session whose expiry is before now as expired and returns their ids.
	ExpireBefore(ctx context.Context, now time.Time) ([]string, error)
	Statistics(ctx context.Context, now time.Time) (*domain.SessionStatistics, error)
}

// ActivityRepository persists the append-only session activity log.
type ActivityRepository interface {
	Append(ctx context.Context, a *domain.SessionActivity) error
	// ListBySession returns activity newest first.
	ListBySession(ctx context.Context, sessionID string, limit, offset int32) ([]*domain.SessionActivity, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
}

// ConfigurationRepository persists per-user session policy. Get returns (nil, nil) when the user has none.
type ConfigurationRepository interface {
	Get(ctx context.Context, userID string) (*domain.SessionConfiguration, error)
	Put(ctx context.Context, c *domain.SessionConfiguration) error
}
