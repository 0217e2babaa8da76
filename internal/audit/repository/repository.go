package repository

import (
	"context"

	"multidept-session-trust/backend/internal/audit/domain"
)

// Filter narrows ListSecurityAuditLogs. Empty fields match everything.
type Filter struct {
	UserID       string
	Action       string
	DepartmentID string
	SessionID    string
}

// Repository defines persistence for security audit logs. Entries are append-only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.SecurityAuditLog, error)
	// List returns matching entries newest first.
	List(ctx context.Context, f Filter, limit, offset int32) ([]*domain.SecurityAuditLog, error)
	Create(ctx context.Context, a *domain.SecurityAuditLog) error
}
