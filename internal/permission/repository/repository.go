package repository

import (
	"context"

	"multidept-session-trust/backend/internal/permission/domain"
)

// Repository defines persistence for permissions, roles and user-level overrides.
type Repository interface {
	// GetPermission returns the permission or nil if it is not registered.
	GetPermission(ctx context.Context, name string) (*domain.Permission, error)
	// RolePermissions returns the permission names granted to the user through roles.
	RolePermissions(ctx context.Context, userID string) ([]string, error)
	// Overrides returns every user-level override for the user, expired ones included.
	Overrides(ctx context.Context, userID string) ([]*domain.Override, error)

	UpsertPermission(ctx context.Context, p *domain.Permission) error
	UpsertRole(ctx context.Context, name, description string) error
	GrantRolePermission(ctx context.Context, role, permission string) error
	AssignRole(ctx context.Context, userID, role string) error
	CreateOverride(ctx context.Context, o *domain.Override) error
}
