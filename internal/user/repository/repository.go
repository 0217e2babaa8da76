package repository

import (
	"context"

	"multidept-session-trust/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Upsert creates the user or updates username, email, department and active flag.
	Upsert(ctx context.Context, u *domain.User) error
}
