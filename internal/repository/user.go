package repository

import (
	"context"

	"rbac-auth/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByIdentifier matches either the username or the email.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
}

// UserRoleRepository manages the user_roles join table.
type UserRoleRepository interface {
	// Assign inserts the pair and silently keeps an existing one.
	Assign(ctx context.Context, userID, roleID int64) error
}
