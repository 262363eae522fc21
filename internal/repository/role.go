package repository

import (
	"context"

	"rbac-auth/internal/domain"
)

// RoleFilter narrows and windows a role listing.
type RoleFilter struct {
	Query  string
	Limit  int
	Offset int
}

// RoleRepository exposes the role catalog and the user -> role join.
type RoleRepository interface {
	Create(ctx context.Context, role *domain.Role) (int64, error)
	Update(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	FindByNames(ctx context.Context, names []string) ([]domain.Role, error)
	List(ctx context.Context, filter RoleFilter) ([]domain.Role, error)
	Count(ctx context.Context, query string) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Role, error)
	// EnsureExists inserts the role unless one with the same name is present.
	EnsureExists(ctx context.Context, role domain.Role) error
}
