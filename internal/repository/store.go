package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Users() UserRepository
	Roles() RoleRepository
	UserRoles() UserRoleRepository
}

// Store is the credential store: repositories plus transactions.
type Store interface {
	Repositories
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	// WithinTx runs fn against repositories bound to a single transaction,
	// committing when fn returns nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
	Close() error
}
