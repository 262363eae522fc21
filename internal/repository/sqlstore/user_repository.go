package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"rbac-auth/internal/domain"
	"rbac-auth/internal/repository"
)

const userColumns = `id, name, email, username, password_hash, created_at, updated_at`

type UserRepository struct {
	ext     sqlx.ExtContext
	dialect *dialect
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	id, err := r.dialect.insert(ctx, r.ext, `
INSERT INTO users (name, email, username, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		user.Name,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if r.dialect.isUnique(err) {
			return 0, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return id, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? ORDER BY id LIMIT 1`,
		identifier, identifier)
}

func (r *UserRepository) get(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := sqlx.GetContext(ctx, r.ext, &user, r.ext.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

type UserRoleRepository struct {
	ext     sqlx.ExtContext
	dialect *dialect
}

func (r *UserRoleRepository) Assign(ctx context.Context, userID, roleID int64) error {
	now := time.Now().UTC()
	if _, err := r.ext.ExecContext(ctx, r.ext.Rebind(r.dialect.assignSQL), userID, roleID, now, now); err != nil {
		return fmt.Errorf("assign role %d to user %d: %w", roleID, userID, err)
	}
	return nil
}
