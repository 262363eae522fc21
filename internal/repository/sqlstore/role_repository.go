package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"rbac-auth/internal/domain"
	"rbac-auth/internal/repository"
)

// roleSearch matches name or description case-insensitively. '!' is the
// LIKE escape character because it needs no quoting in any dialect.
const roleSearch = `(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '!')`

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

type RoleRepository struct {
	ext     sqlx.ExtContext
	dialect *dialect
}

func (r *RoleRepository) Create(ctx context.Context, role *domain.Role) (int64, error) {
	id, err := r.dialect.insert(ctx, r.ext, `INSERT INTO roles (name, description) VALUES (?, ?)`,
		role.Name, role.Description)
	if err != nil {
		if r.dialect.isUnique(err) {
			return 0, fmt.Errorf("insert role %q: %w", role.Name, repository.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert role %q: %w", role.Name, err)
	}
	role.ID = id
	return id, nil
}

func (r *RoleRepository) Update(ctx context.Context, role *domain.Role) error {
	res, err := r.ext.ExecContext(ctx, r.ext.Rebind(`UPDATE roles SET name = ?, description = ? WHERE id = ?`),
		role.Name, role.Description, role.ID)
	if err != nil {
		if r.dialect.isUnique(err) {
			return fmt.Errorf("update role %d: %w", role.ID, repository.ErrDuplicate)
		}
		return fmt.Errorf("update role %d: %w", role.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role %d rows affected: %w", role.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("role %d: %w", role.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.ext.ExecContext(ctx, r.ext.Rebind(`DELETE FROM roles WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete role %d: %w", id, err)
	}
	return nil
}

func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	return r.get(ctx, `SELECT id, name, description FROM roles WHERE id = ?`, id)
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.get(ctx, `SELECT id, name, description FROM roles WHERE name = ?`, name)
}

func (r *RoleRepository) FindByNames(ctx context.Context, names []string) ([]domain.Role, error) {
	if len(names) == 0 {
		return []domain.Role{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, description FROM roles WHERE name IN (?) ORDER BY id`, names)
	if err != nil {
		return nil, fmt.Errorf("build roles by name query: %w", err)
	}
	return r.selectRoles(ctx, query, args...)
}

func (r *RoleRepository) List(ctx context.Context, filter repository.RoleFilter) ([]domain.Role, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, name, description FROM roles`)
	if filter.Query != "" {
		sb.WriteString(` WHERE ` + roleSearch)
		pattern := likePattern(filter.Query)
		args = append(args, pattern, pattern)
	}
	sb.WriteString(` ORDER BY id LIMIT ? OFFSET ?`)
	args = append(args, filter.Limit, filter.Offset)
	return r.selectRoles(ctx, sb.String(), args...)
}

func (r *RoleRepository) Count(ctx context.Context, query string) (int64, error) {
	q := `SELECT COUNT(*) FROM roles`
	var args []any
	if query != "" {
		q += ` WHERE ` + roleSearch
		pattern := likePattern(query)
		args = append(args, pattern, pattern)
	}
	var total int64
	if err := sqlx.GetContext(ctx, r.ext, &total, r.ext.Rebind(q), args...); err != nil {
		return 0, fmt.Errorf("count roles: %w", err)
	}
	return total, nil
}

func (r *RoleRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	return r.selectRoles(ctx, `
SELECT r.id, r.name, r.description
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = ?
ORDER BY r.id`, userID)
}

func (r *RoleRepository) EnsureExists(ctx context.Context, role domain.Role) error {
	if _, err := r.GetByName(ctx, role.Name); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if _, err := r.Create(ctx, &role); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	return nil
}

func (r *RoleRepository) get(ctx context.Context, query string, args ...any) (*domain.Role, error) {
	var role domain.Role
	if err := sqlx.GetContext(ctx, r.ext, &role, r.ext.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &role, nil
}

func (r *RoleRepository) selectRoles(ctx context.Context, query string, args ...any) ([]domain.Role, error) {
	roles := []domain.Role{}
	if err := sqlx.SelectContext(ctx, r.ext, &roles, r.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	return roles, nil
}

func likePattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
}
