package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"rbac-auth/internal/domain"
	"rbac-auth/internal/repository"
)

// Paging defaults for role listings.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// DefaultRoles are seeded at startup when missing.
var DefaultRoles = []domain.Role{
	{Name: "admin", Description: strPtr("Administrator role")},
	{Name: "user", Description: strPtr("Standard user role")},
	{Name: "guest", Description: strPtr("Guest user role")},
}

// RoleService manages the role catalog.
type RoleService interface {
	Create(ctx context.Context, name string, description *string) (*domain.Role, error)
	List(ctx context.Context, query string, page, pageSize int) (*domain.RolePage, error)
	// GetByID reports absence through found rather than an error.
	GetByID(ctx context.Context, id int64) (role *domain.Role, found bool, err error)
	Update(ctx context.Context, id int64, name string, description *string) (*domain.Role, error)
	Delete(ctx context.Context, id int64) error
	SeedDefaults(ctx context.Context) error
}

type roleService struct {
	roles repository.RoleRepository
	log   logrus.FieldLogger
}

func NewRoleService(roles repository.RoleRepository, log logrus.FieldLogger) RoleService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &roleService{roles: roles, log: log}
}

func (s *roleService) Create(ctx context.Context, name string, description *string) (*domain.Role, error) {
	role, err := buildRole(name, description)
	if err != nil {
		return nil, err
	}
	if _, err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: role %q already exists", ErrValidation, role.Name)
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"role_id": role.ID, "role": role.Name}).Info("role created")
	return role, nil
}

func (s *roleService) List(ctx context.Context, query string, page, pageSize int) (*domain.RolePage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	query = strings.TrimSpace(query)

	total, err := s.roles.Count(ctx, query)
	if err != nil {
		return nil, err
	}
	result := &domain.RolePage{
		Roles:    []domain.Role{},
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	// past the last page; also keeps the offset below from overflowing
	if int64(page-1) >= int64(result.TotalPages()) {
		return result, nil
	}

	roles, err := s.roles.List(ctx, repository.RoleFilter{
		Query:  query,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, err
	}
	result.Roles = roles
	return result, nil
}

func (s *roleService) GetByID(ctx context.Context, id int64) (*domain.Role, bool, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return role, true, nil
}

func (s *roleService) Update(ctx context.Context, id int64, name string, description *string) (*domain.Role, error) {
	role, err := buildRole(name, description)
	if err != nil {
		return nil, err
	}
	role.ID = id

	if err := s.roles.Update(ctx, role); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: id %d", ErrRoleNotFound, id)
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fmt.Errorf("%w: role %q already exists", ErrValidation, role.Name)
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"role_id": id, "role": role.Name}).Info("role updated")
	return role, nil
}

func (s *roleService) Delete(ctx context.Context, id int64) error {
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("role_id", id).Info("role deleted")
	return nil
}

func (s *roleService) SeedDefaults(ctx context.Context) error {
	for _, role := range DefaultRoles {
		if err := s.roles.EnsureExists(ctx, role); err != nil {
			return fmt.Errorf("seed role %q: %w", role.Name, err)
		}
	}
	return nil
}

func buildRole(name string, description *string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrValidation)
	}
	role := &domain.Role{Name: name}
	if description != nil {
		if d := strings.TrimSpace(*description); d != "" {
			role.Description = &d
		}
	}
	return role, nil
}

func strPtr(s string) *string { return &s }
