package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"rbac-auth/internal/domain"
	"rbac-auth/internal/repository"
	"rbac-auth/internal/security"
)

// RegisterInput carries the fields of a new account. Roles defaults to the
// configured default role when empty.
type RegisterInput struct {
	Name     string
	Email    string
	Username string
	Password string
	Roles    []string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *domain.User `json:"user"`
}

// AuthService describes account and session operations.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, identifier, password string) (*LoginResult, error)
	RefreshToken(ctx context.Context, token string) (string, error)
	GetMe(ctx context.Context, userID int64) (*domain.User, error)
	AssignRole(ctx context.Context, userID int64, roleName string) (*domain.User, error)
}

type authService struct {
	store       repository.Store
	hasher      security.PasswordHasher
	tokens      security.TokenIssuer
	defaultRole string
	log         logrus.FieldLogger
}

func NewAuthService(store repository.Store, hasher security.PasswordHasher, tokens security.TokenIssuer, defaultRole string, log logrus.FieldLogger) AuthService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &authService{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		defaultRole: strings.TrimSpace(defaultRole),
		log:         log,
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	case email == "":
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	case username == "":
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	case in.Password == "":
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	wanted := normalizeRoleNames(in.Roles)
	if len(wanted) == 0 && s.defaultRole != "" {
		wanted = []string{s.defaultRole}
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	}

	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: username or email already taken", ErrValidation)
			}
			return err
		}

		roles, err := repos.Roles().FindByNames(ctx, wanted)
		if err != nil {
			return err
		}
		if missing := missingRoleNames(wanted, roles); len(missing) > 0 {
			s.log.WithFields(logrus.Fields{
				"username": username,
				"roles":    missing,
			}).Warn("ignoring unknown roles at registration")
		}
		for _, role := range roles {
			if err := repos.UserRoles().Assign(ctx, user.ID, role.ID); err != nil {
				return err
			}
		}
		user.Roles = roles
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			s.log.WithError(err).WithField("username", username).Error("register user")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return sanitizeUser(user), nil
}

func (s *authService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.WithField("identifier", identifier).Info("login rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.log.WithField("identifier", identifier).Info("login rejected")
		return nil, ErrInvalidCredentials
	}

	if user.Roles, err = s.store.Roles().ListByUser(ctx, user.ID); err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccess(user, user.RoleNames())
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         sanitizeUser(user),
	}, nil
}

func (s *authService) RefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.tokens.VerifyRefresh(strings.TrimSpace(token))
	if err != nil {
		return "", err
	}

	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	return s.tokens.IssueAccess(user, user.RoleNames())
}

func (s *authService) GetMe(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *authService) AssignRole(ctx context.Context, userID int64, roleName string) (*domain.User, error) {
	roleName = strings.TrimSpace(roleName)
	role, err := s.store.Roles().GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, roleName)
		}
		return nil, err
	}

	// INSERT IGNORE on mysql swallows foreign key failures too.
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.store.UserRoles().Assign(ctx, userID, role.ID); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "role": role.Name}).Info("role assigned")
	return s.GetMe(ctx, userID)
}

// loadUser fetches the user together with its current roles.
func (s *authService) loadUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Roles, err = s.store.Roles().ListByUser(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

func normalizeRoleNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func missingRoleNames(wanted []string, found []domain.Role) []string {
	have := make(map[string]struct{}, len(found))
	for _, r := range found {
		have[r.Name] = struct{}{}
	}
	var missing []string
	for _, n := range wanted {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	roles := user.Roles
	if roles == nil {
		roles = []domain.Role{}
	}
	return &domain.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Username:  user.Username,
		Roles:     roles,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
