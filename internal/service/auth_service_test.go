package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rbac-auth/internal/domain"
	"rbac-auth/internal/repository"
	"rbac-auth/internal/security"
)

func TestRegister_DefaultRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := fakeRegistration()

	user, err := env.auth.Register(ctx, in)
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, in.Username, user.Username)
	assert.Equal(t, in.Email, user.Email)
	assert.Equal(t, []string{"user"}, roleNames(user.Roles))
	assert.Empty(t, user.PasswordHash)

	stored, err := env.store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, in.Password, stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(in.Password)))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(in.Password+"x")))
}

func TestRegister_ExplicitRolesIgnoreUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, fakeRegistration("admin", "ghost", "admin"))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roleNames(user.Roles))

	me, err := env.auth.GetMe(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roleNames(me.Roles))

	var warned bool
	for _, e := range env.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, []string{"ghost"}, e.Data["roles"])
		}
	}
	assert.True(t, warned, "unknown role should be logged")
}

func TestRegister_DuplicateUsernameOrEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := fakeRegistration()
	_, err := env.auth.Register(ctx, first)
	require.NoError(t, err)

	sameUsername := fakeRegistration()
	sameUsername.Username = first.Username
	_, err = env.auth.Register(ctx, sameUsername)
	assert.ErrorIs(t, err, ErrValidation)

	sameEmail := fakeRegistration()
	sameEmail.Email = first.Email
	_, err = env.auth.Register(ctx, sameEmail)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "already taken")
}

func TestRegister_RejectsMissingFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for name, mutate := range map[string]func(*RegisterInput){
		"name":     func(in *RegisterInput) { in.Name = "  " },
		"email":    func(in *RegisterInput) { in.Email = "" },
		"username": func(in *RegisterInput) { in.Username = "" },
		"password": func(in *RegisterInput) { in.Password = "" },
	} {
		t.Run(name, func(t *testing.T) {
			in := fakeRegistration()
			mutate(&in)
			_, err := env.auth.Register(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

// failingAssignStore breaks every role assignment made inside a transaction.
type failingAssignStore struct {
	repository.Store
}

type failingAssignRepos struct {
	repository.Repositories
}

type failingUserRoles struct{}

var errAssign = errors.New("assign failed")

func (failingUserRoles) Assign(context.Context, int64, int64) error { return errAssign }

func (r failingAssignRepos) UserRoles() repository.UserRoleRepository { return failingUserRoles{} }

func (s failingAssignStore) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(repos repository.Repositories) error {
		return fn(failingAssignRepos{repos})
	})
}

func TestRegister_IsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := NewAuthService(failingAssignStore{env.store}, security.BcryptHasher{Cost: bcrypt.MinCost}, env.tokens, "user", nil)

	in := fakeRegistration()
	_, err := auth.Register(ctx, in)
	require.ErrorIs(t, err, errAssign)

	_, err = env.store.Users().GetByIdentifier(ctx, in.Username)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLogin_ByUsernameAndEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := fakeRegistration()
	registered, err := env.auth.Register(ctx, in)
	require.NoError(t, err)

	for _, identifier := range []string{in.Username, in.Email} {
		res, err := env.auth.Login(ctx, identifier, in.Password)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, res.User.ID)
		assert.Equal(t, []string{"user"}, roleNames(res.User.Roles))
		assert.NotEmpty(t, res.RefreshToken)

		claims, err := env.tokens.VerifyAccess(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, claims.UserID)
		assert.Equal(t, in.Username, claims.Username)
		assert.Equal(t, []string{"user"}, claims.Roles)

		refresh, err := env.tokens.VerifyRefresh(res.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, refresh.UserID)
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := fakeRegistration()
	_, err := env.auth.Register(ctx, in)
	require.NoError(t, err)

	_, wrongPassword := env.auth.Login(ctx, in.Username, in.Password+"x")
	_, unknownUser := env.auth.Login(ctx, "nobody-"+in.Username, in.Password)
	_, empty := env.auth.Login(ctx, "", "")

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	require.ErrorIs(t, empty, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestRefreshToken_UsesCurrentRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := fakeRegistration()
	user, err := env.auth.Register(ctx, in)
	require.NoError(t, err)

	res, err := env.auth.Login(ctx, in.Username, in.Password)
	require.NoError(t, err)

	_, err = env.auth.AssignRole(ctx, user.ID, "admin")
	require.NoError(t, err)

	access, err := env.auth.RefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	claims, err := env.tokens.VerifyAccess(access)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user", "admin"}, claims.Roles)
}

func TestRefreshToken_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := fakeRegistration()
	_, err := env.auth.Register(ctx, in)
	require.NoError(t, err)
	res, err := env.auth.Login(ctx, in.Username, in.Password)
	require.NoError(t, err)

	_, err = env.auth.RefreshToken(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = env.auth.RefreshToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	orphan, err := env.tokens.IssueRefresh(&domain.User{ID: 9999})
	require.NoError(t, err)
	_, err = env.auth.RefreshToken(ctx, orphan)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetMe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.auth.Register(ctx, fakeRegistration())
	require.NoError(t, err)

	me, err := env.auth.GetMe(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, user.Email, me.Email)

	raw, err := json.Marshal(me)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")
	assert.NotContains(t, string(raw), "$2a$")

	_, err = env.auth.GetMe(ctx, user.ID+1000)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAssignRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.auth.Register(ctx, fakeRegistration())
	require.NoError(t, err)

	updated, err := env.auth.AssignRole(ctx, user.ID, "guest")
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "guest"}, roleNames(updated.Roles))

	again, err := env.auth.AssignRole(ctx, user.ID, "guest")
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "guest"}, roleNames(again.Roles))

	_, err = env.auth.AssignRole(ctx, user.ID, "ghost")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	_, err = env.auth.AssignRole(ctx, user.ID+1000, "guest")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
