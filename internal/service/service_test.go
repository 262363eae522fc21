package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rbac-auth/internal/domain"
	"rbac-auth/internal/repository/sqlstore"
	"rbac-auth/internal/security"
)

type testEnv struct {
	store  *sqlstore.Store
	tokens security.TokenIssuer
	auth   AuthService
	roles  RoleService
	hook   *logtest.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver: sqlstore.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "auth.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init(ctx))

	tokens, err := security.NewTokenIssuer(security.TokenConfig{
		AccessSecret:  "access-" + gofakeit.UUID(),
		RefreshSecret: "refresh-" + gofakeit.UUID(),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	env := &testEnv{
		store:  store,
		tokens: tokens,
		auth:   NewAuthService(store, security.BcryptHasher{Cost: bcrypt.MinCost}, tokens, "user", logger),
		roles:  NewRoleService(store.Roles(), logger),
		hook:   hook,
	}
	require.NoError(t, env.roles.SeedDefaults(ctx))
	return env
}

func fakeRegistration(roles ...string) RegisterInput {
	return RegisterInput{
		Name:     gofakeit.Name(),
		Email:    gofakeit.Email(),
		Username: gofakeit.Username() + gofakeit.DigitN(4),
		Password: gofakeit.Password(true, true, true, false, false, 12),
		Roles:    roles,
	}
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}
