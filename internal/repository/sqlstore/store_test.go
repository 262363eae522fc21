package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbac-auth/internal/domain"
	"rbac-auth/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := Open(ctx, Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "db", "auth.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init(ctx))
	// idempotent
	require.NoError(t, store.Init(ctx))
	return store
}

func newUser(t *testing.T, store *Store) *domain.User {
	t.Helper()

	u := &domain.User{
		Name:         gofakeit.Name(),
		Email:        gofakeit.Email(),
		Username:     gofakeit.Username(),
		PasswordHash: "hash",
	}
	_, err := store.Users().Create(context.Background(), u)
	require.NoError(t, err)
	return u
}

func strPtr(s string) *string { return &s }

func TestUserRepository_CreateAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := newUser(t, store)
	require.NotZero(t, u.ID)

	byID, err := store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Username, byID.Username)
	assert.Equal(t, "hash", byID.PasswordHash)
	assert.False(t, byID.CreatedAt.IsZero())

	byUsername, err := store.Users().GetByIdentifier(ctx, u.Username)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byUsername.ID)

	byEmail, err := store.Users().GetByIdentifier(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = store.Users().GetByID(ctx, u.ID+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.Users().GetByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_DuplicateUsernameAndEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newUser(t, store)

	_, err := store.Users().Create(ctx, &domain.User{
		Name: "x", Email: "other@example.com", Username: u.Username, PasswordHash: "h",
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = store.Users().Create(ctx, &domain.User{
		Name: "x", Email: u.Email, Username: "someone-else", PasswordHash: "h",
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestRoleRepository_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	roles := store.Roles()

	role := &domain.Role{Name: "editor", Description: strPtr("Edits things")}
	id, err := roles.Create(ctx, role)
	require.NoError(t, err)
	assert.Equal(t, id, role.ID)

	_, err = roles.Create(ctx, &domain.Role{Name: "editor"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	got, err := roles.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Description)
	assert.Equal(t, "Edits things", *got.Description)

	role.Name = "writer"
	role.Description = nil
	require.NoError(t, roles.Update(ctx, role))
	got, err = roles.GetByName(ctx, "writer")
	require.NoError(t, err)
	assert.Nil(t, got.Description)

	err = roles.Update(ctx, &domain.Role{ID: id + 99, Name: "ghost"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	other := &domain.Role{Name: "reader"}
	_, err = roles.Create(ctx, other)
	require.NoError(t, err)
	other.Name = "writer"
	assert.ErrorIs(t, roles.Update(ctx, other), repository.ErrDuplicate)

	require.NoError(t, roles.Delete(ctx, id))
	_, err = roles.GetByID(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	// deleting again is not an error
	require.NoError(t, roles.Delete(ctx, id))
}

func TestRoleRepository_ListAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	roles := store.Roles()

	for _, r := range []domain.Role{
		{Name: "Admin", Description: strPtr("Administrator role")},
		{Name: "user", Description: strPtr("Standard user role")},
		{Name: "guest", Description: strPtr("Guest USER role")},
		{Name: "auditor"},
		{Name: "100%_real"},
	} {
		_, err := roles.Create(ctx, &r)
		require.NoError(t, err)
	}

	total, err := roles.Count(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	total, err = roles.Count(ctx, "USER")
	require.NoError(t, err)
	assert.EqualValues(t, 2, total, "matches name or description, case-insensitive")

	page, err := roles.List(ctx, repository.RoleFilter{Query: "user", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "guest", page[0].Name)

	total, err = roles.Count(ctx, "%")
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "LIKE wildcards in the query are literal")

	page, err = roles.List(ctx, repository.RoleFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestRoleRepository_FindByNamesAndEnsureExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	roles := store.Roles()

	require.NoError(t, roles.EnsureExists(ctx, domain.Role{Name: "user"}))
	require.NoError(t, roles.EnsureExists(ctx, domain.Role{Name: "user"}))
	require.NoError(t, roles.EnsureExists(ctx, domain.Role{Name: "admin"}))

	found, err := roles.FindByNames(ctx, []string{"admin", "user", "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = roles.FindByNames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUserRoles_AssignIsIdempotentAndCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newUser(t, store)

	admin := &domain.Role{Name: "admin"}
	_, err := store.Roles().Create(ctx, admin)
	require.NoError(t, err)
	user := &domain.Role{Name: "user"}
	_, err = store.Roles().Create(ctx, user)
	require.NoError(t, err)

	require.NoError(t, store.UserRoles().Assign(ctx, u.ID, admin.ID))
	require.NoError(t, store.UserRoles().Assign(ctx, u.ID, admin.ID))
	require.NoError(t, store.UserRoles().Assign(ctx, u.ID, user.ID))

	held, err := store.Roles().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, held, 2)

	require.NoError(t, store.Roles().Delete(ctx, admin.ID))

	held, err = store.Roles().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "user", held[0].Name)

	var orphans int
	require.NoError(t, store.db.GetContext(ctx, &orphans,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = ?`, admin.ID))
	assert.Zero(t, orphans)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(repos repository.Repositories) error {
		_, err := repos.Users().Create(ctx, &domain.User{
			Name: "Tx", Email: "tx@example.com", Username: "tx", PasswordHash: "h",
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Users().GetByIdentifier(ctx, "tx")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = store.WithinTx(ctx, func(repos repository.Repositories) error {
		_, err := repos.Users().Create(ctx, &domain.User{
			Name: "Tx", Email: "tx@example.com", Username: "tx", PasswordHash: "h",
		})
		return err
	})
	require.NoError(t, err)
	_, err = store.Users().GetByIdentifier(ctx, "tx")
	assert.NoError(t, err)
}

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(DriverPostgres, ConnParams{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "auth"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss@db:5432/auth?sslmode=disable", dsn)

	dsn, err = BuildDSN(DriverMySQL, ConnParams{Host: "db", Port: 3306, User: "app", Password: "secret", Name: "auth"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:secret@tcp(db:3306)/auth")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "clientFoundRows=true")

	dsn, err = BuildDSN(DriverSQLite, ConnParams{Path: "data/auth.db"})
	require.NoError(t, err)
	assert.Equal(t, "data/auth.db", dsn)

	_, err = BuildDSN("oracle", ConnParams{})
	assert.Error(t, err)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestRoleRepository_SearchFoldsNonASCII(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	roles := store.Roles()

	_, err := roles.Create(ctx, &domain.Role{Name: "ÉDITEUR", Description: strPtr("Rédacteur en chef")})
	require.NoError(t, err)
	_, err = roles.Create(ctx, &domain.Role{Name: "editor"})
	require.NoError(t, err)

	for _, q := range []string{"ÉDITEUR", "éditeur", "ÉdIt", "RÉDACTEUR", "en CHEF"} {
		total, err := roles.Count(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total, q)

		page, err := roles.List(ctx, repository.RoleFilter{Query: q, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page, 1, q)
		assert.Equal(t, "ÉDITEUR", page[0].Name)
	}

	total, err := roles.Count(ctx, "EDIT")
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "accents are not stripped")
}

func TestStore_WithinTxRollsBackOnPanic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.PanicsWithValue(t, "boom", func() {
		_ = store.WithinTx(ctx, func(repos repository.Repositories) error {
			_, err := repos.Users().Create(ctx, &domain.User{
				Name: "Tx", Email: "tx@example.com", Username: "tx", PasswordHash: "h",
			})
			require.NoError(t, err)
			panic("boom")
		})
	})

	// the single sqlite connection must be free again
	done := make(chan error, 1)
	go func() {
		_, err := store.Users().GetByIdentifier(ctx, "tx")
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, repository.ErrNotFound)
	case <-time.After(5 * time.Second):
		t.Fatal("connection still held by the aborted transaction")
	}
}
