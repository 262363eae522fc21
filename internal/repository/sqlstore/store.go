package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rbac-auth/internal/repository"
)

// Store implements repository.Store on top of sqlx.
type Store struct {
	db      *sqlx.DB
	dialect *dialect
}

var _ repository.Store = (*Store)(nil)

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Users() repository.UserRepository {
	return &UserRepository{ext: s.db, dialect: s.dialect}
}

func (s *Store) Roles() repository.RoleRepository {
	return &RoleRepository{ext: s.db, dialect: s.dialect}
}

func (s *Store) UserRoles() repository.UserRoleRepository {
	return &UserRoleRepository{ext: s.db, dialect: s.dialect}
}

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// free the connection before re-panicking
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(txRepositories{tx: tx, dialect: s.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txRepositories struct {
	tx      *sqlx.Tx
	dialect *dialect
}

func (t txRepositories) Users() repository.UserRepository {
	return &UserRepository{ext: t.tx, dialect: t.dialect}
}

func (t txRepositories) Roles() repository.RoleRepository {
	return &RoleRepository{ext: t.tx, dialect: t.dialect}
}

func (t txRepositories) UserRoles() repository.UserRoleRepository {
	return &UserRoleRepository{ext: t.tx, dialect: t.dialect}
}
