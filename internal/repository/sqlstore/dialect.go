package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported values for Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// dialect captures the SQL that differs between the supported databases.
// Everything else is written with ? placeholders and rebound by sqlx.
type dialect struct {
	driverName string
	schema     []string
	// assignSQL inserts a user_roles row, ignoring an existing pair.
	assignSQL string
	// returningID is set when LastInsertId is unavailable.
	returningID bool
	isUnique    func(error) bool
}

func dialectFor(driver string) (*dialect, error) {
	switch driver {
	case DriverSQLite:
		return &dialect{
			driverName: "sqlite",
			schema:     sqliteSchema,
			assignSQL:  `INSERT OR IGNORE INTO user_roles (user_id, role_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			isUnique: func(err error) bool {
				var se *sqlite.Error
				if !errors.As(err, &se) {
					return false
				}
				return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
			},
		}, nil
	case DriverPostgres:
		return &dialect{
			driverName:  "postgres",
			schema:      postgresSchema,
			assignSQL:   `INSERT INTO user_roles (user_id, role_id, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id, role_id) DO NOTHING`,
			returningID: true,
			isUnique: func(err error) bool {
				var pe *pq.Error
				return errors.As(err, &pe) && pe.Code == "23505"
			},
		}, nil
	case DriverMySQL:
		return &dialect{
			driverName: "mysql",
			schema:     mysqlSchema,
			assignSQL:  `INSERT IGNORE INTO user_roles (user_id, role_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			isUnique: func(err error) bool {
				var me *mysql.MySQLError
				return errors.As(err, &me) && me.Number == 1062
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// insert runs an INSERT and returns the generated id.
func (d *dialect) insert(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (int64, error) {
	if d.returningID {
		var id int64
		if err := sqlx.GetContext(ctx, ext, &id, ext.Rebind(query+" RETURNING id"), args...); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	description TEXT NULL
)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (user_id, role_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles (role_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS roles (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NULL
)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, role_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles (role_id)`,
}

// InnoDB indexes foreign key columns itself, so there is no extra index here.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	email VARCHAR(191) NOT NULL UNIQUE,
	username VARCHAR(191) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS roles (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(191) NOT NULL UNIQUE,
	description TEXT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_roles (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	role_id BIGINT NOT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	UNIQUE KEY uq_user_roles_user_role (user_id, role_id),
	CONSTRAINT fk_user_roles_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	CONSTRAINT fk_user_roles_role FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
