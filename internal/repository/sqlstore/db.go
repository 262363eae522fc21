package sqlstore

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

// Config selects the driver and connection for the credential store.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// ConnParams are the discrete connection settings used when no DSN is given.
type ConnParams struct {
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)

	// SQLite's built-in lower() only folds ASCII; role search lowercases the
	// pattern in Go, so both sides must fold the same way.
	if err := sqlite.RegisterDeterministicScalarFunction("lower", 1, unicodeLower); err != nil {
		panic(fmt.Sprintf("register sqlite lower: %v", err))
	}
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// BuildDSN renders a driver specific DSN from discrete parameters.
func BuildDSN(driver string, p ConnParams) (string, error) {
	switch driver {
	case DriverSQLite:
		if p.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		return p.Path, nil
	case DriverPostgres:
		sslMode := p.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(p.User, p.Password),
			Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
			Path:     "/" + p.Name,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String(), nil
	case DriverMySQL:
		c := mysql.NewConfig()
		c.User = p.User
		c.Passwd = p.Password
		c.Net = "tcp"
		c.Addr = fmt.Sprintf("%s:%d", p.Host, p.Port)
		c.DBName = p.Name
		c.ParseTime = true
		c.ClientFoundRows = true
		c.Loc = time.UTC
		return c.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to the configured database and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		dsn, err = prepareSQLite(dsn)
		if err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		// single writer; also keeps the per-connection pragmas in effect
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		maxConns := cfg.MaxOpenConns
		if maxConns <= 0 {
			maxConns = 10
		}
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Driver, err)
	}

	return &Store{db: db, dialect: d}, nil
}

// prepareSQLite makes sure the database directory exists and turns on
// foreign keys so user_roles rows cascade.
func prepareSQLite(dsn string) (string, error) {
	path, query, _ := strings.Cut(dsn, "?")
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create db dir: %w", err)
		}
	}
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	if query != "" {
		params = append([]string{query}, params...)
	}
	return path + "?" + strings.Join(params, "&"), nil
}
