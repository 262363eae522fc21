package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"rbac-auth/internal/repository/sqlstore"
)

// Environment names recognised by app.env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		BasePath        string        `mapstructure:"base_path"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Database struct {
		Driver       string `mapstructure:"driver"`
		DSN          string `mapstructure:"dsn"`
		Path         string `mapstructure:"path"`
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		Name         string `mapstructure:"name"`
		SSLMode      string `mapstructure:"sslmode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	} `mapstructure:"database"`
	Auth struct {
		AccessSecret  string        `mapstructure:"access_secret"`
		RefreshSecret string        `mapstructure:"refresh_secret"`
		AccessTTL     time.Duration `mapstructure:"access_ttl"`
		RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
		BcryptCost    int           `mapstructure:"bcrypt_cost"`
		DefaultRole   string        `mapstructure:"default_role"`
		AdminRole     string        `mapstructure:"admin_role"`
	} `mapstructure:"auth"`
	Seed struct {
		Roles bool `mapstructure:"roles"`
	} `mapstructure:"seed"`
	Log struct {
		Level  string        `mapstructure:"level"`
		Format string        `mapstructure:"format"`
		File   string        `mapstructure:"file"`
		MaxAge time.Duration `mapstructure:"max_age"`
	} `mapstructure:"log"`
}

// Load reads configuration from environment variables and optional config files.
// Variables use the RBAC_ prefix with dots replaced by underscores, e.g.
// RBAC_AUTH_ACCESS_SECRET. RBAC_CONFIG_FILE points at an explicit file.
func Load() (Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RBAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if file := os.Getenv("RBAC_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // optional file
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	return cfg, nil
}

// Every key needs a default so AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("app.env", EnvProduction)

	v.SetDefault("database.driver", sqlstore.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "data/auth.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("auth.access_secret", "")
	v.SetDefault("auth.refresh_secret", "")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "168h")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.default_role", "user")
	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("seed.roles", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_age", "168h")
}

// Validate reports every setting the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.AccessSecret) == "" {
		errs = append(errs, errors.New("auth.access_secret is required"))
	}
	if strings.TrimSpace(c.Auth.RefreshSecret) == "" {
		errs = append(errs, errors.New("auth.refresh_secret is required"))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth.access_secret and auth.refresh_secret must differ"))
	}
	if c.Auth.AccessTTL <= 0 {
		errs = append(errs, errors.New("auth.access_ttl must be positive"))
	}
	if c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("auth.refresh_ttl must be positive"))
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range 4-31", c.Auth.BcryptCost))
	}
	switch c.Database.Driver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres, sqlstore.DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite, postgres, mysql", c.Database.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether internal error detail may be exposed.
func (c Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// StoreConfig resolves the database settings into a sqlstore.Config. An
// explicit DSN wins over the discrete connection fields.
func (c Config) StoreConfig() (sqlstore.Config, error) {
	dsn := c.Database.DSN
	if dsn == "" {
		port := c.Database.Port
		if port == 0 {
			switch c.Database.Driver {
			case sqlstore.DriverPostgres:
				port = 5432
			case sqlstore.DriverMySQL:
				port = 3306
			}
		}
		var err error
		dsn, err = sqlstore.BuildDSN(c.Database.Driver, sqlstore.ConnParams{
			Path:     c.Database.Path,
			Host:     c.Database.Host,
			Port:     port,
			User:     c.Database.User,
			Password: c.Database.Password,
			Name:     c.Database.Name,
			SSLMode:  c.Database.SSLMode,
		})
		if err != nil {
			return sqlstore.Config{}, err
		}
	}
	return sqlstore.Config{
		Driver:       c.Database.Driver,
		DSN:          dsn,
		MaxOpenConns: c.Database.MaxOpenConns,
	}, nil
}
