package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rbac-auth/internal/config"
	apphttp "rbac-auth/internal/http"
	"rbac-auth/internal/logging"
	"rbac-auth/internal/repository/sqlstore"
	"rbac-auth/internal/security"
	"rbac-auth/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		MaxAge: cfg.Log.MaxAge,
	})
	if err != nil {
		logrus.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		logger.Fatalf("database config: %v", err)
	}
	store, err := sqlstore.Open(ctx, storeCfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		logger.Fatalf("init database: %v", err)
	}

	tokens, err := security.NewTokenIssuer(security.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		logger.Fatalf("token issuer: %v", err)
	}

	authService := service.NewAuthService(store, security.BcryptHasher{Cost: cfg.Auth.BcryptCost}, tokens, cfg.Auth.DefaultRole, logger)
	roleService := service.NewRoleService(store.Roles(), logger)

	if cfg.Seed.Roles {
		if err := roleService.SeedDefaults(ctx); err != nil {
			logger.Fatalf("seed roles: %v", err)
		}
	}

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handler := apphttp.NewHandler(
		authService,
		roleService,
		tokens,
		store,
		apphttp.NewMetrics(),
		logger,
		apphttp.Options{
			BasePath:    cfg.Server.BasePath,
			AdminRole:   cfg.Auth.AdminRole,
			Development: cfg.IsDevelopment(),
		},
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"driver": storeCfg.Driver,
			"env":    cfg.App.Env,
		}).Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}
