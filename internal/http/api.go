package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rbac-auth/internal/security"
	"rbac-auth/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune route mounting and error detail.
type Options struct {
	BasePath    string
	AdminRole   string
	Development bool
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth    service.AuthService
	roles   service.RoleService
	tokens  security.TokenIssuer
	db      Pinger
	metrics *Metrics
	log     logrus.FieldLogger
	opts    Options
}

func NewHandler(auth service.AuthService, roles service.RoleService, tokens security.TokenIssuer, db Pinger, metrics *Metrics, log logrus.FieldLogger, opts Options) *Handler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.AdminRole == "" {
		opts.AdminRole = "admin"
	}
	opts.BasePath = "/" + strings.Trim(opts.BasePath, "/")
	return &Handler{
		auth:    auth,
		roles:   roles,
		tokens:  tokens,
		db:      db,
		metrics: metrics,
		log:     log,
		opts:    opts,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(
		requestContext(),
		requestLogger(h.log),
		h.recovery(),
		h.metrics.middleware(),
		corsMiddleware(),
		securityHeaders(),
	)
	router.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, envelope{
			Status:       statusFail,
			Message:      "route not found",
			Data:         gin.H{},
			ResponseTime: responseTime(c),
		})
	})

	api := router.Group(h.opts.BasePath)
	api.GET("/health", h.health)
	api.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/refresh-token", h.refreshToken)
		auth.GET("/me", h.authenticate(), h.me)
	}

	admin := h.requireRole(h.opts.AdminRole)

	roles := api.Group("/roles", h.authenticate())
	{
		roles.GET("", h.listRoles)
		roles.GET("/:id", h.getRole)
		roles.POST("", admin, h.createRole)
		roles.PUT("/:id", admin, h.updateRole)
		roles.DELETE("/:id", admin, h.deleteRole)
	}

	users := api.Group("/users", h.authenticate(), admin)
	{
		users.POST("/:id/roles", h.assignRole)
	}
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.WithError(err).Error("health check: database unreachable")
		c.JSON(http.StatusServiceUnavailable, envelope{
			Status:       statusError,
			Message:      "database unavailable",
			Data:         gin.H{"database": "down"},
			ResponseTime: responseTime(c),
		})
		return
	}
	h.respond(c, http.StatusOK, "ok", gin.H{"database": "up"})
}
