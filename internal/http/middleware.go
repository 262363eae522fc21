package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rbac-auth/internal/security"
)

const (
	ctxKeyStart     = "request.start"
	ctxKeyRequestID = "request.id"
	ctxKeyClaims    = "auth.claims"

	headerRequestID = "X-Request-ID"
)

// requestContext stamps the start time and a request id on every request.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxKeyStart, time.Now())

		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)

		c.Next()
	}
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(c.GetTime(ctxKeyStart)).Milliseconds(),
			"request_id": c.GetString(ctxKeyRequestID),
			"client_ip":  c.ClientIP(),
		}
		if claims := claimsFrom(c); claims != nil {
			fields["user_id"] = claims.UserID
		}
		entry := log.WithFields(fields)
		if last := c.Errors.Last(); last != nil {
			entry = entry.WithError(last.Err)
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}

func (h *Handler) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		h.log.WithField("request_id", c.GetString(ctxKeyRequestID)).Errorf("panic: %v", recovered)
		h.fail(c, fmt.Errorf("panic: %v", recovered))
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}

// authenticate requires a valid access token and stores its claims.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			h.fail(c, fmt.Errorf("%w: missing bearer token", ErrUnauthorized))
			return
		}
		claims, err := h.tokens.VerifyAccess(token)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(ctxKeyClaims, claims)
		c.Next()
	}
}

// requireRole lets the request through when the token holds any of roles.
func (h *Handler) requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			h.fail(c, ErrUnauthorized)
			return
		}
		if !claims.HasRole(roles...) {
			h.fail(c, fmt.Errorf("%w: user %d lacks role %v", ErrForbidden, claims.UserID, roles))
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func claimsFrom(c *gin.Context) *security.AccessClaims {
	v, ok := c.Get(ctxKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*security.AccessClaims)
	return claims
}
