package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"rbac-auth/internal/security"
	"rbac-auth/internal/service"
)

var (
	// ErrUnauthorized is returned when a request carries no usable bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller lacks a required role.
	ErrForbidden = errors.New("forbidden")

	errBadRequest = errors.New("invalid request")
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

type pageMeta struct {
	Page      int   `json:"page"`
	Limit     int   `json:"limit"`
	TotalPage int   `json:"total_page"`
	Count     int64 `json:"count"`
}

type envelope struct {
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	Data         any       `json:"data"`
	Meta         *pageMeta `json:"meta,omitempty"`
	Errors       []string  `json:"errors,omitempty"`
	ResponseTime int64     `json:"response_time"`
}

func init() {
	// report binding failures with json field names
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

func responseTime(c *gin.Context) int64 {
	start := c.GetTime(ctxKeyStart)
	if start.IsZero() {
		return 0
	}
	return time.Since(start).Milliseconds()
}

func (h *Handler) respond(c *gin.Context, code int, message string, data any) {
	h.respondPage(c, code, message, data, nil)
}

func (h *Handler) respondPage(c *gin.Context, code int, message string, data any, meta *pageMeta) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(code, envelope{
		Status:       statusSuccess,
		Message:      message,
		Data:         data,
		Meta:         meta,
		ResponseTime: responseTime(c),
	})
}

// fail writes the error envelope for err and aborts the chain.
func (h *Handler) fail(c *gin.Context, err error) {
	code, message := classify(err)

	body := envelope{
		Status:  statusFail,
		Message: message,
		Data:    gin.H{},
	}
	if code >= http.StatusInternalServerError {
		body.Status = statusError
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		body.Message = "validation failed"
		for _, fe := range verrs {
			body.Errors = append(body.Errors, describeField(fe))
		}
	case h.opts.Development:
		body.Errors = []string{err.Error()}
	}

	_ = c.Error(err)
	body.ResponseTime = responseTime(c)
	c.AbortWithStatusJSON(code, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
	case errors.Is(err, security.ErrCredential):
		return http.StatusBadRequest, "invalid password"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, service.ErrRoleNotFound):
		return http.StatusNotFound, "role not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// bindJSON decodes the body into dst, tagging failures as bad requests.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
