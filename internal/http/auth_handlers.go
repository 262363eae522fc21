package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"rbac-auth/internal/service"
)

type registerRequest struct {
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email" binding:"required,email"`
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required,min=6"`
	Roles    []string `json:"roles"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required,min=6"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type assignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Roles:    req.Roles,
	})
	h.metrics.authEvent("register", err)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, "User registered successfully", gin.H{"user": user})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password)
	h.metrics.authEvent("login", err)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "Login successful", res)
}

func (h *Handler) refreshToken(c *gin.Context) {
	var req refreshRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	token, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken)
	h.metrics.authEvent("refresh", err)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "Token refreshed", gin.H{"accessToken": token})
}

func (h *Handler) me(c *gin.Context) {
	claims := claimsFrom(c)
	if claims == nil {
		h.fail(c, ErrUnauthorized)
		return
	}

	user, err := h.auth.GetMe(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "User fetched successfully", gin.H{"user": user})
}

func (h *Handler) assignRole(c *gin.Context) {
	userID, err := pathID(c, "user")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req assignRoleRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.auth.AssignRole(c.Request.Context(), userID, req.Role)
	if err != nil {
		h.fail(c, fmt.Errorf("assign role %q to user %d: %w", req.Role, userID, err))
		return
	}
	h.respond(c, http.StatusOK, "Role assigned successfully", gin.H{"user": user})
}
