package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rbac-auth/internal/service"
)

type roleRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

func (h *Handler) listRoles(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		h.fail(c, err)
		return
	}
	// the page size is called "offset"; "limit" is accepted too
	sizeKey := "offset"
	if _, ok := c.GetQuery(sizeKey); !ok {
		sizeKey = "limit"
	}
	size, err := queryInt(c, sizeKey)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.roles.List(c.Request.Context(), c.Query("q"), page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondPage(c, http.StatusOK, "Roles fetched successfully", result.Roles, &pageMeta{
		Page:      result.Page,
		Limit:     result.PageSize,
		TotalPage: result.TotalPages(),
		Count:     result.Total,
	})
}

func (h *Handler) getRole(c *gin.Context) {
	id, err := pathID(c, "role")
	if err != nil {
		h.fail(c, err)
		return
	}

	role, found, err := h.roles.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		h.fail(c, fmt.Errorf("%w: id %d", service.ErrRoleNotFound, id))
		return
	}
	h.respond(c, http.StatusOK, "Role fetched successfully", gin.H{"role": role})
}

func (h *Handler) createRole(c *gin.Context) {
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	role, err := h.roles.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, "Role created successfully", gin.H{"role": role})
}

func (h *Handler) updateRole(c *gin.Context) {
	id, err := pathID(c, "role")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	role, err := h.roles.Update(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "Role updated successfully", gin.H{"role": role})
}

func (h *Handler) deleteRole(c *gin.Context) {
	id, err := pathID(c, "role")
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.roles.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, what string) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s id", errBadRequest, what)
	}
	return id, nil
}

// queryInt returns 0 for an absent parameter.
func queryInt(c *gin.Context, key string) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
	}
	return n, nil
}
