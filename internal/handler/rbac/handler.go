package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	rbacsvc "github.com/vs-ai-ds/hms-backend/internal/service/rbac"
)

type Handler struct {
	service *rbacsvc.Service
	guard   *middleware.TenantContextMiddleware
}

func NewHandler(service *rbacsvc.Service, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	roles := r.Group("/roles")
	{
		roles.POST("", h.guard.Require(authz.PermRolesCreate), h.CreateRole)
		roles.GET("", h.guard.Require(authz.PermRolesView), h.ListRoles)
		roles.GET("/:id", h.guard.Require(authz.PermRolesView), h.GetRole)
		roles.PUT("/:id", h.guard.Require(authz.PermRolesUpdate), h.UpdateRole)
		roles.DELETE("/:id", h.guard.Require(authz.PermRolesUpdate), h.DeleteRole)
	}

	assignments := r.Group("/users/:id/roles", h.guard.Require(authz.PermRolesAssign))
	{
		assignments.GET("", h.ListUserRoles)
		assignments.POST("", h.AssignRole)
		assignments.DELETE("/:roleId", h.RemoveRole)
	}

	r.GET("/permissions", h.guard.Require(authz.PermRolesView), h.ListPermissions)
}

func (h *Handler) CreateRole(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	role, err := h.service.CreateRole(c.Request.Context(), &tc.Tenant, tc.UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(role))
}

func (h *Handler) GetRole(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	role, err := h.service.GetRole(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(role))
}

func (h *Handler) ListRoles(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	roles, err := h.service.ListRoles(c.Request.Context(), &tc.Tenant)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(roles))
}

func (h *Handler) UpdateRole(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	role, err := h.service.UpdateRole(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(role))
}

func (h *Handler) DeleteRole(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRole(c.Request.Context(), &tc.Tenant, tc.UserID, id); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"message": "role deleted"}))
}

func (h *Handler) ListUserRoles(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	userID, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	roles, err := h.service.ListUserRoles(c.Request.Context(), &tc.Tenant, userID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(roles))
}

func (h *Handler) AssignRole(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	userID, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.AssignRole(c.Request.Context(), &tc.Tenant, tc.UserID, userID, req.RoleID); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"message": "role assigned"}))
}

func (h *Handler) RemoveRole(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	userID, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	roleID, ok := handler.ParseID(c, "roleId")
	if !ok {
		return
	}

	if err := h.service.RemoveRole(c.Request.Context(), &tc.Tenant, tc.UserID, userID, roleID); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"message": "role removed"}))
}

// ListPermissions returns the platform catalogue. It is shared data;
// tenancy does not change it.
func (h *Handler) ListPermissions(c *gin.Context) {
	permissions, err := h.service.ListPermissions(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(permissions))
}
