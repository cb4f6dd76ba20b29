package tenant

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	tenantsvc "github.com/vs-ai-ds/hms-backend/internal/service/tenant"
)

// Handler covers the three tenant surfaces: public registration and
// verification, a hospital's own settings, and platform lifecycle
// administration.
type Handler struct {
	service *tenantsvc.Service
	guard   *middleware.TenantContextMiddleware
}

func NewHandler(service *tenantsvc.Service, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, guard: guard}
}

// RegisterRoutes mounts the unauthenticated onboarding surface.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tenants := r.Group("/tenants")
	{
		tenants.POST("", h.Register)
		tenants.POST("/verify", h.Verify)
	}
}

// RegisterTenantRoutes mounts a hospital's view of itself.
func (h *Handler) RegisterTenantRoutes(r *gin.RouterGroup) {
	t := r.Group("/tenant")
	{
		t.GET("", h.guard.Require(authz.PermTenantView), h.Get)
		t.PUT("", h.guard.Require(authz.PermTenantUpdate), h.Update)
	}
}

// RegisterPlatformRoutes mounts tenant lifecycle administration.
// Status changes are platform-operator actions, never self-service.
func (h *Handler) RegisterPlatformRoutes(r *gin.RouterGroup) {
	tenants := r.Group("/tenants")
	{
		tenants.GET("", h.List)
		tenants.GET("/:id", h.GetByID)
		tenants.POST("/:id/activate", h.Activate)
		tenants.POST("/:id/suspend", h.Suspend)
		tenants.POST("/:id/reactivate", h.Reactivate)
		tenants.POST("/:id/deactivate", h.Deactivate)
		tenants.PUT("/:id/limits", h.UpdateLimits)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	t, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(t))
}

func (h *Handler) Verify(c *gin.Context) {
	var req model.VerifyTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	t, err := h.service.Verify(c.Request.Context(), req.Token)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) Get(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	t, err := h.service.Get(c.Request.Context(), tc.Tenant.ID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) Update(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	t, err := h.service.Update(c.Request.Context(), tc.Tenant.ID, &tc.UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) List(c *gin.Context) {
	var filter model.TenantListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	tenants, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(tenants))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	t, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) Activate(c *gin.Context) {
	h.lifecycle(c, func(id uuid.UUID, actor *uuid.UUID) (*model.Tenant, error) {
		return h.service.Activate(c.Request.Context(), id, actor)
	})
}

func (h *Handler) Suspend(c *gin.Context) {
	var req model.SuspendTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	h.lifecycle(c, func(id uuid.UUID, actor *uuid.UUID) (*model.Tenant, error) {
		return h.service.Suspend(c.Request.Context(), id, actor, req.Reason)
	})
}

func (h *Handler) Reactivate(c *gin.Context) {
	h.lifecycle(c, func(id uuid.UUID, actor *uuid.UUID) (*model.Tenant, error) {
		return h.service.Reactivate(c.Request.Context(), id, actor)
	})
}

func (h *Handler) Deactivate(c *gin.Context) {
	h.lifecycle(c, func(id uuid.UUID, actor *uuid.UUID) (*model.Tenant, error) {
		return h.service.Deactivate(c.Request.Context(), id, actor)
	})
}

func (h *Handler) UpdateLimits(c *gin.Context) {
	var req model.UpdateTenantLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	h.lifecycle(c, func(id uuid.UUID, actor *uuid.UUID) (*model.Tenant, error) {
		return h.service.UpdateLimits(c.Request.Context(), id, actor, &req)
	})
}

func (h *Handler) lifecycle(c *gin.Context, fn func(id uuid.UUID, actor *uuid.UUID) (*model.Tenant, error)) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var actor *uuid.UUID
	if userID, ok := middleware.UserID(c); ok {
		actor = &userID
	}

	t, err := fn(id, actor)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}
