package department

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	departmentsvc "github.com/vs-ai-ds/hms-backend/internal/service/department"
)

type Handler struct {
	service *departmentsvc.Service
	guard   *middleware.TenantContextMiddleware
}

func NewHandler(service *departmentsvc.Service, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	departments := r.Group("/departments")
	{
		departments.POST("", h.guard.Require(authz.PermDepartmentsCreate), h.Create)
		departments.GET("", h.guard.Require(authz.PermDepartmentsView), h.List)
		departments.GET("/:id", h.guard.Require(authz.PermDepartmentsView), h.Get)
		departments.PUT("/:id", h.guard.Require(authz.PermDepartmentsUpdate), h.Update)
	}
}

func (h *Handler) Create(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	d, err := h.service.Create(c.Request.Context(), &tc.Tenant, tc.UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(d))
}

func (h *Handler) Get(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	d, err := h.service.Get(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(d))
}

func (h *Handler) List(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	departments, err := h.service.List(c.Request.Context(), &tc.Tenant)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(departments))
}

func (h *Handler) Update(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	d, err := h.service.Update(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(d))
}
