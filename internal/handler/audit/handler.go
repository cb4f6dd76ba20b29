package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	auditsvc "github.com/vs-ai-ds/hms-backend/internal/service/audit"
)

type Handler struct {
	service *auditsvc.Service
	guard   *middleware.TenantContextMiddleware
}

func NewHandler(service *auditsvc.Service, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs", h.guard.Require(authz.PermAuditView), h.List)
}

// RegisterPlatformRoutes exposes the unscoped trail to operators.
func (h *Handler) RegisterPlatformRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs", h.ListAll)
}

// List answers the tenant-scoped view. The tenant filter is forced
// from the established context; a caller-supplied tenant_id is
// overwritten, never honored.
func (h *Handler) List(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var filter model.AuditLogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	tenantID := tc.Tenant.ID
	filter.TenantID = &tenantID

	logs, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) ListAll(c *gin.Context) {
	var filter model.AuditLogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	logs, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}
