package sharing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	sharingsvc "github.com/vs-ai-ds/hms-backend/internal/sharing"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

type Handler struct {
	service *sharingsvc.Service
	guard   *middleware.TenantContextMiddleware
}

func NewHandler(service *sharingsvc.Service, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	shares := r.Group("/shares")
	{
		shares.POST("", h.guard.Require(authz.PermSharingCreate), h.Issue)
		shares.GET("", h.guard.Require(authz.PermSharingView), h.List)
		shares.GET("/:id", h.guard.Require(authz.PermSharingView), h.Get)
		shares.GET("/:id/accesses", h.guard.Require(authz.PermSharingView), h.AccessLog)
		shares.POST("/:id/revoke", h.guard.Require(authz.PermSharingRevoke), h.Revoke)
	}
}

// RegisterRedeemRoute mounts redemption outside the tenant chain: the
// bearer may be an external practitioner whose only credential is the
// token itself.
func (h *Handler) RegisterRedeemRoute(r *gin.RouterGroup) {
	r.POST("/shared-records/access", h.Redeem)
}

func (h *Handler) Issue(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	grant, err := h.service.Issue(c.Request.Context(), &tc.Tenant, tc.UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(grant))
}

type redeemRequest struct {
	Token string `json:"token" binding:"required,min=32"`
}

func (h *Handler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	access := &sharingsvc.Access{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if userID, ok := middleware.UserID(c); ok {
		access.AccessedBy = &userID
	}

	redemption, err := h.service.Redeem(c.Request.Context(), req.Token, access)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"grant": gin.H{
			"id":         redemption.Grant.ID,
			"mode":       redemption.Grant.Mode,
			"expires_at": redemption.Grant.ExpiresAt,
		},
		"hospital": redemption.Tenant.Name,
		"record":   redemption.Record,
	}))
}

func (h *Handler) Get(c *gin.Context) {
	h.withGrant(c, func(tc *tenant.Context, id uuid.UUID) (interface{}, error) {
		return h.service.Get(c.Request.Context(), &tc.Tenant, id)
	})
}

func (h *Handler) List(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var filter model.ShareFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	grants, err := h.service.List(c.Request.Context(), &tc.Tenant, &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(grants))
}

func (h *Handler) AccessLog(c *gin.Context) {
	h.withGrant(c, func(tc *tenant.Context, id uuid.UUID) (interface{}, error) {
		return h.service.AccessLog(c.Request.Context(), &tc.Tenant, id)
	})
}

func (h *Handler) Revoke(c *gin.Context) {
	h.withGrant(c, func(tc *tenant.Context, id uuid.UUID) (interface{}, error) {
		return h.service.Revoke(c.Request.Context(), &tc.Tenant, tc.UserID, id)
	})
}

func (h *Handler) withGrant(c *gin.Context, fn func(tc *tenant.Context, id uuid.UUID) (interface{}, error)) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	out, err := fn(tc, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(out))
}
