package prescription

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	prescriptionsvc "github.com/vs-ai-ds/hms-backend/internal/service/prescription"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

type Handler struct {
	service   *prescriptionsvc.Service
	evaluator *authz.Evaluator
	guard     *middleware.TenantContextMiddleware
}

func NewHandler(service *prescriptionsvc.Service, evaluator *authz.Evaluator, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, evaluator: evaluator, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	prescriptions := r.Group("/prescriptions")
	{
		prescriptions.POST("", h.guard.Require(authz.PermPrescriptionsCreate), h.Create)
		prescriptions.GET("", h.guard.Require(authz.PermPrescriptionsView), h.List)
		prescriptions.GET("/:id", h.guard.Require(authz.PermPrescriptionsView), h.Get)
		prescriptions.GET("/:id/history", h.guard.Require(authz.PermPrescriptionsView), h.History)
		prescriptions.PUT("/:id", h.guard.Require(authz.PermPrescriptionsCreate), h.Update)
		prescriptions.POST("/:id/issue", h.guard.Require(authz.PermPrescriptionsIssue), h.Issue)
		prescriptions.POST("/:id/dispense", h.guard.Require(authz.PermPrescriptionsDispense), h.Dispense)
		prescriptions.POST("/:id/cancel", h.guard.Require(authz.PermPrescriptionsCancel), h.Cancel)
	}
}

func (h *Handler) Create(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	p, err := h.service.Create(c.Request.Context(), &tc.Tenant, tc.UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(p))
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

	p, err := h.service.Get(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if !h.permitRecord(c, tc, p) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) List(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var filter model.PrescriptionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if tc.HasRole(model.RoleDoctor) && !tc.HasRole(model.RoleHospitalAdmin) {
		own := tc.UserID
		filter.DoctorID = &own
	}

	prescriptions, err := h.service.List(c.Request.Context(), &tc.Tenant, &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prescriptions))
}

func (h *Handler) History(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	records, err := h.service.History(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

// Update edits a draft. Issued prescriptions are immutable; the
// service refuses anything past DRAFT.
func (h *Handler) Update(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	p, err := h.service.Update(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) Issue(c *gin.Context) {
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Prescription, error) {
		return h.service.Issue(c.Request.Context(), &tc.Tenant, tc.UserID, id)
	})
}

func (h *Handler) Dispense(c *gin.Context) {
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Prescription, error) {
		return h.service.Dispense(c.Request.Context(), &tc.Tenant, tc.UserID, id)
	})
}

func (h *Handler) Cancel(c *gin.Context) {
	var req model.CancelPrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Prescription, error) {
		return h.service.Cancel(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	})
}

func (h *Handler) transition(c *gin.Context, fn func(tc *tenant.Context, id uuid.UUID) (*model.Prescription, error)) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	current, err := h.service.Get(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if !h.permitRecord(c, tc, current) {
		return
	}

	p, err := fn(tc, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) permitRecord(c *gin.Context, tc *tenant.Context, p *model.Prescription) bool {
	return handler.Permit(c, h.evaluator, tc, authz.PermPrescriptionsView, &authz.Attributes{
		PatientID: &p.PatientID,
		OwnerID:   &p.DoctorID,
	})
}
