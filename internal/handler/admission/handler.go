package admission

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	admissionsvc "github.com/vs-ai-ds/hms-backend/internal/service/admission"
)

type Handler struct {
	service   *admissionsvc.Service
	evaluator *authz.Evaluator
	guard     *middleware.TenantContextMiddleware
}

func NewHandler(service *admissionsvc.Service, evaluator *authz.Evaluator, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, evaluator: evaluator, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admissions := r.Group("/admissions")
	{
		admissions.POST("", h.guard.Require(authz.PermIPDAdmit), h.Admit)
		admissions.GET("", h.guard.Require(authz.PermIPDView), h.List)
		admissions.GET("/:id", h.guard.Require(authz.PermIPDView), h.Get)
		admissions.GET("/:id/history", h.guard.Require(authz.PermIPDView), h.History)
		admissions.POST("/:id/discharge", h.guard.Require(authz.PermIPDDischarge), h.Discharge)
	}
}

func (h *Handler) Admit(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.CreateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	adm, err := h.service.Admit(c.Request.Context(), &tc.Tenant, tc.UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(adm))
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

	adm, err := h.service.Get(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if !handler.Permit(c, h.evaluator, tc, authz.PermIPDView, &authz.Attributes{
		PatientID:    &adm.PatientID,
		OwnerID:      &adm.DoctorID,
		DepartmentID: adm.DepartmentID,
	}) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(adm))
}

func (h *Handler) List(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var filter model.AdmissionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if tc.HasRole(model.RoleDoctor) && !tc.HasRole(model.RoleHospitalAdmin) {
		own := tc.UserID
		filter.DoctorID = &own
	}

	admissions, err := h.service.List(c.Request.Context(), &tc.Tenant, &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(admissions))
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

func (h *Handler) Discharge(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req model.DischargeAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	adm, err := h.service.Discharge(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(adm))
}
