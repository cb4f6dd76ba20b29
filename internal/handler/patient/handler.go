package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	patientsvc "github.com/vs-ai-ds/hms-backend/internal/service/patient"
)

type Handler struct {
	service   *patientsvc.Service
	evaluator *authz.Evaluator
	guard     *middleware.TenantContextMiddleware
}

func NewHandler(service *patientsvc.Service, evaluator *authz.Evaluator, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, evaluator: evaluator, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.guard.Require(authz.PermPatientsCreate), h.Create)
		patients.GET("", h.guard.Require(authz.PermPatientsView), h.List)
		patients.GET("/mrn/:mrn", h.guard.Require(authz.PermPatientsView), h.GetByMRN)
		patients.GET("/:id", h.guard.Require(authz.PermPatientsView), h.Get)
		patients.PUT("/:id", h.guard.Require(authz.PermPatientsUpdate), h.Update)
		patients.GET("/:id/summary", h.guard.Require(authz.PermPatientsView), h.Summary)
	}
}

func (h *Handler) Create(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.CreatePatientRequest
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
	if !handler.Permit(c, h.evaluator, tc, authz.PermPatientsView, &authz.Attributes{
		PatientID:    &p.ID,
		DepartmentID: p.DepartmentID,
	}) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) GetByMRN(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	p, err := h.service.GetByMRN(c.Request.Context(), &tc.Tenant, c.Param("mrn"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if !handler.Permit(c, h.evaluator, tc, authz.PermPatientsView, &authz.Attributes{
		PatientID:    &p.ID,
		DepartmentID: p.DepartmentID,
	}) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
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

	var req model.UpdatePatientRequest
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

func (h *Handler) List(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var filter model.PatientFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	patients, err := h.service.List(c.Request.Context(), &tc.Tenant, &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patients))
}

// Summary returns the condensed record used by dashboards and by the
// sharing preview.
func (h *Handler) Summary(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(summary))
}
