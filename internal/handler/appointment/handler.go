package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/handler"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	appointmentsvc "github.com/vs-ai-ds/hms-backend/internal/service/appointment"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

type Handler struct {
	service   *appointmentsvc.Service
	evaluator *authz.Evaluator
	guard     *middleware.TenantContextMiddleware
}

func NewHandler(service *appointmentsvc.Service, evaluator *authz.Evaluator, guard *middleware.TenantContextMiddleware) *Handler {
	return &Handler{service: service, evaluator: evaluator, guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.guard.Require(authz.PermAppointmentsCreate), h.Create)
		appointments.GET("", h.guard.Require(authz.PermAppointmentsView), h.List)
		appointments.GET("/:id", h.guard.Require(authz.PermAppointmentsView), h.Get)
		appointments.GET("/:id/history", h.guard.Require(authz.PermAppointmentsView), h.History)

		status := appointments.Group("", h.guard.Require(authz.PermAppointmentsUpdateStatus))
		{
			status.POST("/:id/check-in", h.CheckIn)
			status.POST("/:id/start-consultation", h.StartConsultation)
			status.POST("/:id/complete", h.Complete)
			status.POST("/:id/cancel", h.Cancel)
			status.POST("/:id/no-show", h.NoShow)
			status.POST("/:id/reschedule", h.Reschedule)
		}
	}
}

func (h *Handler) Create(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	a, err := h.service.Create(c.Request.Context(), &tc.Tenant, tc.UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(a))
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

	a, err := h.service.Get(c.Request.Context(), &tc.Tenant, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if !h.permitRecord(c, tc, a) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(a))
}

// List narrows a doctor's view to their own calendar before the query
// runs, instead of filtering rows after the fact.
func (h *Handler) List(c *gin.Context) {
	tc, ok := handler.RequireTenant(c)
	if !ok {
		return
	}

	var filter model.AppointmentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if tc.HasRole(model.RoleDoctor) && !tc.HasRole(model.RoleHospitalAdmin) {
		own := tc.UserID
		filter.DoctorID = &own
	}

	appointments, err := h.service.List(c.Request.Context(), &tc.Tenant, &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(appointments))
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

func (h *Handler) CheckIn(c *gin.Context) {
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Appointment, error) {
		return h.service.CheckIn(c.Request.Context(), &tc.Tenant, tc.UserID, id)
	})
}

func (h *Handler) StartConsultation(c *gin.Context) {
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Appointment, error) {
		return h.service.StartConsultation(c.Request.Context(), &tc.Tenant, tc.UserID, id)
	})
}

func (h *Handler) Complete(c *gin.Context) {
	var req model.CompleteAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Appointment, error) {
		return h.service.Complete(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	})
}

func (h *Handler) Cancel(c *gin.Context) {
	var req model.CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Appointment, error) {
		return h.service.Cancel(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	})
}

func (h *Handler) NoShow(c *gin.Context) {
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Appointment, error) {
		return h.service.NoShow(c.Request.Context(), &tc.Tenant, tc.UserID, id)
	})
}

func (h *Handler) Reschedule(c *gin.Context) {
	var req model.RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	h.transition(c, func(tc *tenant.Context, id uuid.UUID) (*model.Appointment, error) {
		return h.service.Reschedule(c.Request.Context(), &tc.Tenant, tc.UserID, id, &req)
	})
}

// transition loads the record first so ownership narrowing sees the
// assigned doctor, then applies the workflow action.
func (h *Handler) transition(c *gin.Context, fn func(tc *tenant.Context, id uuid.UUID) (*model.Appointment, error)) {
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

	a, err := fn(tc, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(a))
}

func (h *Handler) permitRecord(c *gin.Context, tc *tenant.Context, a *model.Appointment) bool {
	return handler.Permit(c, h.evaluator, tc, authz.PermAppointmentsView, &authz.Attributes{
		PatientID:    &a.PatientID,
		OwnerID:      &a.DoctorID,
		DepartmentID: a.DepartmentID,
	})
}
