package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	admissionsvc "github.com/vs-ai-ds/hms-backend/internal/service/admission"
	prescriptionsvc "github.com/vs-ai-ds/hms-backend/internal/service/prescription"
	rbacsvc "github.com/vs-ai-ds/hms-backend/internal/service/rbac"
	tenantsvc "github.com/vs-ai-ds/hms-backend/internal/service/tenant"
	usersvc "github.com/vs-ai-ds/hms-backend/internal/service/user"
	"github.com/vs-ai-ds/hms-backend/internal/sharing"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
	apperrors "github.com/vs-ai-ds/hms-backend/pkg/errors"
)

// statusOf maps every domain sentinel onto its HTTP status. Anything
// not listed here falls through to the 500 path in RespondError.
var statusOf = []struct {
	err    error
	status int
}{
	{model.ErrPatientNotFound, http.StatusNotFound},
	{model.ErrAppointmentNotFound, http.StatusNotFound},
	{model.ErrAdmissionNotFound, http.StatusNotFound},
	{model.ErrPrescriptionNotFound, http.StatusNotFound},
	{model.ErrStockItemNotFound, http.StatusNotFound},
	{model.ErrDepartmentNotFound, http.StatusNotFound},
	{model.ErrRoleNotFound, http.StatusNotFound},
	{model.ErrUserNotFound, http.StatusNotFound},
	{model.ErrTenantNotFound, http.StatusNotFound},
	{model.ErrShareNotFound, http.StatusNotFound},

	{model.ErrShareExpired, http.StatusGone},
	{model.ErrShareRevoked, http.StatusGone},

	{model.ErrSlotTaken, http.StatusConflict},
	{model.ErrMRNTaken, http.StatusConflict},
	{model.ErrSKUTaken, http.StatusConflict},
	{model.ErrEmailTaken, http.StatusConflict},
	{model.ErrRoleNameTaken, http.StatusConflict},
	{model.ErrDepartmentCodeTaken, http.StatusConflict},
	{model.ErrSchemaNameTaken, http.StatusConflict},
	{model.ErrAlreadyAdmitted, http.StatusConflict},
	{model.ErrDuplicatePrescription, http.StatusConflict},
	{workflow.ErrTransitionConflict, http.StatusConflict},
	{tenantsvc.ErrSlugTaken, http.StatusConflict},
	{tenantsvc.ErrAdminEmailTaken, http.StatusConflict},
	{tenantsvc.ErrWrongStatus, http.StatusConflict},
	{rbacsvc.ErrRoleInUse, http.StatusConflict},
	{prescriptionsvc.ErrNotDraft, http.StatusConflict},

	{model.ErrPatientInactive, http.StatusUnprocessableEntity},
	{model.ErrPatientAdmitted, http.StatusUnprocessableEntity},
	{model.ErrNotADoctor, http.StatusUnprocessableEntity},
	{model.ErrInsufficientStock, http.StatusUnprocessableEntity},
	{model.ErrTenantLimitReached, http.StatusUnprocessableEntity},
	{admissionsvc.ErrAdmittedAtFuture, http.StatusUnprocessableEntity},
	{prescriptionsvc.ErrWrongPatient, http.StatusUnprocessableEntity},
	{prescriptionsvc.ErrAppointmentClosed, http.StatusUnprocessableEntity},
	{prescriptionsvc.ErrAdmissionNotActive, http.StatusUnprocessableEntity},
	{prescriptionsvc.ErrStockItemInactive, http.StatusUnprocessableEntity},
	{sharing.ErrTargetNotActive, http.StatusUnprocessableEntity},
	{usersvc.ErrNotTenantMember, http.StatusUnprocessableEntity},
	{rbacsvc.ErrForeignUser, http.StatusUnprocessableEntity},

	{prescriptionsvc.ErrBadLinkage, http.StatusBadRequest},
	{sharing.ErrSelfShare, http.StatusBadRequest},
	{usersvc.ErrSelfDeactivate, http.StatusBadRequest},
	{rbacsvc.ErrUnknownPermission, http.StatusBadRequest},

	{model.ErrInvalidCredentials, http.StatusUnauthorized},
	{model.ErrInvalidToken, http.StatusUnauthorized},
	{model.ErrAccountLocked, http.StatusLocked},

	{model.ErrTenantNotActive, http.StatusForbidden},
	{rbacsvc.ErrSystemRole, http.StatusForbidden},
}

// RespondError writes the response for a service error. Workflow
// guard violations carry their kind so clients can render them;
// unknown errors are deferred to the error middleware, which logs
// them and answers with an opaque 500.
func RespondError(c *gin.Context, err error) {
	for _, m := range statusOf {
		if errors.Is(err, m.err) {
			c.JSON(m.status, NewErrorResponse(m.err.Error()))
			return
		}
	}

	var gv *workflow.GuardViolation
	if errors.As(err, &gv) {
		c.JSON(http.StatusUnprocessableEntity, NewErrorResponseWithCode(gv.Kind, gv.Detail))
		return
	}
	var ite *workflow.InvalidTransitionError
	if errors.As(err, &ite) {
		c.JSON(http.StatusConflict, NewErrorResponseWithCode("invalid_transition", ite.Error()))
		return
	}
	var unavail *tenant.UnavailableError
	if errors.As(err, &unavail) {
		c.JSON(http.StatusForbidden, NewErrorResponseWithCode("tenant_unavailable", unavail.Error()))
		return
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		c.JSON(appErr.StatusCode(), NewErrorResponse(appErr.Message))
		return
	}

	_ = c.Error(err)
}

// ParseID reads a UUID path parameter, answering 400 when it does
// not parse.
func ParseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// RequireTenant returns the tenant context established by the
// middleware chain. Routes reach handlers only through that chain,
// so a miss is a wiring bug, not a client error.
func RequireTenant(c *gin.Context) (*tenant.Context, bool) {
	tc, ok := middleware.TenantContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("tenant context not established"))
	}
	return tc, ok
}

// Permit re-evaluates an action against the attributes of a loaded
// record. The route guard already checked the permission code; this
// narrows by ownership and department once the record is known.
func Permit(c *gin.Context, ev *authz.Evaluator, tc *tenant.Context, action string, attrs *authz.Attributes) bool {
	d := ev.Authorize(tc, action, attrs)
	if d.Allowed {
		return true
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code":     http.StatusForbidden,
		"reason":   string(d.Reason),
		"message":  d.Detail,
		"trace_id": c.GetString(middleware.ContextRequestID),
	})
	return false
}
