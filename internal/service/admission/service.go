package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

// opdCloseHorizon is how far back an open outpatient appointment is
// still considered part of the same visit. Anything older is left to
// the no-show sweeper.
const opdCloseHorizon = 2 * time.Hour

// ErrAdmittedAtFuture rejects back-dated entry going the wrong way:
// a stay cannot begin after now.
var ErrAdmittedAtFuture = errors.New("admission time cannot be in the future")

// Service manages inpatient stays. Admitting closes the patient's
// open outpatient appointments in the same transaction; discharging
// is a guarded workflow transition.
type Service struct {
	scope    *tenant.Scope
	stores   repository.StoreFactory
	userRepo repository.UserRepository
	engine   *workflow.Engine
	outbox   repository.OutboxRepository
	auditor  *audit.Service
}

func NewService(
	scope *tenant.Scope,
	stores repository.StoreFactory,
	userRepo repository.UserRepository,
	engine *workflow.Engine,
	outbox repository.OutboxRepository,
	auditor *audit.Service,
) *Service {
	return &Service{
		scope:    scope,
		stores:   stores,
		userRepo: userRepo,
		engine:   engine,
		outbox:   outbox,
		auditor:  auditor,
	}
}

// Admit opens a stay. One active admission per patient; the partial
// unique index arbitrates whatever races past the existence check.
// Open outpatient appointments from the last two hours onward are
// completed or cancelled as part of the same unit of work.
func (s *Service) Admit(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreateAdmissionRequest) (*model.Admission, error) {
	now := time.Now().UTC()
	admittedAt := now
	if req.AdmittedAt != nil {
		admittedAt = req.AdmittedAt.UTC()
	}
	if admittedAt.After(now) {
		return nil, ErrAdmittedAtFuture
	}

	doctor, err := s.userRepo.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if doctor.TenantID == nil || *doctor.TenantID != h.ID {
		return nil, model.ErrUserNotFound
	}

	adm := &model.Admission{
		Base:         model.Base{ID: uuid.New()},
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		DepartmentID: req.DepartmentID,
		WardName:     strings.TrimSpace(req.WardName),
		BedNumber:    strings.TrimSpace(req.BedNumber),
		Diagnosis:    strings.TrimSpace(req.Diagnosis),
		Status:       model.AdmissionStatusActive,
		Version:      1,
		AdmittedAt:   admittedAt,
		CreatedBy:    actorID,
	}

	err = s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		p, err := st.Patients.Get(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if p.Status != string(model.PatientStatusActive) {
			return model.ErrPatientInactive
		}

		admitted, err := st.Admissions.HasActiveForPatient(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if admitted {
			return model.ErrAlreadyAdmitted
		}

		if req.DepartmentID != nil {
			if _, err := st.Departments.Get(ctx, *req.DepartmentID); err != nil {
				return err
			}
		}

		roles, err := st.RBAC.ListUserRoles(ctx, req.DoctorID)
		if err != nil {
			return err
		}
		if !holdsRole(roles, model.RoleDoctor) {
			return model.ErrNotADoctor
		}

		open, err := st.Appointments.ListOpenForPatient(ctx, req.PatientID)
		if err != nil {
			return err
		}
		for _, opd := range open {
			if opd.ScheduledAt.Before(now.Add(-opdCloseHorizon)) {
				continue
			}
			if err := s.closeAppointment(ctx, tx, h.ID, actorID, opd, adm.ID, now); err != nil {
				return err
			}
		}

		if err := st.Admissions.Create(ctx, adm); err != nil {
			return err
		}
		return s.emitCreated(ctx, tx, h.ID, adm)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, model.AuditEntityAdmission, adm.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"patient_id":  adm.PatientID,
			"doctor_id":   adm.DoctorID,
			"ward_name":   adm.WardName,
			"admitted_at": adm.AdmittedAt,
		},
	})
	return adm, nil
}

// closeAppointment resolves one open outpatient appointment displaced
// by the admission. Mid-consultation visits complete; everything
// earlier cancels with the admission reason.
func (s *Service) closeAppointment(ctx context.Context, tx *sqlx.Tx, tenantID, actorID uuid.UUID, a *model.Appointment, admissionID uuid.UUID, now time.Time) error {
	req := &workflow.Request{
		Kind:     workflow.KindAppointment,
		EntityID: a.ID,
		From:     workflow.Status(a.Status),
		Version:  a.Version,
		ActorID:  actorID,
		Now:      now,
		Meta:     map[string]interface{}{"admission_id": admissionID},
	}
	if a.Status == model.AppointmentStatusInConsultation {
		req.To = workflow.StatusCompleted
		req.Fields = map[string]interface{}{
			"completed_at": now,
			"notes":        appendNote(a.Notes, "converted to inpatient admission"),
		}
	} else {
		req.To = workflow.StatusCancelled
		req.Fields = map[string]interface{}{
			"cancelled_at":        now,
			"cancellation_reason": model.CancelReasonAdmittedToIPD,
		}
	}
	if _, err := s.engine.Transition(ctx, tx, tenantID, req); err != nil {
		return fmt.Errorf("failed to close appointment %s: %w", a.ID, err)
	}
	return nil
}

// Discharge ends the stay. Summary and timestamp rules are enforced
// by the guards on the discharge edge.
func (s *Service) Discharge(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.DischargeAdmissionRequest) (*model.Admission, error) {
	var out *model.Admission
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		adm, err := st.Admissions.Get(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		dischargedAt := now
		if req.DischargeDatetime != nil {
			dischargedAt = req.DischargeDatetime.UTC()
		}
		stayHours := math.Round(dischargedAt.Sub(adm.AdmittedAt).Hours()*10) / 10

		treq := &workflow.Request{
			Kind:     workflow.KindAdmission,
			EntityID: adm.ID,
			From:     workflow.Status(adm.Status),
			To:       workflow.StatusDischarged,
			Version:  adm.Version,
			ActorID:  actorID,
			Now:      now,
			Fields: map[string]interface{}{
				"discharged_at":     dischargedAt,
				"discharge_summary": strings.TrimSpace(req.DischargeSummary),
				"discharged_by":     actorID,
			},
			Meta: map[string]interface{}{"length_of_stay_hours": stayHours},
		}
		if _, err := s.engine.Transition(ctx, tx, h.ID, treq); err != nil {
			return err
		}

		out, err = st.Admissions.Get(ctx, adm.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionTransition, model.AuditEntityAdmission, id, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"from": string(model.AdmissionStatusActive),
			"to":   string(model.AdmissionStatusDischarged),
		},
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.Admission, error) {
	var adm *model.Admission
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		adm, err = s.stores(conn).Admissions.Get(ctx, id)
		return err
	})
	return adm, err
}

func (s *Service) List(ctx context.Context, h *tenant.Handle, filter *model.AdmissionFilter) ([]*model.Admission, error) {
	var admissions []*model.Admission
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		admissions, err = s.stores(conn).Admissions.List(ctx, filter)
		return err
	})
	return admissions, err
}

func (s *Service) History(ctx context.Context, h *tenant.Handle, id uuid.UUID) ([]*model.WorkflowTransition, error) {
	var records []*model.WorkflowTransition
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)
		if _, err := st.Admissions.Get(ctx, id); err != nil {
			return err
		}
		var err error
		records, err = st.Workflow.ListHistory(ctx, string(workflow.KindAdmission), id)
		return err
	})
	return records, err
}

func (s *Service) emitCreated(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, adm *model.Admission) error {
	payload, err := json.Marshal(map[string]interface{}{
		"admission_id": adm.ID,
		"patient_id":   adm.PatientID,
		"doctor_id":    adm.DoctorID,
		"ward_name":    adm.WardName,
		"admitted_at":  adm.AdmittedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode admission event: %w", err)
	}
	tid := tenantID
	return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
		TenantID:  &tid,
		EventType: model.EventAdmissionCreated,
		Payload:   payload,
	})
}

func holdsRole(roles []*model.Role, name string) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
