package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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


// Service manages the outpatient appointment lifecycle. Creation and
// the SCHEDULED-to-SCHEDULED reschedule are plain writes; every status
// change goes through the workflow engine inside a scoped transaction.
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

// Create books a slot. The exclusion checks run inside one transaction
// and the partial unique index on (doctor_id, scheduled_at) arbitrates
// whatever races past them.
func (s *Service) Create(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	at := req.ScheduledAt.UTC()
	now := time.Now().UTC()

	doctor, err := s.userRepo.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if doctor.TenantID == nil || *doctor.TenantID != h.ID {
		return nil, model.ErrUserNotFound
	}

	a := &model.Appointment{
		Base:         model.Base{ID: uuid.New()},
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		DepartmentID: req.DepartmentID,
		ScheduledAt:  at,
		Reason:       strings.TrimSpace(req.Reason),
		Notes:        strings.TrimSpace(req.Notes),
		Status:       model.AppointmentStatusScheduled,
		Version:      1,
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
			return model.ErrPatientAdmitted
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

		if err := validateSlot(ctx, st, req.DoctorID, req.PatientID, at, nil, now); err != nil {
			return err
		}

		if err := st.Appointments.Create(ctx, a); err != nil {
			if errors.Is(err, model.ErrSlotTaken) {
				return slotConflict("doctor already has an appointment at this time")
			}
			return err
		}
		return s.emitCreated(ctx, tx, h.ID, a)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, model.AuditEntityAppointment, a.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"patient_id":   a.PatientID,
			"doctor_id":    a.DoctorID,
			"scheduled_at": a.ScheduledAt,
		},
	})
	return a, nil
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.Appointment, error) {
	var a *model.Appointment
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		a, err = s.stores(conn).Appointments.Get(ctx, id)
		return err
	})
	return a, err
}

func (s *Service) List(ctx context.Context, h *tenant.Handle, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		appointments, err = s.stores(conn).Appointments.List(ctx, filter)
		return err
	})
	return appointments, err
}

// History returns the appointment's applied transitions, oldest first.
func (s *Service) History(ctx context.Context, h *tenant.Handle, id uuid.UUID) ([]*model.WorkflowTransition, error) {
	var records []*model.WorkflowTransition
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)
		if _, err := st.Appointments.Get(ctx, id); err != nil {
			return err
		}
		var err error
		records, err = st.Workflow.ListHistory(ctx, string(workflow.KindAppointment), id)
		return err
	})
	return records, err
}

// CheckIn marks arrival. The window guard holds it to the configured
// grace before the slot through the end of the appointment's UTC day.
func (s *Service) CheckIn(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, h, actorID, id, workflow.StatusCheckedIn, func(a *model.Appointment, now time.Time) (map[string]interface{}, map[string]interface{}) {
		return map[string]interface{}{"checked_in_at": now}, nil
	})
}

func (s *Service) StartConsultation(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, h, actorID, id, workflow.StatusInConsultation, func(a *model.Appointment, now time.Time) (map[string]interface{}, map[string]interface{}) {
		return map[string]interface{}{"consultation_started_at": now}, nil
	})
}

// Complete closes the visit. The guard refuses while a draft
// prescription still references the appointment.
func (s *Service) Complete(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.CompleteAppointmentRequest) (*model.Appointment, error) {
	return s.transition(ctx, h, actorID, id, workflow.StatusCompleted, func(a *model.Appointment, now time.Time) (map[string]interface{}, map[string]interface{}) {
		fields := map[string]interface{}{"completed_at": now}
		if req != nil && strings.TrimSpace(req.Notes) != "" {
			fields["notes"] = appendNote(a.Notes, req.Notes)
		}
		return fields, nil
	})
}

// Cancel frees the slot. The reason is part of the record, not a free
// text field.
func (s *Service) Cancel(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.CancelAppointmentRequest) (*model.Appointment, error) {
	if !model.ValidCancelReason(req.Reason) {
		return nil, fmt.Errorf("invalid cancellation reason %q", req.Reason)
	}
	return s.transition(ctx, h, actorID, id, workflow.StatusCancelled, func(a *model.Appointment, now time.Time) (map[string]interface{}, map[string]interface{}) {
		fields := map[string]interface{}{
			"cancelled_at":        now,
			"cancellation_reason": req.Reason,
		}
		if strings.TrimSpace(req.Notes) != "" {
			fields["notes"] = appendNote(a.Notes, req.Notes)
		}
		return fields, map[string]interface{}{"reason": req.Reason}
	})
}

// NoShow records a missed appointment. The guard refuses before the
// scheduled time has passed.
func (s *Service) NoShow(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, h, actorID, id, workflow.StatusNoShow, func(a *model.Appointment, now time.Time) (map[string]interface{}, map[string]interface{}) {
		return map[string]interface{}{"marked_no_show_at": now}, nil
	})
}

// Reschedule moves the appointment to a new slot. A SCHEDULED
// appointment keeps its status, so the move is a versioned field
// update; a CHECKED_IN one resets to SCHEDULED through the engine,
// clearing its check-in state.
func (s *Service) Reschedule(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	at := req.ScheduledAt.UTC()

	var out *model.Appointment
	var previous time.Time
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		a, err := st.Appointments.Get(ctx, id)
		if err != nil {
			return err
		}
		previous = a.ScheduledAt
		now := time.Now().UTC()

		switch a.Status {
		case model.AppointmentStatusScheduled:
			if err := validateSlot(ctx, st, a.DoctorID, a.PatientID, at, &a.ID, now); err != nil {
				return err
			}
			moved, err := st.Appointments.Reschedule(ctx, a.ID, at, a.Version)
			if err != nil {
				if errors.Is(err, model.ErrSlotTaken) {
					return slotConflict("doctor already has an appointment at this time")
				}
				return err
			}
			if !moved {
				return workflow.ErrTransitionConflict
			}

		case model.AppointmentStatusCheckedIn:
			treq := &workflow.Request{
				Kind:     workflow.KindAppointment,
				EntityID: a.ID,
				From:     workflow.StatusCheckedIn,
				To:       workflow.StatusScheduled,
				Version:  a.Version,
				ActorID:  actorID,
				Now:      now,
				Fields: map[string]interface{}{
					"scheduled_at":  at,
					"checked_in_at": nil,
				},
				Meta: map[string]interface{}{
					"previous_scheduled_at": previous,
					"reason":                strings.TrimSpace(req.Reason),
				},
			}
			if _, err := s.engine.Transition(ctx, tx, h.ID, treq); err != nil {
				return err
			}

		default:
			return &workflow.InvalidTransitionError{
				Kind: workflow.KindAppointment,
				From: workflow.Status(a.Status),
				To:   workflow.StatusScheduled,
			}
		}

		out, err = st.Appointments.Get(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityAppointment, id, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"previous_scheduled_at": previous,
			"scheduled_at":          at,
		},
	})
	return out, nil
}

// transition runs one engine edge from the appointment's current
// status inside a scoped transaction, then re-reads the row.
func (s *Service) transition(
	ctx context.Context,
	h *tenant.Handle,
	actorID, id uuid.UUID,
	to workflow.Status,
	build func(a *model.Appointment, now time.Time) (fields, meta map[string]interface{}),
) (*model.Appointment, error) {
	var out *model.Appointment
	var from workflow.Status
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		a, err := st.Appointments.Get(ctx, id)
		if err != nil {
			return err
		}
		from = workflow.Status(a.Status)
		now := time.Now().UTC()
		fields, meta := build(a, now)

		req := &workflow.Request{
			Kind:     workflow.KindAppointment,
			EntityID: a.ID,
			From:     from,
			To:       to,
			Version:  a.Version,
			ActorID:  actorID,
			Now:      now,
			Fields:   fields,
			Meta:     meta,
		}
		if _, err := s.engine.Transition(ctx, tx, h.ID, req); err != nil {
			return err
		}

		out, err = st.Appointments.Get(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionTransition, model.AuditEntityAppointment, id, &audit.LogOptions{
		Metadata: map[string]interface{}{"from": string(from), "to": string(to)},
	})
	return out, nil
}

// emitCreated queues the booking event in the same transaction as the
// insert, so a rolled back booking never notifies anyone.
func (s *Service) emitCreated(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, a *model.Appointment) error {
	payload, err := json.Marshal(map[string]interface{}{
		"appointment_id": a.ID,
		"patient_id":     a.PatientID,
		"doctor_id":      a.DoctorID,
		"scheduled_at":   a.ScheduledAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode booking event: %w", err)
	}
	tid := tenantID
	return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
		TenantID:  &tid,
		EventType: model.EventAppointmentCreated,
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
	note = strings.TrimSpace(note)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
