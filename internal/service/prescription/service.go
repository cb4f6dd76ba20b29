package prescription

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

var (
	// ErrBadLinkage enforces the encounter rule: a prescription hangs
	// off an outpatient visit or an inpatient stay, exactly one.
	ErrBadLinkage = errors.New("prescription must reference exactly one of an appointment or an admission")

	// ErrWrongPatient rejects a linkage whose encounter belongs to a
	// different patient.
	ErrWrongPatient = errors.New("linked encounter belongs to a different patient")

	// ErrAppointmentClosed rejects prescribing against a terminal
	// appointment.
	ErrAppointmentClosed = errors.New("appointment is no longer open for prescribing")

	// ErrAdmissionNotActive rejects prescribing against a closed stay.
	ErrAdmissionNotActive = errors.New("admission is not active")

	// ErrNotDraft rejects edits once the prescription has been issued.
	ErrNotDraft = errors.New("only draft prescriptions can be edited")

	// ErrStockItemInactive rejects lines referencing retired items.
	ErrStockItemInactive = errors.New("stock item is no longer active")
)

// Service manages the prescription lifecycle. Drafts are editable;
// issue, dispense and cancel are workflow transitions, with the stock
// deduction guard riding the dispense edge.
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

// Create opens a draft against one encounter. An appointment takes at
// most one live prescription; the partial unique index arbitrates
// whatever races past the existence check.
func (s *Service) Create(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	if (req.AppointmentID == nil) == (req.AdmissionID == nil) {
		return nil, ErrBadLinkage
	}

	doctorID := actorID
	if req.DoctorID != nil {
		doctorID = *req.DoctorID
	}
	doctor, err := s.userRepo.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.TenantID == nil || *doctor.TenantID != h.ID {
		return nil, model.ErrUserNotFound
	}

	p := &model.Prescription{
		Base:          model.Base{ID: uuid.New()},
		PatientID:     req.PatientID,
		DoctorID:      doctorID,
		AppointmentID: req.AppointmentID,
		AdmissionID:   req.AdmissionID,
		Status:        model.PrescriptionStatusDraft,
		Version:       1,
		Notes:         strings.TrimSpace(req.Notes),
		Items:         buildItems(req.Items),
	}

	err = s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		patient, err := st.Patients.Get(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if patient.Status != string(model.PatientStatusActive) {
			return model.ErrPatientInactive
		}

		roles, err := st.RBAC.ListUserRoles(ctx, doctorID)
		if err != nil {
			return err
		}
		if !holdsRole(roles, model.RoleDoctor) {
			return model.ErrNotADoctor
		}

		if req.AppointmentID != nil {
			if err := s.checkAppointmentLink(ctx, st, req.PatientID, *req.AppointmentID); err != nil {
				return err
			}
		}
		if req.AdmissionID != nil {
			if err := s.checkAdmissionLink(ctx, st, req.PatientID, *req.AdmissionID); err != nil {
				return err
			}
		}

		if err := validateStockRefs(ctx, st, p.Items); err != nil {
			return err
		}

		if err := st.Prescriptions.Create(ctx, p); err != nil {
			return err
		}
		return s.emitCreated(ctx, tx, h.ID, p)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, model.AuditEntityPrescription, p.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"patient_id": p.PatientID,
			"doctor_id":  p.DoctorID,
			"items":      len(p.Items),
		},
	})
	return p, nil
}

func (s *Service) checkAppointmentLink(ctx context.Context, st *repository.TenantStores, patientID, appointmentID uuid.UUID) error {
	admitted, err := st.Admissions.HasActiveForPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if admitted {
		return model.ErrPatientAdmitted
	}

	a, err := st.Appointments.Get(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.PatientID != patientID {
		return ErrWrongPatient
	}
	if model.AppointmentStatus(a.Status).Terminal() {
		return ErrAppointmentClosed
	}

	open, err := st.Prescriptions.HasOpenForAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if open {
		return model.ErrDuplicatePrescription
	}
	return nil
}

func (s *Service) checkAdmissionLink(ctx context.Context, st *repository.TenantStores, patientID, admissionID uuid.UUID) error {
	adm, err := st.Admissions.Get(ctx, admissionID)
	if err != nil {
		return err
	}
	if adm.PatientID != patientID {
		return ErrWrongPatient
	}
	if adm.Status != model.AdmissionStatusActive {
		return ErrAdmissionNotActive
	}
	return nil
}

// Update edits a draft in place. Items, when present, replace the
// whole set.
func (s *Service) Update(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.UpdatePrescriptionRequest) (*model.Prescription, error) {
	var p *model.Prescription
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		var err error
		p, err = st.Prescriptions.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != model.PrescriptionStatusDraft {
			return ErrNotDraft
		}

		if req.Notes != nil {
			p.Notes = strings.TrimSpace(*req.Notes)
		}
		if err := st.Prescriptions.UpdateDraft(ctx, p); err != nil {
			return err
		}

		if len(req.Items) > 0 {
			items := buildItems(req.Items)
			if err := validateStockRefs(ctx, st, items); err != nil {
				return err
			}
			if err := st.Prescriptions.ReplaceItems(ctx, p.ID, items); err != nil {
				return err
			}
		}

		p.Items, err = st.Prescriptions.GetItems(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityPrescription, id, nil)
	return p, nil
}

// Issue locks the draft and timestamps it. From here the content is
// immutable; only dispense or cancel remain.
func (s *Service) Issue(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID) (*model.Prescription, error) {
	return s.transition(ctx, h, actorID, id, workflow.StatusIssued, func(p *model.Prescription, now time.Time) (map[string]interface{}, map[string]interface{}) {
		return map[string]interface{}{"issued_at": now}, nil
	})
}

// Dispense hands the medication over. The guard on the edge deducts
// every stock-linked line or fails the whole transition; afterwards
// any line that fell to its reorder level raises a restock event in
// the same transaction.
func (s *Service) Dispense(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID) (*model.Prescription, error) {
	var out *model.Prescription
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		p, err := st.Prescriptions.Get(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		req := &workflow.Request{
			Kind:     workflow.KindPrescription,
			EntityID: p.ID,
			From:     workflow.Status(p.Status),
			To:       workflow.StatusDispensed,
			Version:  p.Version,
			ActorID:  actorID,
			Now:      now,
			Fields: map[string]interface{}{
				"dispensed_at": now,
				"dispensed_by": actorID,
			},
		}
		if _, err := s.engine.Transition(ctx, tx, h.ID, req); err != nil {
			return err
		}

		if err := s.emitLowStock(ctx, tx, h.ID, st, p.ID); err != nil {
			return err
		}

		out, err = st.Prescriptions.Get(ctx, p.ID)
		if err != nil {
			return err
		}
		out.Items, err = st.Prescriptions.GetItems(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionTransition, model.AuditEntityPrescription, id, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"from": string(model.PrescriptionStatusIssued),
			"to":   string(model.PrescriptionStatusDispensed),
		},
	})
	return out, nil
}

// Cancel voids a draft or issued prescription. The reason goes on the
// record and into the transition history.
func (s *Service) Cancel(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.CancelPrescriptionRequest) (*model.Prescription, error) {
	reason := strings.TrimSpace(req.Reason)
	return s.transition(ctx, h, actorID, id, workflow.StatusRxCancelled, func(p *model.Prescription, now time.Time) (map[string]interface{}, map[string]interface{}) {
		fields := map[string]interface{}{
			"cancelled_at": now,
			"notes":        appendNote(p.Notes, "cancelled: "+reason),
		}
		return fields, map[string]interface{}{"reason": reason}
	})
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.Prescription, error) {
	var p *model.Prescription
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)
		var err error
		p, err = st.Prescriptions.Get(ctx, id)
		if err != nil {
			return err
		}
		p.Items, err = st.Prescriptions.GetItems(ctx, id)
		return err
	})
	return p, err
}

func (s *Service) List(ctx context.Context, h *tenant.Handle, filter *model.PrescriptionFilter) ([]*model.Prescription, error) {
	var prescriptions []*model.Prescription
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		prescriptions, err = s.stores(conn).Prescriptions.List(ctx, filter)
		return err
	})
	return prescriptions, err
}

func (s *Service) History(ctx context.Context, h *tenant.Handle, id uuid.UUID) ([]*model.WorkflowTransition, error) {
	var records []*model.WorkflowTransition
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)
		if _, err := st.Prescriptions.Get(ctx, id); err != nil {
			return err
		}
		var err error
		records, err = st.Workflow.ListHistory(ctx, string(workflow.KindPrescription), id)
		return err
	})
	return records, err
}

func (s *Service) transition(
	ctx context.Context,
	h *tenant.Handle,
	actorID, id uuid.UUID,
	to workflow.Status,
	build func(p *model.Prescription, now time.Time) (fields, meta map[string]interface{}),
) (*model.Prescription, error) {
	var out *model.Prescription
	var from workflow.Status
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		p, err := st.Prescriptions.Get(ctx, id)
		if err != nil {
			return err
		}
		from = workflow.Status(p.Status)
		now := time.Now().UTC()
		fields, meta := build(p, now)

		req := &workflow.Request{
			Kind:     workflow.KindPrescription,
			EntityID: p.ID,
			From:     from,
			To:       to,
			Version:  p.Version,
			ActorID:  actorID,
			Now:      now,
			Fields:   fields,
			Meta:     meta,
		}
		if _, err := s.engine.Transition(ctx, tx, h.ID, req); err != nil {
			return err
		}

		out, err = st.Prescriptions.Get(ctx, p.ID)
		if err != nil {
			return err
		}
		out.Items, err = st.Prescriptions.GetItems(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionTransition, model.AuditEntityPrescription, id, &audit.LogOptions{
		Metadata: map[string]interface{}{"from": string(from), "to": string(to)},
	})
	return out, nil
}

// emitLowStock raises one restock event per stock-linked line sitting
// at or under its reorder level after the deduction.
func (s *Service) emitLowStock(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, st *repository.TenantStores, prescriptionID uuid.UUID) error {
	items, err := st.Prescriptions.GetItems(ctx, prescriptionID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.StockItemID == nil {
			continue
		}
		si, err := st.Stock.Get(ctx, *item.StockItemID)
		if err != nil {
			return err
		}
		if !si.BelowReorder() {
			continue
		}
		payload, err := json.Marshal(map[string]interface{}{
			"stock_item_id": si.ID,
			"name":          si.Name,
			"sku":           si.SKU,
			"current_stock": si.CurrentStock,
			"reorder_level": si.ReorderLevel,
		})
		if err != nil {
			return fmt.Errorf("failed to encode restock event: %w", err)
		}
		tid := tenantID
		if err := s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
			TenantID:  &tid,
			EventType: model.EventStockBelowReorder,
			Payload:   payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) emitCreated(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, p *model.Prescription) error {
	payload, err := json.Marshal(map[string]interface{}{
		"prescription_id": p.ID,
		"patient_id":      p.PatientID,
		"doctor_id":       p.DoctorID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode prescription event: %w", err)
	}
	tid := tenantID
	return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
		TenantID:  &tid,
		EventType: model.EventPrescriptionCreated,
		Payload:   payload,
	})
}

func buildItems(reqs []model.PrescriptionItemRequest) []model.PrescriptionItem {
	items := make([]model.PrescriptionItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, model.PrescriptionItem{
			ID:             uuid.New(),
			StockItemID:    r.StockItemID,
			MedicationName: strings.TrimSpace(r.MedicationName),
			Dosage:         strings.TrimSpace(r.Dosage),
			Frequency:      strings.TrimSpace(r.Frequency),
			DurationDays:   r.DurationDays,
			Quantity:       r.Quantity,
			Instructions:   strings.TrimSpace(r.Instructions),
		})
	}
	return items
}

// validateStockRefs resolves every stock-linked line before the draft
// is accepted, so a dangling reference fails at authoring time rather
// than at the pharmacy counter.
func validateStockRefs(ctx context.Context, st *repository.TenantStores, items []model.PrescriptionItem) error {
	for _, item := range items {
		if item.StockItemID == nil {
			continue
		}
		si, err := st.Stock.Get(ctx, *item.StockItemID)
		if err != nil {
			return err
		}
		if !si.IsActive {
			return ErrStockItemInactive
		}
	}
	return nil
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
