package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

type prescriptionRepository struct {
	q repository.Querier
}

func NewPrescriptionRepository(q repository.Querier) repository.PrescriptionRepository {
	return &prescriptionRepository{q: q}
}

// Create inserts the prescription with its item lines. Callers run
// mutations inside a transaction, so the inserts land atomically.
func (r *prescriptionRepository) Create(ctx context.Context, prescription *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (
			id, patient_id, doctor_id, appointment_id, admission_id, status, version,
			notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	prescription.CreatedAt = time.Now().UTC()
	prescription.UpdatedAt = prescription.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		prescription.ID,
		prescription.PatientID,
		prescription.DoctorID,
		prescription.AppointmentID,
		prescription.AdmissionID,
		prescription.Status,
		prescription.Version,
		prescription.Notes,
		prescription.CreatedAt,
		prescription.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicatePrescription
		}
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return r.insertItems(ctx, prescription.ID, prescription.Items)
}

func (r *prescriptionRepository) insertItems(ctx context.Context, prescriptionID uuid.UUID, items []model.PrescriptionItem) error {
	query := `
		INSERT INTO prescription_items (
			id, prescription_id, stock_item_id, medication_name, dosage, frequency,
			duration_days, quantity, instructions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now().UTC()
	for i := range items {
		item := &items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.PrescriptionID = prescriptionID
		item.CreatedAt = now

		_, err := r.q.ExecContext(ctx, query,
			item.ID,
			item.PrescriptionID,
			item.StockItemID,
			item.MedicationName,
			item.Dosage,
			item.Frequency,
			item.DurationDays,
			item.Quantity,
			item.Instructions,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create prescription item: %w", err)
		}
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `SELECT * FROM prescriptions WHERE id = $1 AND deleted_at IS NULL`
	var prescription model.Prescription
	if err := r.q.GetContext(ctx, &prescription, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return &prescription, nil
}

func (r *prescriptionRepository) GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]model.PrescriptionItem, error) {
	query := `SELECT * FROM prescription_items WHERE prescription_id = $1 ORDER BY created_at, id`
	var items []model.PrescriptionItem
	if err := r.q.SelectContext(ctx, &items, query, prescriptionID); err != nil {
		return nil, fmt.Errorf("failed to get prescription items: %w", err)
	}
	return items, nil
}

// ReplaceItems swaps the full item set. Only valid while the
// prescription is still a draft, which the service enforces.
func (r *prescriptionRepository) ReplaceItems(ctx context.Context, prescriptionID uuid.UUID, items []model.PrescriptionItem) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM prescription_items WHERE prescription_id = $1`, prescriptionID); err != nil {
		return fmt.Errorf("failed to clear prescription items: %w", err)
	}
	return r.insertItems(ctx, prescriptionID, items)
}

func (r *prescriptionRepository) UpdateDraft(ctx context.Context, prescription *model.Prescription) error {
	query := `
		UPDATE prescriptions
		SET notes = $1, updated_at = $2
		WHERE id = $3 AND status = 'DRAFT' AND deleted_at IS NULL
	`
	prescription.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query, prescription.Notes, prescription.UpdatedAt, prescription.ID)
	if err != nil {
		return fmt.Errorf("failed to update prescription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrPrescriptionNotFound
	}
	return nil
}

func (r *prescriptionRepository) List(ctx context.Context, filter *model.PrescriptionFilter) ([]*model.Prescription, error) {
	query := `SELECT * FROM prescriptions WHERE deleted_at IS NULL`
	args := []interface{}{}
	argPos := 1

	if filter.PatientID != nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argPos)
		args = append(args, *filter.PatientID)
		argPos++
	}
	if filter.DoctorID != nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argPos)
		args = append(args, *filter.DoctorID)
		argPos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var prescriptions []*model.Prescription
	if err := r.q.SelectContext(ctx, &prescriptions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, nil
}

// HasDraftForAppointment backs the completion guard on appointments.
func (r *prescriptionRepository) HasDraftForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM prescriptions
			WHERE appointment_id = $1 AND status = 'DRAFT' AND deleted_at IS NULL
		)
	`
	var exists bool
	if err := r.q.GetContext(ctx, &exists, query, appointmentID); err != nil {
		return false, fmt.Errorf("failed to check draft prescriptions: %w", err)
	}
	return exists, nil
}

// HasOpenForAppointment reports whether any non-cancelled
// prescription already references the appointment. The partial unique
// index enforces the same rule against races.
func (r *prescriptionRepository) HasOpenForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM prescriptions
			WHERE appointment_id = $1 AND status != 'CANCELLED' AND deleted_at IS NULL
		)
	`
	var exists bool
	if err := r.q.GetContext(ctx, &exists, query, appointmentID); err != nil {
		return false, fmt.Errorf("failed to check open prescriptions: %w", err)
	}
	return exists, nil
}
