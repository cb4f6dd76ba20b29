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

type appointmentRepository struct {
	q repository.Querier
}

func NewAppointmentRepository(q repository.Querier) repository.AppointmentRepository {
	return &appointmentRepository{q: q}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, department_id, scheduled_at, reason, notes,
			status, version, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	appointment.CreatedAt = time.Now().UTC()
	appointment.UpdatedAt = appointment.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.DepartmentID,
		appointment.ScheduledAt,
		appointment.Reason,
		appointment.Notes,
		appointment.Status,
		appointment.Version,
		appointment.CreatedBy,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrSlotTaken
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT * FROM appointments WHERE id = $1 AND deleted_at IS NULL`
	var appointment model.Appointment
	if err := r.q.GetContext(ctx, &appointment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	query := `SELECT * FROM appointments WHERE deleted_at IS NULL`
	args := []interface{}{}
	argPos := 1

	if filter.DoctorID != nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argPos)
		args = append(args, *filter.DoctorID)
		argPos++
	}
	if filter.PatientID != nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argPos)
		args = append(args, *filter.PatientID)
		argPos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if !filter.DateFrom.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at >= $%d", argPos)
		args = append(args, filter.DateFrom)
		argPos++
	}
	if !filter.DateTo.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at < $%d", argPos)
		args = append(args, filter.DateTo)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY scheduled_at LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var appointments []*model.Appointment
	if err := r.q.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// SlotTaken reports whether the doctor already has a live appointment
// at the exact slot. Terminal appointments free the slot.
func (r *appointmentRepository) SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND scheduled_at = $2
			AND status IN ('SCHEDULED', 'CHECKED_IN', 'IN_CONSULTATION')
			AND deleted_at IS NULL
			AND ($3::uuid IS NULL OR id != $3)
		)
	`
	var taken bool
	if err := r.q.GetContext(ctx, &taken, query, doctorID, at, excludeID); err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return taken, nil
}

func (r *appointmentRepository) PatientOverlap(ctx context.Context, patientID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND scheduled_at = $2
			AND status IN ('SCHEDULED', 'CHECKED_IN', 'IN_CONSULTATION')
			AND deleted_at IS NULL
			AND ($3::uuid IS NULL OR id != $3)
		)
	`
	var overlap bool
	if err := r.q.GetContext(ctx, &overlap, query, patientID, at, excludeID); err != nil {
		return false, fmt.Errorf("failed to check patient overlap: %w", err)
	}
	return overlap, nil
}

// Reschedule moves a SCHEDULED appointment to a new slot with the
// same optimistic version check transitions use. A false return means
// the row moved on under the caller.
func (r *appointmentRepository) Reschedule(ctx context.Context, id uuid.UUID, at time.Time, version int) (bool, error) {
	query := `
		UPDATE appointments
		SET scheduled_at = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED' AND version = $3 AND deleted_at IS NULL
	`
	result, err := r.q.ExecContext(ctx, query, id, at, version)
	if err != nil {
		if isUniqueViolation(err) {
			return false, model.ErrSlotTaken
		}
		return false, fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read reschedule result: %w", err)
	}
	return rows > 0, nil
}

// ListOpenForPatient returns non-terminal appointments, used when an
// admission closes out the patient's OPD pipeline.
func (r *appointmentRepository) ListOpenForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	query := `
		SELECT * FROM appointments
		WHERE patient_id = $1
		AND status IN ('SCHEDULED', 'CHECKED_IN', 'IN_CONSULTATION')
		AND deleted_at IS NULL
		ORDER BY scheduled_at
	`
	var appointments []*model.Appointment
	if err := r.q.SelectContext(ctx, &appointments, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list open appointments: %w", err)
	}
	return appointments, nil
}

// ListStaleScheduled feeds the no-show sweeper.
func (r *appointmentRepository) ListStaleScheduled(ctx context.Context, before time.Time, limit int) ([]*model.Appointment, error) {
	query := `
		SELECT * FROM appointments
		WHERE status = 'SCHEDULED'
		AND scheduled_at < $1
		AND deleted_at IS NULL
		ORDER BY scheduled_at
		LIMIT $2
	`
	var appointments []*model.Appointment
	if err := r.q.SelectContext(ctx, &appointments, query, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale appointments: %w", err)
	}
	return appointments, nil
}
