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

type admissionRepository struct {
	q repository.Querier
}

func NewAdmissionRepository(q repository.Querier) repository.AdmissionRepository {
	return &admissionRepository{q: q}
}

func (r *admissionRepository) Create(ctx context.Context, admission *model.Admission) error {
	query := `
		INSERT INTO admissions (
			id, patient_id, doctor_id, department_id, ward_name, bed_number, diagnosis,
			status, version, admitted_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	admission.CreatedAt = time.Now().UTC()
	admission.UpdatedAt = admission.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		admission.ID,
		admission.PatientID,
		admission.DoctorID,
		admission.DepartmentID,
		admission.WardName,
		admission.BedNumber,
		admission.Diagnosis,
		admission.Status,
		admission.Version,
		admission.AdmittedAt,
		admission.CreatedBy,
		admission.CreatedAt,
		admission.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrAlreadyAdmitted
		}
		return fmt.Errorf("failed to create admission: %w", err)
	}
	return nil
}

func (r *admissionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	query := `SELECT * FROM admissions WHERE id = $1 AND deleted_at IS NULL`
	var admission model.Admission
	if err := r.q.GetContext(ctx, &admission, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAdmissionNotFound
		}
		return nil, fmt.Errorf("failed to get admission: %w", err)
	}
	return &admission, nil
}

func (r *admissionRepository) List(ctx context.Context, filter *model.AdmissionFilter) ([]*model.Admission, error) {
	query := `SELECT * FROM admissions WHERE deleted_at IS NULL`
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
	query += fmt.Sprintf(" ORDER BY admitted_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var admissions []*model.Admission
	if err := r.q.SelectContext(ctx, &admissions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list admissions: %w", err)
	}
	return admissions, nil
}

func (r *admissionRepository) HasActiveForPatient(ctx context.Context, patientID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM admissions
			WHERE patient_id = $1 AND status = 'ACTIVE' AND deleted_at IS NULL
		)
	`
	var active bool
	if err := r.q.GetContext(ctx, &active, query, patientID); err != nil {
		return false, fmt.Errorf("failed to check active admission: %w", err)
	}
	return active, nil
}
