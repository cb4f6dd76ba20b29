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

type patientRepository struct {
	q repository.Querier
}

func NewPatientRepository(q repository.Querier) repository.PatientRepository {
	return &patientRepository{q: q}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, mrn, first_name, last_name, date_of_birth, gender, phone, email,
			address, blood_group, allergies, department_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	patient.CreatedAt = time.Now().UTC()
	patient.UpdatedAt = patient.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		patient.ID,
		patient.MRN,
		patient.FirstName,
		patient.LastName,
		patient.DateOfBirth,
		patient.Gender,
		patient.Phone,
		patient.Email,
		patient.Address,
		patient.BloodGroup,
		patient.Allergies,
		patient.DepartmentID,
		patient.Status,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrMRNTaken
		}
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE id = $1 AND deleted_at IS NULL`
	var patient model.Patient
	if err := r.q.GetContext(ctx, &patient, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByMRN(ctx context.Context, mrn string) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE mrn = $1 AND deleted_at IS NULL`
	var patient model.Patient
	if err := r.q.GetContext(ctx, &patient, query, mrn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to get patient by mrn: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET first_name = $1, last_name = $2, date_of_birth = $3, gender = $4,
			phone = $5, email = $6, address = $7, blood_group = $8, allergies = $9,
			department_id = $10, status = $11, updated_at = $12
		WHERE id = $13 AND deleted_at IS NULL
	`
	patient.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		patient.FirstName,
		patient.LastName,
		patient.DateOfBirth,
		patient.Gender,
		patient.Phone,
		patient.Email,
		patient.Address,
		patient.BloodGroup,
		patient.Allergies,
		patient.DepartmentID,
		patient.Status,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrPatientNotFound
	}
	return nil
}

func (r *patientRepository) List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error) {
	query := `SELECT * FROM patients WHERE deleted_at IS NULL`
	args := []interface{}{}
	argPos := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.DepartmentID != nil {
		query += fmt.Sprintf(" AND department_id = $%d", argPos)
		args = append(args, *filter.DepartmentID)
		argPos++
	}
	if filter.SearchTerm != "" {
		query += fmt.Sprintf(" AND (first_name ILIKE $%d OR last_name ILIKE $%d OR mrn ILIKE $%d)", argPos, argPos, argPos)
		args = append(args, "%"+filter.SearchTerm+"%")
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY last_name, first_name LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var patients []*model.Patient
	if err := r.q.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepository) CountActive(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM patients WHERE status = 'active' AND deleted_at IS NULL`
	var count int
	if err := r.q.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return count, nil
}

// Summary returns the reduced projection exposed to cross-tenant
// share redemptions.
func (r *patientRepository) Summary(ctx context.Context, id uuid.UUID) (*model.PatientSummary, error) {
	query := `
		SELECT id, mrn, first_name, last_name, date_of_birth, gender, blood_group, allergies
		FROM patients
		WHERE id = $1 AND deleted_at IS NULL
	`
	var summary model.PatientSummary
	if err := r.q.GetContext(ctx, &summary, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to get patient summary: %w", err)
	}
	return &summary, nil
}
