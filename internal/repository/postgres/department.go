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

type departmentRepository struct {
	q repository.Querier
}

func NewDepartmentRepository(q repository.Querier) repository.DepartmentRepository {
	return &departmentRepository{q: q}
}

func (r *departmentRepository) Create(ctx context.Context, department *model.Department) error {
	query := `
		INSERT INTO departments (id, name, code, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	department.CreatedAt = time.Now().UTC()
	department.UpdatedAt = department.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		department.ID,
		department.Name,
		department.Code,
		department.Description,
		department.IsActive,
		department.CreatedAt,
		department.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDepartmentCodeTaken
		}
		return fmt.Errorf("failed to create department: %w", err)
	}
	return nil
}

func (r *departmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	query := `SELECT * FROM departments WHERE id = $1 AND deleted_at IS NULL`
	var department model.Department
	if err := r.q.GetContext(ctx, &department, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &department, nil
}

func (r *departmentRepository) Update(ctx context.Context, department *model.Department) error {
	query := `
		UPDATE departments
		SET name = $1, description = $2, is_active = $3, updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`
	department.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		department.Name,
		department.Description,
		department.IsActive,
		department.UpdatedAt,
		department.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update department: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrDepartmentNotFound
	}
	return nil
}

func (r *departmentRepository) List(ctx context.Context) ([]*model.Department, error) {
	query := `SELECT * FROM departments WHERE deleted_at IS NULL ORDER BY name`
	var departments []*model.Department
	if err := r.q.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return departments, nil
}
