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

type tenantRepository struct {
	BaseRepository
}

func NewTenantRepository(base BaseRepository) repository.TenantRepository {
	return &tenantRepository{base}
}

func (r *tenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	query := `
		INSERT INTO public.tenants (
			id, name, slug, schema_name, status, contact_email, contact_phone,
			address, max_users, max_patients, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	tenant.CreatedAt = time.Now().UTC()
	tenant.UpdatedAt = tenant.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.SchemaName,
		tenant.Status,
		tenant.ContactEmail,
		tenant.ContactPhone,
		tenant.Address,
		tenant.MaxUsers,
		tenant.MaxPatients,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrSchemaNameTaken
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (r *tenantRepository) Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `SELECT * FROM public.tenants WHERE id = $1 AND deleted_at IS NULL`
	var tenant model.Tenant
	if err := r.GetDB().GetContext(ctx, &tenant, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

func (r *tenantRepository) GetBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	query := `SELECT * FROM public.tenants WHERE slug = $1 AND deleted_at IS NULL`
	var tenant model.Tenant
	if err := r.GetDB().GetContext(ctx, &tenant, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}
	return &tenant, nil
}

func (r *tenantRepository) Update(ctx context.Context, tenant *model.Tenant) error {
	query := `
		UPDATE public.tenants
		SET name = $1, contact_email = $2, contact_phone = $3, address = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL
	`
	tenant.UpdatedAt = time.Now().UTC()
	_, err := r.GetDB().ExecContext(ctx, query,
		tenant.Name,
		tenant.ContactEmail,
		tenant.ContactPhone,
		tenant.Address,
		tenant.UpdatedAt,
		tenant.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}

// UpdateStatus moves a tenant between lifecycle states with a
// compare-and-set on the current status. Returns false when the row
// was not in the expected state.
func (r *tenantRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.TenantStatus, at time.Time) (bool, error) {
	query := `
		UPDATE public.tenants
		SET status = $1,
			verified_at = CASE WHEN $1 = 'VERIFIED' THEN $2 ELSE verified_at END,
			activated_at = CASE WHEN $1 = 'ACTIVE' THEN $2 ELSE activated_at END,
			suspended_at = CASE WHEN $1 = 'SUSPENDED' THEN $2 ELSE suspended_at END,
			updated_at = $2
		WHERE id = $3 AND status = $4 AND deleted_at IS NULL
	`
	result, err := r.GetDB().ExecContext(ctx, query, to, at, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update tenant status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *tenantRepository) UpdateLimits(ctx context.Context, id uuid.UUID, maxUsers, maxPatients int) error {
	query := `
		UPDATE public.tenants
		SET max_users = $1, max_patients = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
	`
	result, err := r.GetDB().ExecContext(ctx, query, maxUsers, maxPatients, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant limits: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrTenantNotFound
	}
	return nil
}

func (r *tenantRepository) List(ctx context.Context, filter *model.TenantListFilter) ([]*model.Tenant, error) {
	query := `SELECT * FROM public.tenants WHERE deleted_at IS NULL`
	args := []interface{}{}
	argPos := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.SearchTerm != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR slug ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.SearchTerm+"%")
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var tenants []*model.Tenant
	if err := r.GetDB().SelectContext(ctx, &tenants, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}
