package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

type permissionRepository struct {
	BaseRepository
}

func NewPermissionRepository(base BaseRepository) repository.PermissionRepository {
	return &permissionRepository{base}
}

// UpsertMany syncs the permission catalogue at startup. Codes are
// stable identifiers, descriptions may change between releases.
func (r *permissionRepository) UpsertMany(ctx context.Context, permissions []*model.Permission) error {
	query := `
		INSERT INTO public.permissions (id, code, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, p := range permissions {
			if _, err := tx.ExecContext(ctx, query, p.ID, p.Code, p.Description, now); err != nil {
				return fmt.Errorf("failed to upsert permission %s: %w", p.Code, err)
			}
		}
		return nil
	})
}

func (r *permissionRepository) List(ctx context.Context) ([]*model.Permission, error) {
	query := `
		SELECT id, code, description, created_at, updated_at
		FROM public.permissions
		ORDER BY code`
	var permissions []*model.Permission
	if err := r.GetDB().SelectContext(ctx, &permissions, query); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return permissions, nil
}

func (r *permissionRepository) GetByCodes(ctx context.Context, codes []string) ([]*model.Permission, error) {
	query := `
		SELECT id, code, description, created_at, updated_at
		FROM public.permissions
		WHERE code = ANY($1)
		ORDER BY code`
	var permissions []*model.Permission
	if err := r.GetDB().SelectContext(ctx, &permissions, query, pq.Array(codes)); err != nil {
		return nil, fmt.Errorf("failed to get permissions by code: %w", err)
	}
	return permissions, nil
}
