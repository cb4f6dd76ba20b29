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

type shareRepository struct {
	BaseRepository
}

func NewShareRepository(base BaseRepository) repository.ShareRepository {
	return &shareRepository{base}
}

func (r *shareRepository) Create(ctx context.Context, grant *model.ShareGrant) error {
	query := `
		INSERT INTO public.share_grants (
			id, source_tenant_id, target_tenant_id, patient_id, token, mode, status,
			expires_at, created_by, purpose, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	grant.CreatedAt = time.Now().UTC()
	grant.UpdatedAt = grant.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		grant.ID,
		grant.SourceTenantID,
		grant.TargetTenantID,
		grant.PatientID,
		grant.Token,
		grant.Mode,
		grant.Status,
		grant.ExpiresAt,
		grant.CreatedBy,
		grant.Purpose,
		grant.CreatedAt,
		grant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create share grant: %w", err)
	}
	return nil
}

func (r *shareRepository) Get(ctx context.Context, id uuid.UUID) (*model.ShareGrant, error) {
	query := `SELECT * FROM public.share_grants WHERE id = $1 AND deleted_at IS NULL`
	var grant model.ShareGrant
	if err := r.GetDB().GetContext(ctx, &grant, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to get share grant: %w", err)
	}
	return &grant, nil
}

func (r *shareRepository) GetByToken(ctx context.Context, token string) (*model.ShareGrant, error) {
	query := `SELECT * FROM public.share_grants WHERE token = $1 AND deleted_at IS NULL`
	var grant model.ShareGrant
	if err := r.GetDB().GetContext(ctx, &grant, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to get share grant by token: %w", err)
	}
	return &grant, nil
}

func (r *shareRepository) ListBySource(ctx context.Context, sourceTenantID uuid.UUID, filter *model.ShareFilter) ([]*model.ShareGrant, error) {
	query := `SELECT * FROM public.share_grants WHERE source_tenant_id = $1 AND deleted_at IS NULL`
	args := []interface{}{sourceTenantID}
	argPos := 2

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
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var grants []*model.ShareGrant
	if err := r.GetDB().SelectContext(ctx, &grants, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list share grants: %w", err)
	}
	return grants, nil
}

// Revoke flips an ACTIVE grant to REVOKED. Returns false when the
// grant was already terminal.
func (r *shareRepository) Revoke(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE public.share_grants
		SET status = 'REVOKED', revoked_at = $1, revoked_by = $2, updated_at = $1
		WHERE id = $3 AND status = 'ACTIVE'
	`
	result, err := r.GetDB().ExecContext(ctx, query, at, revokedBy, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke share grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// MarkExpired lazily flips a grant whose expiry passed. Racing with a
// revoke is fine, the loser is a no-op.
func (r *shareRepository) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE public.share_grants
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`
	result, err := r.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark share grant expired: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ExpireStale is the sweeper's bulk form of MarkExpired.
func (r *shareRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE public.share_grants
		SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'ACTIVE' AND expires_at <= $1
	`
	result, err := r.GetDB().ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale share grants: %w", err)
	}
	return result.RowsAffected()
}

func (r *shareRepository) LogAccess(ctx context.Context, entry *model.ShareAccessLog) error {
	query := `
		INSERT INTO public.share_access_logs (
			id, grant_id, accessed_by, ip_address, user_agent, outcome, accessed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.AccessedAt.IsZero() {
		entry.AccessedAt = time.Now().UTC()
	}
	_, err := r.GetDB().ExecContext(ctx, query,
		entry.ID,
		entry.GrantID,
		entry.AccessedBy,
		entry.IPAddress,
		entry.UserAgent,
		entry.Outcome,
		entry.AccessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log share access: %w", err)
	}
	return nil
}

func (r *shareRepository) ListAccess(ctx context.Context, grantID uuid.UUID) ([]*model.ShareAccessLog, error) {
	query := `
		SELECT * FROM public.share_access_logs
		WHERE grant_id = $1
		ORDER BY accessed_at DESC
	`
	var entries []*model.ShareAccessLog
	if err := r.GetDB().SelectContext(ctx, &entries, query, grantID); err != nil {
		return nil, fmt.Errorf("failed to list share access log: %w", err)
	}
	return entries, nil
}
