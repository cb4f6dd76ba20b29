package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

type tokenRepository struct {
	BaseRepository
}

func NewTokenRepository(base BaseRepository) repository.TokenRepository {
	return &tokenRepository{base}
}

func (r *tokenRepository) Create(ctx context.Context, token *model.VerificationToken) error {
	query := `
		INSERT INTO public.verification_tokens (
			id, token, purpose, user_id, tenant_id, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	token.CreatedAt = time.Now().UTC()
	_, err := r.GetDB().ExecContext(ctx, query,
		token.ID,
		token.Token,
		token.Purpose,
		token.UserID,
		token.TenantID,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}
	return nil
}

// Consume claims a token atomically. Expired, consumed or unknown
// tokens all come back as ErrInvalidToken so callers cannot probe
// which case they hit.
func (r *tokenRepository) Consume(ctx context.Context, token, purpose string, now time.Time) (*model.VerificationToken, error) {
	query := `
		UPDATE public.verification_tokens
		SET used_at = $3
		WHERE token = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > $3
		RETURNING id, token, purpose, user_id, tenant_id, expires_at, used_at, created_at
	`
	var vt model.VerificationToken
	if err := r.GetDB().GetContext(ctx, &vt, query, token, purpose, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	return &vt, nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM public.verification_tokens WHERE expires_at < $1`
	result, err := r.GetDB().ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
