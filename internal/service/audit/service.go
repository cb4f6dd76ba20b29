package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

// Service writes the platform audit trail. The trail lives in the
// public schema so platform actions, tenant actions and cross-tenant
// share redemptions land in one place.
type Service struct {
	repo   repository.AuditRepository
	logger zerolog.Logger
}

func NewService(repo repository.AuditRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type LogOptions struct {
	Changes      interface{}
	Metadata     interface{}
	IPAddress    string
	UserAgent    string
	AccessReason string
}

// Log records one audit entry. Entries are best-effort: a failed
// write is logged and swallowed so it never fails the caller's unit
// of work. userID and tenantID are nil for platform-level actions.
func (s *Service) Log(ctx context.Context, userID, tenantID *uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	entry := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		TenantID:   tenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  time.Now().UTC(),
	}

	if opts != nil {
		if opts.Changes != nil {
			raw, err := json.Marshal(opts.Changes)
			if err != nil {
				s.logger.Error().Err(err).Str("action", action).Msg("failed to encode audit changes")
				return
			}
			entry.Changes = raw
		}
		if opts.Metadata != nil {
			raw, err := json.Marshal(opts.Metadata)
			if err != nil {
				s.logger.Error().Err(err).Str("action", action).Msg("failed to encode audit metadata")
				return
			}
			entry.Metadata = raw
		}
		entry.IPAddress = opts.IPAddress
		entry.UserAgent = opts.UserAgent
		entry.AccessReason = opts.AccessReason
	}

	// Fill request metadata from gin when the handler passed its
	// context straight through.
	if gc, ok := ctx.(*gin.Context); ok && entry.IPAddress == "" {
		entry.IPAddress = gc.ClientIP()
		entry.UserAgent = gc.GetHeader("User-Agent")
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error().
			Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Msg("failed to write audit entry")
	}
}

func (s *Service) List(ctx context.Context, filter *model.AuditLogFilter) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, filter)
}

// Cleanup deletes entries older than the retention cutoff. Called by
// the worker's prune job.
func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteBefore(ctx, before)
}
