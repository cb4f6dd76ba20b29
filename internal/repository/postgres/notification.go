package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	query := `
		INSERT INTO public.notifications (
			id, tenant_id, user_id, channel, subject, content, recipient,
			status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	notification.CreatedAt = time.Now().UTC()
	notification.UpdatedAt = notification.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		notification.ID,
		notification.TenantID,
		notification.UserID,
		notification.Channel,
		notification.Subject,
		notification.Content,
		notification.Recipient,
		notification.Status,
		notification.RetryCount,
		notification.CreatedAt,
		notification.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Update(ctx context.Context, notification *model.Notification) error {
	query := `
		UPDATE public.notifications
		SET status = $1, retry_count = $2, last_error = $3, next_retry_at = $4,
			sent_at = $5, updated_at = $6
		WHERE id = $7
	`
	notification.UpdatedAt = time.Now().UTC()
	_, err := r.GetDB().ExecContext(ctx, query,
		notification.Status,
		notification.RetryCount,
		notification.LastError,
		notification.NextRetryAt,
		notification.SentAt,
		notification.UpdatedAt,
		notification.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}

// ListDue returns retrying notifications whose backoff has elapsed.
func (r *notificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	query := `
		SELECT * FROM public.notifications
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at
		LIMIT $3
	`
	var notifications []*model.Notification
	if err := r.GetDB().SelectContext(ctx, &notifications, query, model.NotificationStatusRetrying, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}
	return notifications, nil
}
