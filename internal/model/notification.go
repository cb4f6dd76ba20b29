package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending  NotificationStatus = "pending"
	NotificationStatusSent     NotificationStatus = "sent"
	NotificationStatusFailed   NotificationStatus = "failed"
	NotificationStatusRetrying NotificationStatus = "retrying"
)

// Notification channels.
const (
	NotificationChannelEmail    = "email"
	NotificationChannelSMS      = "sms"
	NotificationChannelWhatsApp = "whatsapp"
)

// Notification is a delivery record in the public schema. Dispatch is
// best effort and never blocks the operation that requested it.
type Notification struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	TenantID    *uuid.UUID         `db:"tenant_id" json:"tenant_id,omitempty"`
	UserID      *uuid.UUID         `db:"user_id" json:"user_id,omitempty"`
	Channel     string             `db:"channel" json:"channel"`
	Subject     string             `db:"subject" json:"subject"`
	Content     string             `db:"content" json:"content"`
	Recipient   string             `db:"recipient" json:"recipient"`
	Status      NotificationStatus `db:"status" json:"status"`
	RetryCount  int                `db:"retry_count" json:"retry_count"`
	LastError   string             `db:"last_error" json:"last_error,omitempty"`
	NextRetryAt *time.Time         `db:"next_retry_at" json:"next_retry_at,omitempty"`
	SentAt      *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// NotificationRequest is the outbox payload for notification.requested
// events consumed by the dispatch worker.
type NotificationRequest struct {
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Channel   string     `json:"channel"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	Content   string     `json:"content"`
}
