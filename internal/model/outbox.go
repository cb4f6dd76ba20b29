package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Event types written by the services. The worker routes on these.
const (
	EventTenantRegistered       = "tenant.registered"
	EventTenantVerified         = "tenant.verified"
	EventTenantActivated        = "tenant.activated"
	EventTenantSuspended        = "tenant.suspended"
	EventTenantReactivated      = "tenant.reactivated"
	EventTenantDeactivated      = "tenant.deactivated"
	EventAppointmentCreated     = "appointment.created"
	EventAppointmentTransition  = "appointment.transition"
	EventPrescriptionCreated    = "prescription.created"
	EventPrescriptionTransition = "prescription.transition"
	EventAdmissionCreated       = "admission.created"
	EventAdmissionTransition    = "admission.transition"
	EventShareIssued            = "share.issued"
	EventShareRedeemed          = "share.redeemed"
	EventShareRevoked           = "share.revoked"
	EventStockBelowReorder      = "stock.below_reorder"
	EventUserCreated            = "user.created"
	EventNotificationRequested  = "notification.requested"
)

// OutboxEvent lives in the public schema. TenantID is nil for
// platform-level events.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	TenantID     *uuid.UUID      `db:"tenant_id" json:"tenant_id,omitempty"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}
