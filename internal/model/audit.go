package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog lives in the public schema so platform actions and
// cross-tenant share redemptions land in the same trail. TenantID is
// nil for platform-level entries.
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *uuid.UUID      `json:"user_id" db:"user_id"`
	TenantID     *uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	Action       string          `json:"action" db:"action"`
	EntityType   string          `json:"entity_type" db:"entity_type"`
	EntityID     uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes      json.RawMessage `json:"changes" db:"changes"`
	Metadata     json.RawMessage `json:"metadata" db:"metadata"`
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	AccessReason string          `json:"access_reason" db:"access_reason"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate     = "create"
	AuditActionRead       = "read"
	AuditActionUpdate     = "update"
	AuditActionDelete     = "delete"
	AuditActionLogin      = "login"
	AuditActionLogout     = "logout"
	AuditActionTransition = "transition"
	AuditActionShare      = "share"
	AuditActionRedeem     = "redeem"
	AuditActionRevoke     = "revoke"

	// Entity types
	AuditEntityTenant       = "tenant"
	AuditEntityUser         = "user"
	AuditEntityPatient      = "patient"
	AuditEntityAppointment  = "appointment"
	AuditEntityPrescription = "prescription"
	AuditEntityAdmission    = "admission"
	AuditEntityStockItem    = "stock_item"
	AuditEntityRole         = "role"
	AuditEntityShareGrant   = "share_grant"
)

type AuditLogFilter struct {
	UserID     *uuid.UUID `form:"user_id"`
	TenantID   *uuid.UUID `form:"tenant_id"`
	Action     string     `form:"action"`
	EntityType string     `form:"entity_type"`
	StartDate  time.Time  `form:"start_date"`
	EndDate    time.Time  `form:"end_date"`
	Pagination
}
