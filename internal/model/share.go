package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type ShareStatus string

const (
	ShareStatusActive  ShareStatus = "ACTIVE"
	ShareStatusExpired ShareStatus = "EXPIRED"
	ShareStatusRevoked ShareStatus = "REVOKED"
)

type ShareMode string

const (
	ShareModeReadOnly  ShareMode = "READ_ONLY"
	ShareModeReadWrite ShareMode = "READ_WRITE"
)

var (
	ErrShareNotFound = errors.New("share grant not found")
	ErrShareExpired  = errors.New("share grant has expired")
	ErrShareRevoked  = errors.New("share grant has been revoked")
)

// ShareGrant authorizes time-boxed access to one patient's record
// across tenant boundaries. The row lives in the public schema since
// it bridges two tenants.
type ShareGrant struct {
	Base
	SourceTenantID uuid.UUID   `db:"source_tenant_id" json:"source_tenant_id"`
	TargetTenantID *uuid.UUID  `db:"target_tenant_id" json:"target_tenant_id,omitempty"`
	PatientID      uuid.UUID   `db:"patient_id" json:"patient_id"`
	Token          string      `db:"token" json:"-"`
	Mode           ShareMode   `db:"mode" json:"mode"`
	Status         ShareStatus `db:"status" json:"status"`
	ExpiresAt      time.Time   `db:"expires_at" json:"expires_at"`
	RevokedAt      *time.Time  `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy      *uuid.UUID  `db:"revoked_by" json:"revoked_by,omitempty"`
	CreatedBy      uuid.UUID   `db:"created_by" json:"created_by"`
	Purpose        string      `db:"purpose" json:"purpose,omitempty"`
}

// ExpiredAt reports whether the grant is past its expiry at t.
func (g *ShareGrant) ExpiredAt(t time.Time) bool {
	return !t.Before(g.ExpiresAt)
}

// ShareAccessLog records one redemption of a share grant.
type ShareAccessLog struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	GrantID    uuid.UUID  `db:"grant_id" json:"grant_id"`
	AccessedBy *uuid.UUID `db:"accessed_by" json:"accessed_by,omitempty"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	UserAgent  string     `db:"user_agent" json:"user_agent"`
	Outcome    string     `db:"outcome" json:"outcome"`
	AccessedAt time.Time  `db:"accessed_at" json:"accessed_at"`
}

// Access log outcomes.
const (
	ShareAccessGranted = "granted"
	ShareAccessExpired = "expired"
	ShareAccessRevoked = "revoked"
	ShareAccessDenied  = "denied"
)

type CreateShareRequest struct {
	PatientID      uuid.UUID  `json:"patient_id" binding:"required"`
	TargetTenantID *uuid.UUID `json:"target_tenant_id"`
	Mode           ShareMode  `json:"mode" binding:"required,oneof=READ_ONLY READ_WRITE"`
	TTLMinutes     int        `json:"ttl_minutes" binding:"omitempty,min=5,max=43200"`
	Purpose        string     `json:"purpose" binding:"omitempty,max=500"`
}

// ShareGrantResponse is returned once at issue time. The token is not
// recoverable afterwards.
type ShareGrantResponse struct {
	ShareGrant
	Token string `json:"token"`
}

type ShareFilter struct {
	PatientID *uuid.UUID `form:"patient_id"`
	Status    string     `form:"status"`
	Pagination
}

// SharedRecord is the bundle a redeemed grant exposes: the patient
// summary plus their clinical history from the source tenant.
type SharedRecord struct {
	Patient       *PatientSummary `json:"patient"`
	Appointments  []*Appointment  `json:"appointments"`
	Prescriptions []*Prescription `json:"prescriptions"`
	Admissions    []*Admission    `json:"admissions"`
}
