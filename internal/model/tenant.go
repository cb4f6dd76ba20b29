package model

import (
	"errors"
	"time"
)

type TenantStatus string

const (
	TenantStatusPending   TenantStatus = "PENDING"
	TenantStatusVerified  TenantStatus = "VERIFIED"
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusInactive  TenantStatus = "INACTIVE"
)

// Operational reports whether the tenant may serve clinical traffic.
func (s TenantStatus) Operational() bool {
	return s == TenantStatusActive
}

// Tenant is a hospital organization. The row lives in the shared
// public schema; clinical data lives in the tenant's own schema.
type Tenant struct {
	Base
	Name         string       `db:"name" json:"name"`
	Slug         string       `db:"slug" json:"slug"`
	SchemaName   string       `db:"schema_name" json:"schema_name"`
	Status       TenantStatus `db:"status" json:"status"`
	ContactEmail string       `db:"contact_email" json:"contact_email"`
	ContactPhone string       `db:"contact_phone" json:"contact_phone"`
	Address      string       `db:"address" json:"address"`
	MaxUsers     int          `db:"max_users" json:"max_users"`
	MaxPatients  int          `db:"max_patients" json:"max_patients"`
	VerifiedAt   *time.Time   `db:"verified_at" json:"verified_at,omitempty"`
	ActivatedAt  *time.Time   `db:"activated_at" json:"activated_at,omitempty"`
	SuspendedAt  *time.Time   `db:"suspended_at" json:"suspended_at,omitempty"`
}

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantNotActive    = errors.New("tenant is not active")
	ErrSchemaNameTaken    = errors.New("schema name already in use")
	ErrTenantLimitReached = errors.New("tenant resource limit reached")
)

type CreateTenantRequest struct {
	Name          string `json:"name" binding:"required,min=3,max=120"`
	ContactEmail  string `json:"contact_email" binding:"required,email"`
	ContactPhone  string `json:"contact_phone" binding:"omitempty,max=32"`
	Address       string `json:"address" binding:"omitempty,max=500"`
	AdminEmail    string `json:"admin_email" binding:"required,email"`
	AdminPassword string `json:"admin_password" binding:"required,min=8"`
	AdminName     string `json:"admin_name" binding:"required,min=2,max=120"`
}

type UpdateTenantRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=3,max=120"`
	ContactEmail *string `json:"contact_email" binding:"omitempty,email"`
	ContactPhone *string `json:"contact_phone" binding:"omitempty,max=32"`
	Address      *string `json:"address" binding:"omitempty,max=500"`
}

type UpdateTenantLimitsRequest struct {
	MaxUsers    *int `json:"max_users" binding:"omitempty,min=1"`
	MaxPatients *int `json:"max_patients" binding:"omitempty,min=1"`
}

type VerifyTenantRequest struct {
	Token string `json:"token" binding:"required"`
}

type SuspendTenantRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

type TenantListFilter struct {
	Status     string `form:"status"`
	SearchTerm string `form:"search"`
	Pagination
}
