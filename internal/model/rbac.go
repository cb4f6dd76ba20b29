package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// System role names seeded into every tenant schema.
const (
	RoleSuperAdmin    = "SUPER_ADMIN"
	RoleHospitalAdmin = "HOSPITAL_ADMIN"
	RoleDoctor        = "DOCTOR"
	RoleNurse         = "NURSE"
	RolePharmacist    = "PHARMACIST"
	RoleReceptionist  = "RECEPTIONIST"
)

// Role lives in the tenant schema. SUPER_ADMIN is the one exception,
// seeded in public with a nil TenantID.
type Role struct {
	Base
	TenantID    *uuid.UUID `db:"tenant_id" json:"tenant_id,omitempty"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	IsSystem    bool       `db:"is_system" json:"is_system"`
}

// Permission is a catalogue entry, "resource:action" coded.
type Permission struct {
	Base
	Code        string `db:"code" json:"code"`
	Description string `db:"description" json:"description"`
}

var (
	ErrRoleNotFound  = errors.New("role not found")
	ErrRoleNameTaken = errors.New("role name already in use")
)

type RolePermission struct {
	RoleID       uuid.UUID `db:"role_id" json:"role_id"`
	PermissionID uuid.UUID `db:"permission_id" json:"permission_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type UserRole struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	RoleID    uuid.UUID `db:"role_id" json:"role_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoleWithPermissions is the role detail projection.
type RoleWithPermissions struct {
	Role
	Permissions []Permission `json:"permissions"`
}

type CreateRoleRequest struct {
	Name            string   `json:"name" binding:"required,min=2,max=64"`
	Description     string   `json:"description" binding:"omitempty,max=500"`
	PermissionCodes []string `json:"permission_codes" binding:"omitempty,dive,min=3"`
}

type UpdateRoleRequest struct {
	Description     *string  `json:"description" binding:"omitempty,max=500"`
	PermissionCodes []string `json:"permission_codes" binding:"omitempty,dive,min=3"`
}

type AssignRoleRequest struct {
	RoleID uuid.UUID `json:"role_id" binding:"required"`
}
