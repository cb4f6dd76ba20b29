package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User status constants
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
	UserStatusPending  = "pending"
	UserStatusLocked   = "locked"
)

// User is a platform identity. The row lives in the shared public
// schema; a nil TenantID marks a platform operator.
type User struct {
	Base
	TenantID            *uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Email               string     `json:"email" db:"email"`
	Name                string     `json:"name" db:"name"`
	Password            string     `json:"password,omitempty" db:"-"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Phone               *string    `json:"phone" db:"phone"`
	DepartmentID        *uuid.UUID `json:"department_id" db:"department_id"`
	Status              string     `json:"status" db:"status"`
	EmailVerified       bool       `json:"email_verified" db:"email_verified"`
	LastLoginAt         *time.Time `json:"last_login_at" db:"last_login_at"`
	FailedLoginAttempts int        `json:"failed_login_attempts" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until" db:"locked_until"`
	Settings            JSONMap    `json:"settings" db:"settings"`
}

// IsPlatformOperator reports whether the user administers the platform
// rather than a single hospital.
func (u *User) IsPlatformOperator() bool {
	return u.TenantID == nil
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")

	// ErrNotADoctor rejects a clinical assignment to a user who does
	// not hold the DOCTOR role in the tenant.
	ErrNotADoctor = errors.New("user does not hold the DOCTOR role")
)

// UserFilter represents user search parameters
type UserFilter struct {
	BaseFilter
	DepartmentID *uuid.UUID `json:"department_id" form:"department_id"`
	Role         string     `json:"role" form:"role"`
	Pagination
}

// CreateUserRequest represents staff creation parameters
type CreateUserRequest struct {
	Email        string     `json:"email" binding:"required,email"`
	Name         string     `json:"name" binding:"required,min=2,max=120"`
	Password     string     `json:"password" binding:"required,min=8"`
	Phone        *string    `json:"phone" binding:"omitempty,max=32"`
	DepartmentID *uuid.UUID `json:"department_id"`
	RoleIDs      []string   `json:"role_ids" binding:"omitempty,dive,uuid"`
}

// UpdateUserRequest represents staff update parameters
type UpdateUserRequest struct {
	Name         *string    `json:"name" binding:"omitempty,min=2,max=120"`
	Email        *string    `json:"email" binding:"omitempty,email"`
	Phone        *string    `json:"phone" binding:"omitempty,max=32"`
	DepartmentID *uuid.UUID `json:"department_id"`
	Status       *string    `json:"status" binding:"omitempty,oneof=active inactive pending locked"`
	Settings     JSONMap    `json:"settings"`
}
