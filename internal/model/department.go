package model

import "errors"

var (
	ErrDepartmentNotFound  = errors.New("department not found")
	ErrDepartmentCodeTaken = errors.New("department code already in use")
)

// Department lives in the tenant schema. Used for staff assignment
// and attribute-based access checks.
type Department struct {
	Base
	Name        string `db:"name" json:"name"`
	Code        string `db:"code" json:"code"`
	Description string `db:"description" json:"description,omitempty"`
	IsActive    bool   `db:"is_active" json:"is_active"`
}

type CreateDepartmentRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=120"`
	Code        string `json:"code" binding:"required,min=2,max=16"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

type UpdateDepartmentRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=120"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	IsActive    *bool   `json:"is_active"`
}
