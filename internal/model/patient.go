package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

// Patient lives in the tenant schema.
type Patient struct {
	Base
	MRN          string     `db:"mrn" json:"mrn"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	DateOfBirth  *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender       string     `db:"gender" json:"gender"`
	Phone        string     `db:"phone" json:"phone"`
	Email        string     `db:"email" json:"email"`
	Address      string     `db:"address" json:"address"`
	BloodGroup   string     `db:"blood_group" json:"blood_group"`
	Allergies    string     `db:"allergies" json:"allergies"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Status       string     `db:"status" json:"status"`
}

// FullName joins the name parts for display and notifications.
func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrMRNTaken        = errors.New("mrn already assigned")

	// ErrPatientInactive rejects clinical activity against a
	// deactivated patient record.
	ErrPatientInactive = errors.New("patient record is inactive")
)

// PatientSummary is the projection returned for cross-tenant share
// redemptions. Deliberately narrower than Patient.
type PatientSummary struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	MRN         string     `db:"mrn" json:"mrn"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      string     `db:"gender" json:"gender"`
	BloodGroup  string     `db:"blood_group" json:"blood_group"`
	Allergies   string     `db:"allergies" json:"allergies"`
}

type CreatePatientRequest struct {
	FirstName    string     `json:"first_name" binding:"required,min=1,max=120"`
	LastName     string     `json:"last_name" binding:"omitempty,max=120"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	Gender       string     `json:"gender" binding:"omitempty,oneof=male female other unknown"`
	Phone        string     `json:"phone" binding:"omitempty,max=32"`
	Email        string     `json:"email" binding:"omitempty,email"`
	Address      string     `json:"address" binding:"omitempty,max=500"`
	BloodGroup   string     `json:"blood_group" binding:"omitempty,max=8"`
	Allergies    string     `json:"allergies" binding:"omitempty,max=1000"`
	DepartmentID *uuid.UUID `json:"department_id"`
}

type UpdatePatientRequest struct {
	FirstName    *string    `json:"first_name" binding:"omitempty,min=1,max=120"`
	LastName     *string    `json:"last_name" binding:"omitempty,max=120"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	Gender       *string    `json:"gender" binding:"omitempty,oneof=male female other unknown"`
	Phone        *string    `json:"phone" binding:"omitempty,max=32"`
	Email        *string    `json:"email" binding:"omitempty,email"`
	Address      *string    `json:"address" binding:"omitempty,max=500"`
	BloodGroup   *string    `json:"blood_group" binding:"omitempty,max=8"`
	Allergies    *string    `json:"allergies" binding:"omitempty,max=1000"`
	DepartmentID *uuid.UUID `json:"department_id"`
	Status       *string    `json:"status" binding:"omitempty,oneof=active inactive"`
}

type PatientFilter struct {
	BaseFilter
	DepartmentID *uuid.UUID `form:"department_id"`
	Pagination
}
