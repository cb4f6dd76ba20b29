package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type AdmissionStatus string

const (
	AdmissionStatusActive     AdmissionStatus = "ACTIVE"
	AdmissionStatusDischarged AdmissionStatus = "DISCHARGED"
	// AdmissionStatusCancelled exists in the data model but no
	// transition currently leads to it. Reserved for bed management.
	AdmissionStatusCancelled AdmissionStatus = "CANCELLED"
)

// Terminal reports whether no further transition can leave the status.
func (s AdmissionStatus) Terminal() bool {
	return s == AdmissionStatusDischarged || s == AdmissionStatusCancelled
}

var (
	ErrAdmissionNotFound = errors.New("admission not found")
	ErrAlreadyAdmitted   = errors.New("patient already has an active admission")

	// ErrPatientAdmitted blocks outpatient activity while the patient
	// occupies a bed. The admission owns them until discharge.
	ErrPatientAdmitted = errors.New("patient has an active admission")
)

// Admission is an inpatient stay. Lives in the tenant schema.
type Admission struct {
	Base
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID         uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	DepartmentID     *uuid.UUID      `db:"department_id" json:"department_id,omitempty"`
	WardName         string          `db:"ward_name" json:"ward_name"`
	BedNumber        string          `db:"bed_number" json:"bed_number"`
	Diagnosis        string          `db:"diagnosis" json:"diagnosis"`
	Status           AdmissionStatus `db:"status" json:"status"`
	Version          int             `db:"version" json:"version"`
	AdmittedAt       time.Time       `db:"admitted_at" json:"admitted_at"`
	DischargedAt     *time.Time      `db:"discharged_at" json:"discharged_at,omitempty"`
	DischargeSummary string          `db:"discharge_summary" json:"discharge_summary,omitempty"`
	DischargedBy     *uuid.UUID      `db:"discharged_by" json:"discharged_by,omitempty"`
	CreatedBy        uuid.UUID       `db:"created_by" json:"created_by"`
}

type CreateAdmissionRequest struct {
	PatientID    uuid.UUID  `json:"patient_id" binding:"required"`
	DoctorID     uuid.UUID  `json:"doctor_id" binding:"required"`
	DepartmentID *uuid.UUID `json:"department_id"`
	WardName     string     `json:"ward_name" binding:"required,max=120"`
	BedNumber    string     `json:"bed_number" binding:"omitempty,max=32"`
	Diagnosis    string     `json:"diagnosis" binding:"omitempty,max=2000"`
	AdmittedAt   *time.Time `json:"admitted_at"`
}

type DischargeAdmissionRequest struct {
	DischargeSummary  string     `json:"discharge_summary" binding:"required,min=1,max=10000"`
	DischargeDatetime *time.Time `json:"discharge_datetime"`
}

type AdmissionFilter struct {
	PatientID *uuid.UUID `form:"patient_id"`
	DoctorID  *uuid.UUID `form:"doctor_id"`
	Status    string     `form:"status"`
	Pagination
}
