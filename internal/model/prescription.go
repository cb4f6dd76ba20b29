package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionStatusDraft     PrescriptionStatus = "DRAFT"
	PrescriptionStatusIssued    PrescriptionStatus = "ISSUED"
	PrescriptionStatusDispensed PrescriptionStatus = "DISPENSED"
	PrescriptionStatusCancelled PrescriptionStatus = "CANCELLED"
)

// Terminal reports whether no further transition can leave the status.
func (s PrescriptionStatus) Terminal() bool {
	return s == PrescriptionStatusDispensed || s == PrescriptionStatusCancelled
}

var (
	ErrPrescriptionNotFound = errors.New("prescription not found")

	// ErrDuplicatePrescription enforces at most one live prescription
	// per appointment. Cancelled ones do not count.
	ErrDuplicatePrescription = errors.New("an open prescription already exists for this appointment")
)

// Prescription lives in the tenant schema. Exactly one of
// AppointmentID and AdmissionID is set: a prescription belongs to an
// outpatient visit or to an inpatient stay, never both and never
// neither.
type Prescription struct {
	Base
	PatientID     uuid.UUID          `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	AppointmentID *uuid.UUID         `db:"appointment_id" json:"appointment_id,omitempty"`
	AdmissionID   *uuid.UUID         `db:"admission_id" json:"admission_id,omitempty"`
	Status        PrescriptionStatus `db:"status" json:"status"`
	Version       int                `db:"version" json:"version"`
	Notes         string             `db:"notes" json:"notes,omitempty"`
	IssuedAt      *time.Time         `db:"issued_at" json:"issued_at,omitempty"`
	DispensedAt   *time.Time         `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedBy   *uuid.UUID         `db:"dispensed_by" json:"dispensed_by,omitempty"`
	CancelledAt   *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Items         []PrescriptionItem `db:"-" json:"items,omitempty"`
}

// PrescriptionItem is one medication line. StockItemID is nil for
// free-text medications dispensed outside the in-house pharmacy.
type PrescriptionItem struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PrescriptionID uuid.UUID  `db:"prescription_id" json:"prescription_id"`
	StockItemID    *uuid.UUID `db:"stock_item_id" json:"stock_item_id,omitempty"`
	MedicationName string     `db:"medication_name" json:"medication_name"`
	Dosage         string     `db:"dosage" json:"dosage"`
	Frequency      string     `db:"frequency" json:"frequency"`
	DurationDays   int        `db:"duration_days" json:"duration_days"`
	Quantity       int        `db:"quantity" json:"quantity"`
	Instructions   string     `db:"instructions" json:"instructions,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

type PrescriptionItemRequest struct {
	StockItemID    *uuid.UUID `json:"stock_item_id"`
	MedicationName string     `json:"medication_name" binding:"required,min=1,max=255"`
	Dosage         string     `json:"dosage" binding:"required,max=120"`
	Frequency      string     `json:"frequency" binding:"required,max=120"`
	DurationDays   int        `json:"duration_days" binding:"required,min=1,max=365"`
	Quantity       int        `json:"quantity" binding:"required,min=1"`
	Instructions   string     `json:"instructions" binding:"omitempty,max=500"`
}

// CreatePrescriptionRequest opens a draft. DoctorID defaults to the
// acting user; admins may set it to prescribe on a doctor's behalf.
type CreatePrescriptionRequest struct {
	PatientID     uuid.UUID                 `json:"patient_id" binding:"required"`
	DoctorID      *uuid.UUID                `json:"doctor_id"`
	AppointmentID *uuid.UUID                `json:"appointment_id"`
	AdmissionID   *uuid.UUID                `json:"admission_id"`
	Notes         string                    `json:"notes" binding:"omitempty,max=1000"`
	Items         []PrescriptionItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CancelPrescriptionRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

type UpdatePrescriptionRequest struct {
	Notes *string                   `json:"notes" binding:"omitempty,max=1000"`
	Items []PrescriptionItemRequest `json:"items" binding:"omitempty,min=1,dive"`
}

type PrescriptionFilter struct {
	PatientID *uuid.UUID `form:"patient_id"`
	DoctorID  *uuid.UUID `form:"doctor_id"`
	Status    string     `form:"status"`
	Pagination
}
