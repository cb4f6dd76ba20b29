package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled      AppointmentStatus = "SCHEDULED"
	AppointmentStatusCheckedIn      AppointmentStatus = "CHECKED_IN"
	AppointmentStatusInConsultation AppointmentStatus = "IN_CONSULTATION"
	AppointmentStatusCompleted      AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled      AppointmentStatus = "CANCELLED"
	AppointmentStatusNoShow         AppointmentStatus = "NO_SHOW"
)

// Cancellation reasons accepted by the cancel transition.
const (
	CancelReasonPatientRequest    = "PATIENT_REQUEST"
	CancelReasonAdmittedToIPD     = "ADMITTED_TO_IPD"
	CancelReasonDoctorUnavailable = "DOCTOR_UNAVAILABLE"
	CancelReasonOther             = "OTHER"
)

func ValidCancelReason(reason string) bool {
	switch reason {
	case CancelReasonPatientRequest, CancelReasonAdmittedToIPD, CancelReasonDoctorUnavailable, CancelReasonOther:
		return true
	}
	return false
}

// SlotMinutes is the scheduling grid. Appointments start on a
// quarter-hour boundary.
const SlotMinutes = 15

// Appointment lives in the tenant schema.
type Appointment struct {
	Base
	PatientID            uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID             uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	DepartmentID         *uuid.UUID        `db:"department_id" json:"department_id,omitempty"`
	ScheduledAt          time.Time         `db:"scheduled_at" json:"scheduled_at"`
	Reason               string            `db:"reason" json:"reason"`
	Notes                string            `db:"notes" json:"notes,omitempty"`
	Status               AppointmentStatus `db:"status" json:"status"`
	Version              int               `db:"version" json:"version"`
	CheckedInAt          *time.Time        `db:"checked_in_at" json:"checked_in_at,omitempty"`
	ConsultationAt       *time.Time        `db:"consultation_started_at" json:"consultation_started_at,omitempty"`
	CompletedAt          *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt          *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason   *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	MarkedNoShowAt       *time.Time        `db:"marked_no_show_at" json:"marked_no_show_at,omitempty"`
	CreatedBy            uuid.UUID         `db:"created_by" json:"created_by"`
}

// Terminal reports whether no further transition can leave the status.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// OnSlotGrid reports whether t starts on the scheduling grid.
func OnSlotGrid(t time.Time) bool {
	return t.Minute()%SlotMinutes == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("doctor already booked for this slot")
)

type CreateAppointmentRequest struct {
	PatientID    uuid.UUID  `json:"patient_id" binding:"required"`
	DoctorID     uuid.UUID  `json:"doctor_id" binding:"required"`
	DepartmentID *uuid.UUID `json:"department_id"`
	ScheduledAt  time.Time  `json:"scheduled_at" binding:"required"`
	Reason       string     `json:"reason" binding:"omitempty,max=500"`
	Notes        string     `json:"notes" binding:"omitempty,max=1000"`
}

type RescheduleAppointmentRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Reason      string    `json:"reason" binding:"omitempty,max=500"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"required,oneof=PATIENT_REQUEST ADMITTED_TO_IPD DOCTOR_UNAVAILABLE OTHER"`
	Notes  string `json:"notes" binding:"omitempty,max=500"`
}

type CompleteAppointmentRequest struct {
	Notes string `json:"notes" binding:"omitempty,max=2000"`
}

type AppointmentFilter struct {
	DoctorID  *uuid.UUID `form:"doctor_id"`
	PatientID *uuid.UUID `form:"patient_id"`
	Status    string     `form:"status"`
	DateFrom  time.Time  `form:"date_from"`
	DateTo    time.Time  `form:"date_to"`
	Pagination
}
