package workflow

import "github.com/vs-ai-ds/hms-backend/internal/model"

// Appointment statuses as workflow states.
const (
	StatusScheduled      = Status(model.AppointmentStatusScheduled)
	StatusCheckedIn      = Status(model.AppointmentStatusCheckedIn)
	StatusInConsultation = Status(model.AppointmentStatusInConsultation)
	StatusCompleted      = Status(model.AppointmentStatusCompleted)
	StatusCancelled      = Status(model.AppointmentStatusCancelled)
	StatusNoShow         = Status(model.AppointmentStatusNoShow)
)

// Prescription statuses as workflow states.
const (
	StatusDraft       = Status(model.PrescriptionStatusDraft)
	StatusIssued      = Status(model.PrescriptionStatusIssued)
	StatusDispensed   = Status(model.PrescriptionStatusDispensed)
	StatusRxCancelled = Status(model.PrescriptionStatusCancelled)
)

// Admission statuses as workflow states.
const (
	StatusAdmitted   = Status(model.AdmissionStatusActive)
	StatusDischarged = Status(model.AdmissionStatusDischarged)
)

// AppointmentTable declares the appointment lifecycle. The reschedule
// edge CHECKED_IN -> SCHEDULED clears check-in state; every other
// edge moves forward or terminates.
func AppointmentTable() *Table {
	return NewTable(KindAppointment, StatusScheduled).
		Edge(StatusScheduled, StatusCheckedIn).
		Edge(StatusCheckedIn, StatusInConsultation).
		Edge(StatusInConsultation, StatusCompleted).
		Edge(StatusScheduled, StatusNoShow).
		Edge(StatusCheckedIn, StatusNoShow).
		Edge(StatusScheduled, StatusCancelled).
		Edge(StatusCheckedIn, StatusCancelled).
		Edge(StatusCheckedIn, StatusScheduled)
}

// PrescriptionTable declares the prescription lifecycle.
func PrescriptionTable() *Table {
	return NewTable(KindPrescription, StatusDraft).
		Edge(StatusDraft, StatusIssued).
		Edge(StatusIssued, StatusDispensed).
		Edge(StatusDraft, StatusRxCancelled).
		Edge(StatusIssued, StatusRxCancelled)
}

// AdmissionTable declares the inpatient stay lifecycle. CANCELLED is
// a reserved status with no inbound edge yet.
func AdmissionTable() *Table {
	return NewTable(KindAdmission, StatusAdmitted).
		Edge(StatusAdmitted, StatusDischarged)
}
