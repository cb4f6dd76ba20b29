package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

// Table returns the appointment transition table with its guards
// bound. Registered once on the engine at startup; the guards read
// through whatever transaction the engine hands them, so one table
// serves every tenant.
func Table(stores repository.StoreFactory, checkinGrace time.Duration) *workflow.Table {
	t := workflow.AppointmentTable()
	t.Guard(workflow.StatusScheduled, workflow.StatusCheckedIn, checkinWindow(stores, checkinGrace))
	t.Guard(workflow.StatusCheckedIn, workflow.StatusInConsultation, sameDay(stores))
	t.Guard(workflow.StatusInConsultation, workflow.StatusCompleted, noOpenPrescription(stores))
	t.Guard(workflow.StatusScheduled, workflow.StatusNoShow, afterScheduled(stores))
	t.Guard(workflow.StatusCheckedIn, workflow.StatusNoShow, afterScheduled(stores))
	t.Guard(workflow.StatusCheckedIn, workflow.StatusScheduled, slotFree(stores))
	return t
}

// checkinWindow holds check-in to [scheduled - grace, end of the
// appointment's UTC day].
func checkinWindow(stores repository.StoreFactory, grace time.Duration) workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		a, err := stores(tx).Appointments.Get(ctx, req.EntityID)
		if err != nil {
			return err
		}
		opens := a.ScheduledAt.Add(-grace)
		if req.Now.Before(opens) {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationCheckinWindow,
				Detail: fmt.Sprintf("check-in opens at %s", opens.UTC().Format(time.RFC3339)),
			}
		}
		if !req.Now.Before(endOfUTCDay(a.ScheduledAt)) {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationCheckinWindow,
				Detail: "check-in closed at the end of the appointment day",
			}
		}
		return nil
	}
}

// sameDay requires the consultation to start on the appointment's UTC
// calendar day.
func sameDay(stores repository.StoreFactory) workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		a, err := stores(tx).Appointments.Get(ctx, req.EntityID)
		if err != nil {
			return err
		}
		sy, sm, sd := a.ScheduledAt.UTC().Date()
		ny, nm, nd := req.Now.UTC().Date()
		if sy != ny || sm != nm || sd != nd {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationNotSameDay,
				Detail: "consultation must start on the appointment day",
			}
		}
		return nil
	}
}

// noOpenPrescription blocks completion while a draft prescription
// still references the appointment.
func noOpenPrescription(stores repository.StoreFactory) workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		open, err := stores(tx).Prescriptions.HasDraftForAppointment(ctx, req.EntityID)
		if err != nil {
			return err
		}
		if open {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationOpenPrescription,
				Detail: "a draft prescription references this appointment",
			}
		}
		return nil
	}
}

// afterScheduled refuses a no-show before the slot has passed.
func afterScheduled(stores repository.StoreFactory) workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		a, err := stores(tx).Appointments.Get(ctx, req.EntityID)
		if err != nil {
			return err
		}
		if req.Now.Before(a.ScheduledAt) {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationBeforeScheduled,
				Detail: "appointment time has not passed yet",
			}
		}
		return nil
	}
}

// slotFree validates the target slot on the reschedule reset edge.
func slotFree(stores repository.StoreFactory) workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		at, ok := req.Fields["scheduled_at"].(time.Time)
		if !ok {
			return fmt.Errorf("reschedule transition is missing the scheduled_at field")
		}
		st := stores(tx)
		a, err := st.Appointments.Get(ctx, req.EntityID)
		if err != nil {
			return err
		}
		return validateSlot(ctx, st, a.DoctorID, a.PatientID, at, &a.ID, req.Now)
	}
}

// validateSlot checks a target slot against the grid, the clock and
// both participants' calendars.
func validateSlot(ctx context.Context, st *repository.TenantStores, doctorID, patientID uuid.UUID, at time.Time, excludeID *uuid.UUID, now time.Time) error {
	if !model.OnSlotGrid(at) {
		return &workflow.GuardViolation{
			Kind:   workflow.ViolationMisalignedSlot,
			Detail: fmt.Sprintf("scheduled time must fall on a %d minute boundary", model.SlotMinutes),
		}
	}
	if !at.After(now) {
		return &workflow.GuardViolation{
			Kind:   workflow.ViolationPastSchedule,
			Detail: "scheduled time is in the past",
		}
	}
	taken, err := st.Appointments.SlotTaken(ctx, doctorID, at, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return slotConflict("doctor already has an appointment at this time")
	}
	overlap, err := st.Appointments.PatientOverlap(ctx, patientID, at, excludeID)
	if err != nil {
		return err
	}
	if overlap {
		return slotConflict("patient already has an appointment at this time")
	}
	return nil
}

func slotConflict(detail string) error {
	return &workflow.GuardViolation{Kind: workflow.ViolationSlotConflict, Detail: detail}
}

func endOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
