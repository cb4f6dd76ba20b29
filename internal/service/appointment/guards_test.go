package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

type fakeAppointments struct {
	repository.AppointmentRepository
	appt           *model.Appointment
	slotTaken      bool
	patientOverlap bool
}

func (f *fakeAppointments) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	if f.appt == nil || f.appt.ID != id {
		return nil, model.ErrAppointmentNotFound
	}
	return f.appt, nil
}

func (f *fakeAppointments) SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	return f.slotTaken, nil
}

func (f *fakeAppointments) PatientOverlap(ctx context.Context, patientID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	return f.patientOverlap, nil
}

type fakePrescriptions struct {
	repository.PrescriptionRepository
	hasDraft bool
}

func (f *fakePrescriptions) HasDraftForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	return f.hasDraft, nil
}

func factoryFor(appts *fakeAppointments, rx *fakePrescriptions) repository.StoreFactory {
	return func(q repository.Querier) *repository.TenantStores {
		return &repository.TenantStores{Appointments: appts, Prescriptions: rx}
	}
}

func scheduledAppointment(at time.Time) *model.Appointment {
	return &model.Appointment{
		Base:        model.Base{ID: uuid.New()},
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		ScheduledAt: at,
		Status:      model.AppointmentStatusScheduled,
		Version:     1,
	}
}

func runGuards(t *workflow.Table, from, to workflow.Status, req *workflow.Request) error {
	for _, g := range t.Guards(from, to) {
		if err := g(context.Background(), nil, req); err != nil {
			return err
		}
	}
	return nil
}

func violationKind(t *testing.T, err error) string {
	t.Helper()
	var gv *workflow.GuardViolation
	require.ErrorAs(t, err, &gv)
	return gv.Kind
}

func TestCheckinWindow(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	appt := scheduledAppointment(scheduled)
	appts := &fakeAppointments{appt: appt}
	table := Table(factoryFor(appts, &fakePrescriptions{}), 30*time.Minute)

	req := func(now time.Time) *workflow.Request {
		return &workflow.Request{
			Kind:     workflow.KindAppointment,
			EntityID: appt.ID,
			From:     workflow.StatusScheduled,
			To:       workflow.StatusCheckedIn,
			Now:      now,
		}
	}

	// An hour before the slot the window has not opened.
	err := runGuards(table, workflow.StatusScheduled, workflow.StatusCheckedIn, req(scheduled.Add(-time.Hour)))
	assert.Equal(t, workflow.ViolationCheckinWindow, violationKind(t, err))

	// Inside the grace window.
	assert.NoError(t, runGuards(table, workflow.StatusScheduled, workflow.StatusCheckedIn, req(scheduled.Add(-15*time.Minute))))

	// Late the same day is still allowed.
	assert.NoError(t, runGuards(table, workflow.StatusScheduled, workflow.StatusCheckedIn, req(scheduled.Add(8*time.Hour))))

	// Midnight UTC closes the window.
	err = runGuards(table, workflow.StatusScheduled, workflow.StatusCheckedIn, req(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, workflow.ViolationCheckinWindow, violationKind(t, err))
}

func TestConsultationMustStartSameDay(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	appt := scheduledAppointment(scheduled)
	appts := &fakeAppointments{appt: appt}
	table := Table(factoryFor(appts, &fakePrescriptions{}), 30*time.Minute)

	req := &workflow.Request{
		Kind:     workflow.KindAppointment,
		EntityID: appt.ID,
		From:     workflow.StatusCheckedIn,
		To:       workflow.StatusInConsultation,
		Now:      time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC),
	}
	err := runGuards(table, workflow.StatusCheckedIn, workflow.StatusInConsultation, req)
	assert.Equal(t, workflow.ViolationNotSameDay, violationKind(t, err))

	req.Now = time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	assert.NoError(t, runGuards(table, workflow.StatusCheckedIn, workflow.StatusInConsultation, req))
}

func TestCompletionBlockedByDraftPrescription(t *testing.T) {
	appt := scheduledAppointment(time.Now().UTC())
	rx := &fakePrescriptions{hasDraft: true}
	table := Table(factoryFor(&fakeAppointments{appt: appt}, rx), 30*time.Minute)

	req := &workflow.Request{
		Kind:     workflow.KindAppointment,
		EntityID: appt.ID,
		From:     workflow.StatusInConsultation,
		To:       workflow.StatusCompleted,
		Now:      time.Now().UTC(),
	}
	err := runGuards(table, workflow.StatusInConsultation, workflow.StatusCompleted, req)
	assert.Equal(t, workflow.ViolationOpenPrescription, violationKind(t, err))

	rx.hasDraft = false
	assert.NoError(t, runGuards(table, workflow.StatusInConsultation, workflow.StatusCompleted, req))
}

func TestNoShowRequiresSlotToHavePassed(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	appt := scheduledAppointment(scheduled)
	table := Table(factoryFor(&fakeAppointments{appt: appt}, &fakePrescriptions{}), 30*time.Minute)

	req := &workflow.Request{
		Kind:     workflow.KindAppointment,
		EntityID: appt.ID,
		From:     workflow.StatusScheduled,
		To:       workflow.StatusNoShow,
		Now:      scheduled.Add(-time.Minute),
	}
	err := runGuards(table, workflow.StatusScheduled, workflow.StatusNoShow, req)
	assert.Equal(t, workflow.ViolationBeforeScheduled, violationKind(t, err))

	req.Now = scheduled.Add(time.Minute)
	assert.NoError(t, runGuards(table, workflow.StatusScheduled, workflow.StatusNoShow, req))
}

func TestRescheduleValidatesTargetSlot(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	appt := scheduledAppointment(scheduled)
	appts := &fakeAppointments{appt: appt}
	table := Table(factoryFor(appts, &fakePrescriptions{}), 30*time.Minute)

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	req := func(target time.Time) *workflow.Request {
		return &workflow.Request{
			Kind:     workflow.KindAppointment,
			EntityID: appt.ID,
			From:     workflow.StatusCheckedIn,
			To:       workflow.StatusScheduled,
			Now:      now,
			Fields:   map[string]interface{}{"scheduled_at": target},
		}
	}

	// Off the 15-minute grid.
	err := runGuards(table, workflow.StatusCheckedIn, workflow.StatusScheduled, req(now.Add(time.Hour+7*time.Minute)))
	assert.Equal(t, workflow.ViolationMisalignedSlot, violationKind(t, err))

	// In the past.
	err = runGuards(table, workflow.StatusCheckedIn, workflow.StatusScheduled, req(now.Add(-time.Hour)))
	assert.Equal(t, workflow.ViolationPastSchedule, violationKind(t, err))

	// Doctor double-booked.
	appts.slotTaken = true
	err = runGuards(table, workflow.StatusCheckedIn, workflow.StatusScheduled, req(now.Add(time.Hour)))
	assert.Equal(t, workflow.ViolationSlotConflict, violationKind(t, err))

	// Patient double-booked.
	appts.slotTaken = false
	appts.patientOverlap = true
	err = runGuards(table, workflow.StatusCheckedIn, workflow.StatusScheduled, req(now.Add(time.Hour)))
	assert.Equal(t, workflow.ViolationSlotConflict, violationKind(t, err))

	// Free slot on the grid.
	appts.patientOverlap = false
	assert.NoError(t, runGuards(table, workflow.StatusCheckedIn, workflow.StatusScheduled, req(now.Add(time.Hour))))
}

func TestRescheduleRejectsMissingTarget(t *testing.T) {
	appt := scheduledAppointment(time.Now().UTC())
	table := Table(factoryFor(&fakeAppointments{appt: appt}, &fakePrescriptions{}), 30*time.Minute)

	req := &workflow.Request{
		Kind:     workflow.KindAppointment,
		EntityID: appt.ID,
		From:     workflow.StatusCheckedIn,
		To:       workflow.StatusScheduled,
		Now:      time.Now().UTC(),
	}
	err := runGuards(table, workflow.StatusCheckedIn, workflow.StatusScheduled, req)
	require.Error(t, err)
	var gv *workflow.GuardViolation
	assert.False(t, errors.As(err, &gv), "a missing field is a caller bug, not a guard violation")
}

func TestOnSlotGrid(t *testing.T) {
	assert.True(t, model.OnSlotGrid(time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)))
	assert.True(t, model.OnSlotGrid(time.Date(2025, 6, 2, 14, 45, 0, 0, time.UTC)))
	assert.False(t, model.OnSlotGrid(time.Date(2025, 6, 2, 14, 10, 0, 0, time.UTC)))
	assert.False(t, model.OnSlotGrid(time.Date(2025, 6, 2, 14, 15, 30, 0, time.UTC)))
	assert.False(t, model.OnSlotGrid(time.Date(2025, 6, 2, 14, 15, 0, 1, time.UTC)))
}
