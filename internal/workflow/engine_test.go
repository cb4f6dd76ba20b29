package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vs-ai-ds/hms-backend/internal/model"
)

type fakeStore struct {
	applied   bool
	applyErr  error
	requests  []*Request
	history   []*model.WorkflowTransition
	histErr   error
	callOrder []string
}

func (s *fakeStore) ApplyTransition(ctx context.Context, tx *sqlx.Tx, req *Request) (bool, error) {
	s.callOrder = append(s.callOrder, "apply")
	s.requests = append(s.requests, req)
	return s.applied, s.applyErr
}

func (s *fakeStore) AppendHistory(ctx context.Context, tx *sqlx.Tx, rec *model.WorkflowTransition) error {
	s.callOrder = append(s.callOrder, "history")
	s.history = append(s.history, rec)
	return s.histErr
}

type fakeOutbox struct {
	events []*model.OutboxEvent
	err    error
}

func (o *fakeOutbox) CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	o.events = append(o.events, event)
	return o.err
}

func newTestEngine(store *fakeStore, outbox *fakeOutbox, tables ...*Table) *Engine {
	e := NewEngine(store, outbox, zerolog.Nop(), nil)
	for _, t := range tables {
		e.Register(t)
	}
	return e
}

func TestTransitionAppliesDeclaredEdge(t *testing.T) {
	store := &fakeStore{applied: true}
	outbox := &fakeOutbox{}
	engine := newTestEngine(store, outbox, AppointmentTable())

	tenantID := uuid.New()
	actorID := uuid.New()
	entityID := uuid.New()

	res, err := engine.Transition(context.Background(), nil, tenantID, &Request{
		Kind:     KindAppointment,
		EntityID: entityID,
		From:     StatusScheduled,
		To:       StatusCheckedIn,
		Version:  1,
		ActorID:  actorID,
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, KindAppointment, res.Kind)
	assert.Equal(t, StatusScheduled, res.From)
	assert.Equal(t, StatusCheckedIn, res.To)
	assert.False(t, res.OccurredAt.IsZero())

	require.Len(t, store.history, 1)
	assert.Equal(t, "appointment", store.history[0].EntityType)
	assert.Equal(t, entityID, store.history[0].EntityID)
	assert.Equal(t, string(StatusScheduled), store.history[0].FromStatus)
	assert.Equal(t, string(StatusCheckedIn), store.history[0].ToStatus)

	require.Len(t, outbox.events, 1)
	assert.Equal(t, "appointment.transition", outbox.events[0].EventType)
	assert.Equal(t, res.EventID, outbox.events[0].ID)
	require.NotNil(t, outbox.events[0].TenantID)
	assert.Equal(t, tenantID, *outbox.events[0].TenantID)
}

func TestTransitionRejectsUndeclaredEdge(t *testing.T) {
	store := &fakeStore{applied: true}
	engine := newTestEngine(store, &fakeOutbox{}, AppointmentTable())

	_, err := engine.Transition(context.Background(), nil, uuid.New(), &Request{
		Kind:     KindAppointment,
		EntityID: uuid.New(),
		From:     StatusCompleted,
		To:       StatusCheckedIn,
		ActorID:  uuid.New(),
	})

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusCompleted, ite.From)
	assert.Equal(t, StatusCheckedIn, ite.To)
	assert.Empty(t, store.requests, "store must not be touched on an invalid edge")
}

func TestTransitionIdempotentResendRejected(t *testing.T) {
	// A client re-sending check-in after it already applied sees the
	// same invalid-edge error: CHECKED_IN -> CHECKED_IN is undeclared.
	engine := newTestEngine(&fakeStore{applied: true}, &fakeOutbox{}, AppointmentTable())

	_, err := engine.Transition(context.Background(), nil, uuid.New(), &Request{
		Kind:     KindAppointment,
		EntityID: uuid.New(),
		From:     StatusCheckedIn,
		To:       StatusCheckedIn,
		ActorID:  uuid.New(),
	})

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
}

func TestTransitionUnknownKind(t *testing.T) {
	engine := newTestEngine(&fakeStore{applied: true}, &fakeOutbox{})

	_, err := engine.Transition(context.Background(), nil, uuid.New(), &Request{
		Kind: Kind("visit"),
		From: StatusScheduled,
		To:   StatusCheckedIn,
	})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestTransitionGuardViolationStopsChain(t *testing.T) {
	store := &fakeStore{applied: true}
	table := AppointmentTable()

	var secondGuardRan bool
	table.Guard(StatusScheduled, StatusCheckedIn, func(ctx context.Context, tx *sqlx.Tx, req *Request) error {
		return &GuardViolation{Kind: ViolationCheckinWindow, Detail: "too early"}
	})
	table.Guard(StatusScheduled, StatusCheckedIn, func(ctx context.Context, tx *sqlx.Tx, req *Request) error {
		secondGuardRan = true
		return nil
	})

	engine := newTestEngine(store, &fakeOutbox{}, table)

	_, err := engine.Transition(context.Background(), nil, uuid.New(), &Request{
		Kind:     KindAppointment,
		EntityID: uuid.New(),
		From:     StatusScheduled,
		To:       StatusCheckedIn,
		ActorID:  uuid.New(),
	})

	var gv *GuardViolation
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, ViolationCheckinWindow, gv.Kind)
	assert.False(t, secondGuardRan, "guards after a violation must not run")
	assert.Empty(t, store.requests)
}

func TestTransitionConflictIsRetryable(t *testing.T) {
	store := &fakeStore{applied: false}
	engine := newTestEngine(store, &fakeOutbox{}, PrescriptionTable())

	_, err := engine.Transition(context.Background(), nil, uuid.New(), &Request{
		Kind:     KindPrescription,
		EntityID: uuid.New(),
		From:     StatusIssued,
		To:       StatusDispensed,
		Version:  3,
		ActorID:  uuid.New(),
	})

	require.ErrorIs(t, err, ErrTransitionConflict)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("other")))
}

func TestTransitionMetaRecordedInHistoryAndEvent(t *testing.T) {
	store := &fakeStore{applied: true}
	outbox := &fakeOutbox{}
	engine := newTestEngine(store, outbox, AdmissionTable())

	_, err := engine.Transition(context.Background(), nil, uuid.New(), &Request{
		Kind:     KindAdmission,
		EntityID: uuid.New(),
		From:     StatusAdmitted,
		To:       StatusDischarged,
		ActorID:  uuid.New(),
		Meta:     map[string]interface{}{"discharge_summary": "recovered"},
	})
	require.NoError(t, err)

	require.Len(t, store.history, 1)
	var recorded map[string]interface{}
	require.NoError(t, json.Unmarshal(store.history[0].Context, &recorded))
	assert.Equal(t, "recovered", recorded["discharge_summary"])

	require.Len(t, outbox.events, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(outbox.events[0].Payload, &payload))
	assert.Equal(t, "recovered", payload["discharge_summary"])
	assert.Equal(t, "admission", payload["entity_type"])
}

func TestTransitionUsesProvidedClock(t *testing.T) {
	store := &fakeStore{applied: true}
	engine := newTestEngine(store, &fakeOutbox{}, AppointmentTable())

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	res, err := engine.Transition(context.Background(), nil, uuid.New(), &Request{
		Kind:     KindAppointment,
		EntityID: uuid.New(),
		From:     StatusScheduled,
		To:       StatusCancelled,
		ActorID:  uuid.New(),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, now, res.OccurredAt)
	assert.Equal(t, now, store.history[0].CreatedAt)
}

func TestRegisterDuplicateKindPanics(t *testing.T) {
	engine := NewEngine(&fakeStore{}, &fakeOutbox{}, zerolog.Nop(), nil)
	engine.Register(AppointmentTable())
	assert.Panics(t, func() { engine.Register(AppointmentTable()) })
}

func TestTableTerminalStatuses(t *testing.T) {
	appt := AppointmentTable()
	assert.True(t, appt.Terminal(StatusCompleted))
	assert.True(t, appt.Terminal(StatusCancelled))
	assert.True(t, appt.Terminal(StatusNoShow))
	assert.False(t, appt.Terminal(StatusScheduled))
	assert.False(t, appt.Terminal(StatusCheckedIn))

	rx := PrescriptionTable()
	assert.True(t, rx.Terminal(StatusDispensed))
	assert.True(t, rx.Terminal(StatusRxCancelled))
	assert.False(t, rx.Terminal(StatusDraft))

	adm := AdmissionTable()
	assert.True(t, adm.Terminal(StatusDischarged))
	assert.False(t, adm.Terminal(StatusAdmitted))
}

func TestTableRescheduleEdgeDeclared(t *testing.T) {
	appt := AppointmentTable()
	assert.True(t, appt.Allowed(StatusCheckedIn, StatusScheduled))
	assert.False(t, appt.Allowed(StatusInConsultation, StatusScheduled))
}

func TestGuardOnUndeclaredEdgePanics(t *testing.T) {
	assert.Panics(t, func() {
		AppointmentTable().Guard(StatusCompleted, StatusScheduled, func(ctx context.Context, tx *sqlx.Tx, req *Request) error {
			return nil
		})
	})
}
