package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Kind names a workflow-bearing entity type.
type Kind string

const (
	KindAppointment  Kind = "appointment"
	KindPrescription Kind = "prescription"
	KindAdmission    Kind = "admission"
)

// Status is an entity lifecycle state.
type Status string

// Request describes one intended transition. Fields are the column
// updates applied together with the status write; Meta is recorded in
// history and the emitted event.
type Request struct {
	Kind     Kind
	EntityID uuid.UUID
	From     Status
	To       Status
	Version  int
	ActorID  uuid.UUID
	Now      time.Time
	Fields   map[string]interface{}
	Meta     map[string]interface{}
}

// Guard validates an edge before the status write. Guards run inside
// the transition's transaction and may read and write tenant data;
// their effects commit or roll back with the status change.
type Guard func(ctx context.Context, tx *sqlx.Tx, req *Request) error

// Guard violation kinds.
const (
	ViolationSlotConflict      = "slot_conflict"
	ViolationPastSchedule      = "past_schedule"
	ViolationMisalignedSlot    = "misaligned_slot"
	ViolationCheckinWindow     = "checkin_window"
	ViolationNotSameDay        = "not_same_day"
	ViolationOpenPrescription  = "open_prescription"
	ViolationBeforeScheduled   = "before_scheduled"
	ViolationInsufficientStock = "insufficient_stock"
	ViolationMissingSummary    = "missing_discharge_summary"
	ViolationDischargeTime     = "discharge_time_out_of_range"
)

// GuardViolation is a failed guard. Kind identifies the rule; Detail
// carries the offending value for the caller's message.
type GuardViolation struct {
	Kind   string
	Detail string
}

func (e *GuardViolation) Error() string {
	if e.Detail == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// InvalidTransitionError reports an edge absent from the declared
// table, including re-sends of an already applied transition.
type InvalidTransitionError struct {
	Kind Kind
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Kind, e.From, e.To)
}

var (
	// ErrTransitionConflict reports that another unit of work changed
	// the entity first. The one retryable workflow error: callers may
	// re-read the entity and attempt the transition once more.
	ErrTransitionConflict = errors.New("concurrent transition conflict, re-read and retry")

	// ErrUnknownKind reports a transition request for an entity type
	// with no registered table.
	ErrUnknownKind = errors.New("no transition table registered for entity kind")
)

// IsRetryable reports whether the transition may be reattempted after
// re-reading entity state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransitionConflict)
}
