package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Workflow entity kinds recorded in transition history.
const (
	WorkflowEntityAppointment  = "appointment"
	WorkflowEntityPrescription = "prescription"
	WorkflowEntityAdmission    = "admission"
)

// WorkflowTransition is one applied state change. Lives in the tenant
// schema next to the entities it describes.
type WorkflowTransition struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID       `db:"entity_id" json:"entity_id"`
	FromStatus string          `db:"from_status" json:"from_status"`
	ToStatus   string          `db:"to_status" json:"to_status"`
	ActorID    uuid.UUID       `db:"actor_id" json:"actor_id"`
	Context    json.RawMessage `db:"context" json:"context,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
