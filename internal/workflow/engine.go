package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/pkg/metrics"
)

// Store persists transitions. ApplyTransition updates the entity row
// with an optimistic version check and reports whether a row changed;
// AppendHistory records the applied edge.
type Store interface {
	ApplyTransition(ctx context.Context, tx *sqlx.Tx, req *Request) (bool, error)
	AppendHistory(ctx context.Context, tx *sqlx.Tx, rec *model.WorkflowTransition) error
}

// OutboxWriter appends an event row inside the transition's
// transaction. Delivery happens later, outside the transaction.
type OutboxWriter interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
}

// Result describes an applied transition.
type Result struct {
	Kind       Kind
	EntityID   uuid.UUID
	From       Status
	To         Status
	OccurredAt time.Time
	EventID    uuid.UUID
}

// Engine executes declared transitions for every workflow-bearing
// entity kind. One instance serves all tenants; tenant isolation
// comes from the transaction it is handed, which is bound to the
// caller's schema.
type Engine struct {
	tables  map[Kind]*Table
	store   Store
	outbox  OutboxWriter
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEngine(store Store, outbox OutboxWriter, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		tables:  make(map[Kind]*Table),
		store:   store,
		outbox:  outbox,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Register installs a transition table. Registering the same kind
// twice panics: tables are wired once at startup.
func (e *Engine) Register(t *Table) {
	if _, ok := e.tables[t.Kind()]; ok {
		panic("workflow: table already registered for kind " + string(t.Kind()))
	}
	e.tables[t.Kind()] = t
}

// Table returns the registered table for a kind, or nil.
func (e *Engine) Table(kind Kind) *Table {
	return e.tables[kind]
}

// Transition validates and applies one status change. It must run
// inside the transaction that owns the rest of the unit of work: the
// status write, guard side effects, history record and event row
// commit or roll back together.
func (e *Engine) Transition(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, req *Request) (*Result, error) {
	table, ok := e.tables[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
	}

	if !table.Allowed(req.From, req.To) {
		e.reject(req.Kind, "invalid_edge")
		return nil, &InvalidTransitionError{Kind: req.Kind, From: req.From, To: req.To}
	}

	if req.Now.IsZero() {
		req.Now = e.now().UTC()
	}

	for _, guard := range table.Guards(req.From, req.To) {
		if err := guard(ctx, tx, req); err != nil {
			e.reject(req.Kind, "guard")
			return nil, err
		}
	}

	applied, err := e.store.ApplyTransition(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s transition: %w", req.Kind, err)
	}
	if !applied {
		if e.metrics != nil {
			e.metrics.WorkflowConflicts.WithLabelValues(string(req.Kind)).Inc()
		}
		return nil, ErrTransitionConflict
	}

	rec := &model.WorkflowTransition{
		ID:         uuid.New(),
		EntityType: string(req.Kind),
		EntityID:   req.EntityID,
		FromStatus: string(req.From),
		ToStatus:   string(req.To),
		ActorID:    req.ActorID,
		CreatedAt:  req.Now,
	}
	if len(req.Meta) > 0 {
		raw, err := json.Marshal(req.Meta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode transition context: %w", err)
		}
		rec.Context = raw
	}
	if err := e.store.AppendHistory(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("failed to append %s history: %w", req.Kind, err)
	}

	event, err := e.buildEvent(tenantID, req)
	if err != nil {
		return nil, err
	}
	if err := e.outbox.CreateTx(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("failed to emit %s event: %w", req.Kind, err)
	}

	if e.metrics != nil {
		e.metrics.WorkflowTransitions.WithLabelValues(string(req.Kind), string(req.From), string(req.To)).Inc()
	}
	e.logger.Info().
		Str("entity", string(req.Kind)).
		Str("entity_id", req.EntityID.String()).
		Str("from", string(req.From)).
		Str("to", string(req.To)).
		Str("actor_id", req.ActorID.String()).
		Msg("workflow transition applied")

	return &Result{
		Kind:       req.Kind,
		EntityID:   req.EntityID,
		From:       req.From,
		To:         req.To,
		OccurredAt: req.Now,
		EventID:    event.ID,
	}, nil
}

func (e *Engine) buildEvent(tenantID uuid.UUID, req *Request) (*model.OutboxEvent, error) {
	payload := map[string]interface{}{
		"entity_type": string(req.Kind),
		"entity_id":   req.EntityID,
		"from_status": string(req.From),
		"to_status":   string(req.To),
		"actor_id":    req.ActorID,
		"occurred_at": req.Now,
	}
	for k, v := range req.Meta {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}

	tid := tenantID
	return &model.OutboxEvent{
		ID:        uuid.New(),
		TenantID:  &tid,
		EventType: fmt.Sprintf("%s.transition", req.Kind),
		Payload:   raw,
		Status:    string(model.OutboxStatusPending),
		CreatedAt: req.Now,
		UpdatedAt: req.Now,
	}, nil
}

func (e *Engine) reject(kind Kind, cause string) {
	if e.metrics != nil {
		e.metrics.WorkflowRejections.WithLabelValues(string(kind), cause).Inc()
	}
}
