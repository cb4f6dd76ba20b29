package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

// workflowTables maps entity kinds to their tenant-schema tables.
var workflowTables = map[workflow.Kind]string{
	workflow.KindAppointment:  "appointments",
	workflow.KindPrescription: "prescriptions",
	workflow.KindAdmission:    "admissions",
}

// workflowColumns whitelists the side-effect columns each kind may
// write together with its status. Anything else in Request.Fields is
// a programming error and fails the transition.
var workflowColumns = map[workflow.Kind]map[string]bool{
	workflow.KindAppointment: {
		"scheduled_at":            true,
		"checked_in_at":           true,
		"consultation_started_at": true,
		"completed_at":            true,
		"cancelled_at":            true,
		"cancellation_reason":     true,
		"marked_no_show_at":       true,
		"notes":                   true,
	},
	workflow.KindPrescription: {
		"issued_at":    true,
		"dispensed_at": true,
		"dispensed_by": true,
		"cancelled_at": true,
		"notes":        true,
	},
	workflow.KindAdmission: {
		"discharged_at":     true,
		"discharge_summary": true,
		"discharged_by":     true,
	},
}

type workflowRepository struct {
	q repository.Querier
}

func NewWorkflowRepository(q repository.Querier) repository.WorkflowRepository {
	return &workflowRepository{q: q}
}

// ApplyTransition writes the new status plus the requested side-effect
// columns, bumps the version and stamps updated_at. The WHERE clause
// re-checks status and version, so a concurrent transition makes this
// a no-op and the caller sees applied == false.
func (r *workflowRepository) ApplyTransition(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) (bool, error) {
	table, ok := workflowTables[req.Kind]
	if !ok {
		return false, fmt.Errorf("%w: %s", workflow.ErrUnknownKind, req.Kind)
	}
	allowed := workflowColumns[req.Kind]

	sets := []string{"status = $1", "version = version + 1", "updated_at = $2"}
	args := []interface{}{string(req.To), req.Now}
	argPos := 3

	cols := make([]string, 0, len(req.Fields))
	for col := range req.Fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if !allowed[col] {
			return false, fmt.Errorf("column %s is not transition-writable for %s", col, req.Kind)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argPos))
		args = append(args, req.Fields[col])
		argPos++
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d AND status = $%d AND version = $%d AND deleted_at IS NULL",
		table, strings.Join(sets, ", "), argPos, argPos+1, argPos+2,
	)
	args = append(args, req.EntityID, string(req.From), req.Version)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to apply transition on %s: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *workflowRepository) AppendHistory(ctx context.Context, tx *sqlx.Tx, rec *model.WorkflowTransition) error {
	query := `
		INSERT INTO workflow_transitions (
			id, entity_type, entity_id, from_status, to_status, actor_id, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		rec.ID,
		rec.EntityType,
		rec.EntityID,
		rec.FromStatus,
		rec.ToStatus,
		rec.ActorID,
		rec.Context,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append workflow history: %w", err)
	}
	return nil
}

func (r *workflowRepository) ListHistory(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.WorkflowTransition, error) {
	query := `
		SELECT * FROM workflow_transitions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`
	var transitions []*model.WorkflowTransition
	if err := r.q.SelectContext(ctx, &transitions, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list workflow history: %w", err)
	}
	return transitions, nil
}
