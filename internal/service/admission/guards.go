package admission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

// Table returns the admission transition table with its guards bound.
func Table(stores repository.StoreFactory) *workflow.Table {
	t := workflow.AdmissionTable()
	t.Guard(workflow.StatusAdmitted, workflow.StatusDischarged, summaryProvided(), dischargeWindow(stores))
	return t
}

// summaryProvided refuses a discharge without a summary. The record
// is the handover document, not an optional note.
func summaryProvided() workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		summary, _ := req.Fields["discharge_summary"].(string)
		if strings.TrimSpace(summary) == "" {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationMissingSummary,
				Detail: "discharge summary is required",
			}
		}
		return nil
	}
}

// dischargeWindow holds the discharge time to [admitted_at, now].
func dischargeWindow(stores repository.StoreFactory) workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		at, ok := req.Fields["discharged_at"].(time.Time)
		if !ok {
			return fmt.Errorf("discharge transition is missing the discharged_at field")
		}
		adm, err := stores(tx).Admissions.Get(ctx, req.EntityID)
		if err != nil {
			return err
		}
		if at.Before(adm.AdmittedAt) {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationDischargeTime,
				Detail: "discharge time precedes the admission time",
			}
		}
		if at.After(req.Now) {
			return &workflow.GuardViolation{
				Kind:   workflow.ViolationDischargeTime,
				Detail: "discharge time cannot be in the future",
			}
		}
		return nil
	}
}
