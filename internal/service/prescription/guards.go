package prescription

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

// Table wires the prescription state machine with its dispensing
// guard.
func Table(stores repository.StoreFactory) *workflow.Table {
	t := workflow.PrescriptionTable()
	t.Guard(workflow.StatusIssued, workflow.StatusDispensed, deductStock(stores))
	return t
}

// deductStock takes every stock-linked line out of inventory inside
// the transition transaction. One short line fails the whole
// transition and rolls back the lines already deducted.
func deductStock(stores repository.StoreFactory) workflow.Guard {
	return func(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) error {
		st := stores(tx)
		items, err := st.Prescriptions.GetItems(ctx, req.EntityID)
		if err != nil {
			return fmt.Errorf("failed to load prescription items: %w", err)
		}
		for _, item := range items {
			if item.StockItemID == nil {
				continue
			}
			ok, err := st.Stock.Deduct(ctx, *item.StockItemID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &workflow.GuardViolation{
					Kind:   workflow.ViolationInsufficientStock,
					Detail: fmt.Sprintf("insufficient stock for %s", item.MedicationName),
				}
			}
		}
		return nil
	}
}
