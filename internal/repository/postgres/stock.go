package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

type stockRepository struct {
	q repository.Querier
}

func NewStockRepository(q repository.Querier) repository.StockRepository {
	return &stockRepository{q: q}
}

func (r *stockRepository) Create(ctx context.Context, item *model.StockItem) error {
	query := `
		INSERT INTO stock_items (
			id, name, sku, unit, current_stock, reorder_level, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		item.ID,
		item.Name,
		item.SKU,
		item.Unit,
		item.CurrentStock,
		item.ReorderLevel,
		item.IsActive,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrSKUTaken
		}
		return fmt.Errorf("failed to create stock item: %w", err)
	}
	return nil
}

func (r *stockRepository) Get(ctx context.Context, id uuid.UUID) (*model.StockItem, error) {
	query := `SELECT * FROM stock_items WHERE id = $1 AND deleted_at IS NULL`
	var item model.StockItem
	if err := r.q.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrStockItemNotFound
		}
		return nil, fmt.Errorf("failed to get stock item: %w", err)
	}
	return &item, nil
}

func (r *stockRepository) Update(ctx context.Context, item *model.StockItem) error {
	query := `
		UPDATE stock_items
		SET name = $1, unit = $2, reorder_level = $3, is_active = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL
	`
	item.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		item.Name,
		item.Unit,
		item.ReorderLevel,
		item.IsActive,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrStockItemNotFound
	}
	return nil
}

func (r *stockRepository) List(ctx context.Context, filter *model.StockItemFilter) ([]*model.StockItem, error) {
	query := `SELECT * FROM stock_items WHERE deleted_at IS NULL`
	args := []interface{}{}
	argPos := 1

	if filter.SearchTerm != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR sku ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.SearchTerm+"%")
		argPos++
	}
	if filter.BelowReorder {
		query += " AND current_stock <= reorder_level"
	}
	query += fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var items []*model.StockItem
	if err := r.q.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stock items: %w", err)
	}
	return items, nil
}

// Adjust applies a signed delta and records the adjustment. Comes back
// false without touching anything when the delta would drive the
// level negative.
func (r *stockRepository) Adjust(ctx context.Context, adj *model.StockAdjustment) (bool, error) {
	query := `
		UPDATE stock_items
		SET current_stock = current_stock + $1, updated_at = NOW()
		WHERE id = $2 AND current_stock + $1 >= 0 AND deleted_at IS NULL
	`
	result, err := r.q.ExecContext(ctx, query, adj.Delta, adj.StockItemID)
	if err != nil {
		return false, fmt.Errorf("failed to adjust stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	insert := `
		INSERT INTO stock_adjustments (id, stock_item_id, delta, reason, adjusted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	adj.CreatedAt = time.Now().UTC()
	if adj.ID == uuid.Nil {
		adj.ID = uuid.New()
	}
	if _, err := r.q.ExecContext(ctx, insert,
		adj.ID,
		adj.StockItemID,
		adj.Delta,
		adj.Reason,
		adj.AdjustedBy,
		adj.CreatedAt,
	); err != nil {
		return false, fmt.Errorf("failed to record stock adjustment: %w", err)
	}
	return true, nil
}

// Deduct removes qty conditionally on sufficient stock. Dispensing
// runs one Deduct per line inside a transaction, so one short item
// rolls back the whole batch.
func (r *stockRepository) Deduct(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	query := `
		UPDATE stock_items
		SET current_stock = current_stock - $1, updated_at = NOW()
		WHERE id = $2 AND current_stock >= $1 AND is_active = TRUE AND deleted_at IS NULL
	`
	result, err := r.q.ExecContext(ctx, query, qty, id)
	if err != nil {
		return false, fmt.Errorf("failed to deduct stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}
