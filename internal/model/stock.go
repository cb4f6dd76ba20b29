package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// StockItem is a pharmacy inventory row. Lives in the tenant schema.
type StockItem struct {
	Base
	Name         string `db:"name" json:"name"`
	SKU          string `db:"sku" json:"sku"`
	Unit         string `db:"unit" json:"unit"`
	CurrentStock int    `db:"current_stock" json:"current_stock"`
	ReorderLevel int    `db:"reorder_level" json:"reorder_level"`
	IsActive     bool   `db:"is_active" json:"is_active"`
}

// BelowReorder reports whether the item needs restocking.
func (s *StockItem) BelowReorder() bool {
	return s.CurrentStock <= s.ReorderLevel
}

var (
	ErrStockItemNotFound = errors.New("stock item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSKUTaken          = errors.New("sku already in use")
)

type CreateStockItemRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=255"`
	SKU          string `json:"sku" binding:"required,min=1,max=64"`
	Unit         string `json:"unit" binding:"required,max=32"`
	CurrentStock int    `json:"current_stock" binding:"min=0"`
	ReorderLevel int    `json:"reorder_level" binding:"min=0"`
}

// UpdateStockItemRequest carries partial edits. Stock levels are not
// editable here: dispensing deducts them and manual corrections go
// through an adjustment with a reason.
type UpdateStockItemRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=255"`
	Unit         *string `json:"unit" binding:"omitempty,max=32"`
	ReorderLevel *int    `json:"reorder_level" binding:"omitempty,min=0"`
	IsActive     *bool   `json:"is_active"`
}

type AdjustStockRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required,max=500"`
}

type StockItemFilter struct {
	SearchTerm   string `form:"search"`
	BelowReorder bool   `form:"below_reorder"`
	Pagination
}

// StockAdjustment records a manual stock change for traceability.
type StockAdjustment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StockItemID uuid.UUID `db:"stock_item_id" json:"stock_item_id"`
	Delta       int       `db:"delta" json:"delta"`
	Reason      string    `db:"reason" json:"reason"`
	AdjustedBy  uuid.UUID `db:"adjusted_by" json:"adjusted_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
