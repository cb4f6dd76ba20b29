package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

// Service manages pharmacy inventory. Dispensing deducts stock inside
// the prescription transition; everything here is catalogue upkeep and
// audited manual corrections.
type Service struct {
	scope   *tenant.Scope
	stores  repository.StoreFactory
	outbox  repository.OutboxRepository
	auditor *audit.Service
}

func NewService(scope *tenant.Scope, stores repository.StoreFactory, outbox repository.OutboxRepository, auditor *audit.Service) *Service {
	return &Service{scope: scope, stores: stores, outbox: outbox, auditor: auditor}
}

func (s *Service) Create(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreateStockItemRequest) (*model.StockItem, error) {
	item := &model.StockItem{
		Base:         model.Base{ID: uuid.New()},
		Name:         strings.TrimSpace(req.Name),
		SKU:          strings.TrimSpace(req.SKU),
		Unit:         strings.TrimSpace(req.Unit),
		CurrentStock: req.CurrentStock,
		ReorderLevel: req.ReorderLevel,
		IsActive:     true,
	}

	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		return s.stores(conn).Stock.Create(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, model.AuditEntityStockItem, item.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"sku": item.SKU, "name": item.Name},
	})
	return item, nil
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.StockItem, error) {
	var item *model.StockItem
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		item, err = s.stores(conn).Stock.Get(ctx, id)
		return err
	})
	return item, err
}

func (s *Service) List(ctx context.Context, h *tenant.Handle, filter *model.StockItemFilter) ([]*model.StockItem, error) {
	var items []*model.StockItem
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		items, err = s.stores(conn).Stock.List(ctx, filter)
		return err
	})
	return items, err
}

// Update applies partial catalogue edits. Raising the reorder level
// can put an item at or under it, so the check runs after the write.
func (s *Service) Update(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.UpdateStockItemRequest) (*model.StockItem, error) {
	var item *model.StockItem
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		var err error
		item, err = st.Stock.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			item.Name = strings.TrimSpace(*req.Name)
		}
		if req.Unit != nil {
			item.Unit = strings.TrimSpace(*req.Unit)
		}
		if req.ReorderLevel != nil {
			item.ReorderLevel = *req.ReorderLevel
		}
		if req.IsActive != nil {
			item.IsActive = *req.IsActive
		}
		if err := st.Stock.Update(ctx, item); err != nil {
			return err
		}
		if item.IsActive && item.BelowReorder() {
			return s.emitBelowReorder(ctx, tx, h.ID, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityStockItem, id, nil)
	return item, nil
}

// Adjust applies a signed manual correction with its reason, keeping
// the adjustment row and the level change atomic.
func (s *Service) Adjust(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.AdjustStockRequest) (*model.StockItem, error) {
	var item *model.StockItem
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)

		ok, err := st.Stock.Adjust(ctx, &model.StockAdjustment{
			StockItemID: id,
			Delta:       req.Delta,
			Reason:      strings.TrimSpace(req.Reason),
			AdjustedBy:  actorID,
		})
		if err != nil {
			return err
		}
		if !ok {
			if _, err := st.Stock.Get(ctx, id); err != nil {
				return err
			}
			return model.ErrInsufficientStock
		}

		item, err = st.Stock.Get(ctx, id)
		if err != nil {
			return err
		}
		if item.IsActive && item.BelowReorder() {
			return s.emitBelowReorder(ctx, tx, h.ID, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityStockItem, id, &audit.LogOptions{
		Metadata: map[string]interface{}{"delta": req.Delta, "reason": req.Reason},
	})
	return item, nil
}

func (s *Service) emitBelowReorder(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, item *model.StockItem) error {
	payload, err := json.Marshal(map[string]interface{}{
		"stock_item_id": item.ID,
		"name":          item.Name,
		"sku":           item.SKU,
		"current_stock": item.CurrentStock,
		"reorder_level": item.ReorderLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to encode restock event: %w", err)
	}
	tid := tenantID
	return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
		TenantID:  &tid,
		EventType: model.EventStockBelowReorder,
		Payload:   payload,
	})
}
