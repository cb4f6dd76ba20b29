package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

type fakePrescriptions struct {
	repository.PrescriptionRepository
	items map[uuid.UUID][]model.PrescriptionItem
}

func (f *fakePrescriptions) GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]model.PrescriptionItem, error) {
	return f.items[prescriptionID], nil
}

type fakeStock struct {
	repository.StockRepository
	levels   map[uuid.UUID]int
	deducted []uuid.UUID
}

func (f *fakeStock) Deduct(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if f.levels[id] < qty {
		return false, nil
	}
	f.levels[id] -= qty
	f.deducted = append(f.deducted, id)
	return true, nil
}

func dispenseReq(id uuid.UUID) *workflow.Request {
	return &workflow.Request{
		Kind:     workflow.KindPrescription,
		EntityID: id,
		From:     workflow.StatusIssued,
		To:       workflow.StatusDispensed,
		Now:      time.Now().UTC(),
	}
}

func runDispenseGuards(t *workflow.Table, req *workflow.Request) error {
	for _, g := range t.Guards(workflow.StatusIssued, workflow.StatusDispensed) {
		if err := g(context.Background(), nil, req); err != nil {
			return err
		}
	}
	return nil
}

func TestDispenseDeductsLinkedLines(t *testing.T) {
	rxID := uuid.New()
	paracetamol := uuid.New()
	amoxicillin := uuid.New()

	rx := &fakePrescriptions{items: map[uuid.UUID][]model.PrescriptionItem{
		rxID: {
			{MedicationName: "Paracetamol 500mg", StockItemID: &paracetamol, Quantity: 10},
			{MedicationName: "Amoxicillin 250mg", StockItemID: &amoxicillin, Quantity: 15},
			{MedicationName: "Rest and fluids", Quantity: 1}, // free-text line, no stock link
		},
	}}
	stock := &fakeStock{levels: map[uuid.UUID]int{paracetamol: 100, amoxicillin: 20}}

	table := Table(func(q repository.Querier) *repository.TenantStores {
		return &repository.TenantStores{Prescriptions: rx, Stock: stock}
	})

	require.NoError(t, runDispenseGuards(table, dispenseReq(rxID)))
	assert.Equal(t, 90, stock.levels[paracetamol])
	assert.Equal(t, 5, stock.levels[amoxicillin])
	assert.Len(t, stock.deducted, 2, "the free-text line must not touch stock")
}

func TestDispenseFailsOnShortLine(t *testing.T) {
	rxID := uuid.New()
	paracetamol := uuid.New()
	amoxicillin := uuid.New()

	rx := &fakePrescriptions{items: map[uuid.UUID][]model.PrescriptionItem{
		rxID: {
			{MedicationName: "Paracetamol 500mg", StockItemID: &paracetamol, Quantity: 10},
			{MedicationName: "Amoxicillin 250mg", StockItemID: &amoxicillin, Quantity: 15},
		},
	}}
	stock := &fakeStock{levels: map[uuid.UUID]int{paracetamol: 100, amoxicillin: 5}}

	table := Table(func(q repository.Querier) *repository.TenantStores {
		return &repository.TenantStores{Prescriptions: rx, Stock: stock}
	})

	err := runDispenseGuards(table, dispenseReq(rxID))
	var gv *workflow.GuardViolation
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, workflow.ViolationInsufficientStock, gv.Kind)
	assert.Contains(t, gv.Detail, "Amoxicillin")
}

func TestDispenseEmptyPrescription(t *testing.T) {
	table := Table(func(q repository.Querier) *repository.TenantStores {
		return &repository.TenantStores{
			Prescriptions: &fakePrescriptions{items: map[uuid.UUID][]model.PrescriptionItem{}},
			Stock:         &fakeStock{levels: map[uuid.UUID]int{}},
		}
	})
	assert.NoError(t, runDispenseGuards(table, dispenseReq(uuid.New())))
}
