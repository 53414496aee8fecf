package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"billdesk/internal/domain"
	"billdesk/internal/store"
	"billdesk/internal/store/memory"
)

func TestGeneralPurchaseNeverTouchesInventory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	purchase, err := env.svc.CreateGeneralPurchase(ctx, domain.PurchaseDraft{Items: []domain.PurchaseLine{
		pline("Printer Paper", "2", "250"),
		pline("Cleaning Liquid", "1", "120"),
	}})
	if err != nil {
		t.Fatalf("general purchase: %v", err)
	}
	if purchase.Tracked || purchase.Category != domain.CategoryGeneral {
		t.Fatalf("expected general purchase, got %+v", purchase)
	}
	if !purchase.TotalAmount.Equal(d("620")) {
		t.Fatalf("expected total 620, got %s", purchase.TotalAmount)
	}
	records, err := env.svc.ListInventory(ctx)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected no inventory records, got %d (%v)", len(records), err)
	}
	moves, err := env.svc.ListMovements(ctx, "", 0)
	if err != nil || len(moves) != 0 {
		t.Fatalf("expected no movements, got %d (%v)", len(moves), err)
	}
}

func TestTrackedPurchaseEditDeleteConsistency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	purchase := env.stock(t, pline("Oil Filter", "5", "120"), pline("Air Filter", "2", "300"))
	if !purchase.Tracked || purchase.Category != domain.CategoryTracked {
		t.Fatalf("expected tracked purchase, got %+v", purchase)
	}
	if got := env.quantity(t, "Oil Filter"); !got.Equal(d("5")) {
		t.Fatalf("expected 5 after purchase, got %s", got)
	}

	item := purchase.Items[0]
	edited, err := env.svc.EditPurchaseItem(ctx, item.ID, pline("Oil Filter", "8", "110"))
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.Amount.Equal(d("880")) {
		t.Fatalf("expected amount 880, got %s", edited.Amount)
	}
	if got := env.quantity(t, "Oil Filter"); !got.Equal(d("8")) {
		t.Fatalf("expected 8 after edit, got %s", got)
	}
	stored, err := env.store.GetPurchase(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if !stored.TotalAmount.Equal(d("1480")) {
		t.Fatalf("expected reconciled total 880+600, got %s", stored.TotalAmount)
	}

	if err := env.svc.DeletePurchaseItem(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := env.quantity(t, "Oil Filter"); !got.IsZero() {
		t.Fatalf("expected 0 after delete, got %s", got)
	}
	if err := env.svc.DeletePurchaseItem(ctx, purchase.Items[1].ID); err != nil {
		t.Fatalf("delete second: %v", err)
	}
	stored, err = env.store.GetPurchase(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if !stored.TotalAmount.IsZero() {
		t.Fatalf("expected total 0 with no items left, got %s", stored.TotalAmount)
	}

	moves, err := env.svc.ListMovements(ctx, "oil filter", 0)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(moves) != 3 {
		t.Fatalf("expected purchase, edit and delete movements, got %d", len(moves))
	}
	if moves[0].Source != domain.SourcePurchaseDelete || !moves[0].QuantityAfter.IsZero() {
		t.Fatalf("unexpected latest movement %+v", moves[0])
	}
	if moves[1].Source != domain.SourcePurchaseEdit || !moves[1].Delta.Equal(d("3")) {
		t.Fatalf("unexpected edit movement %+v", moves[1])
	}
}

func TestEditPurchaseItemRenameMovesStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	purchase := env.stock(t, pline("Oil", "5", "100"))

	if _, err := env.svc.EditPurchaseItem(ctx, purchase.Items[0].ID, pline("Engine Oil", "4", "100")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := env.quantity(t, "Oil"); !got.IsZero() {
		t.Fatalf("expected old item emptied, got %s", got)
	}
	if got := env.quantity(t, "Engine Oil"); !got.Equal(d("4")) {
		t.Fatalf("expected new item at 4, got %s", got)
	}
}

func TestEditPurchaseItemOnGeneralLeavesInventory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stock(t, pline("Coolant", "3", "200"))
	general, err := env.svc.CreateGeneralPurchase(ctx, domain.PurchaseDraft{Items: []domain.PurchaseLine{pline("Coolant", "1", "200")}})
	if err != nil {
		t.Fatalf("general: %v", err)
	}

	if _, err := env.svc.EditPurchaseItem(ctx, general.Items[0].ID, pline("Coolant", "10", "200")); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := env.svc.DeletePurchaseItem(ctx, general.Items[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := env.quantity(t, "Coolant"); !got.Equal(d("3")) {
		t.Fatalf("general lines must not move stock, got %s", got)
	}
}

func TestPurchaseValidationAndMissingItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bad := []domain.PurchaseDraft{
		{},
		{Items: []domain.PurchaseLine{pline("", "1", "1")}},
		{Items: []domain.PurchaseLine{pline("Oil", "0", "1")}},
		{Items: []domain.PurchaseLine{pline("Oil", "1", "-2")}},
	}
	for i, draft := range bad {
		if _, err := env.svc.CreateTrackedPurchase(ctx, draft); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("draft %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := env.svc.EditPurchaseItem(ctx, 404, pline("Oil", "1", "1")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on edit, got %v", err)
	}
	if err := env.svc.DeletePurchaseItem(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestInventoryKeysIgnoreCaseAndSpacing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stock(t, pline("  Engine   OIL ", "6", "300"))

	if _, err := env.svc.CreateSale(ctx, domain.SaleDraft{Items: []domain.SaleLine{line("engine oil", "2", "450")}}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	records, err := env.svc.ListInventory(ctx)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(records) != 1 || records[0].ItemName != "Engine OIL" || !records[0].Quantity.Equal(d("4")) {
		t.Fatalf("expected one normalized record at 4, got %+v", records)
	}

	if err := env.svc.DeleteInventoryRecord(ctx, records[0].ID); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if err := env.svc.DeleteInventoryRecord(ctx, records[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEditPurchaseItemAfterRecordDeletedLeavesInventoryEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	purchase := env.stock(t, pline("Engine Oil", "5", "300"))

	records, err := env.svc.ListInventory(ctx)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if err := env.svc.DeleteInventoryRecord(ctx, records[0].ID); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, err := env.svc.EditPurchaseItem(ctx, purchase.Items[0].ID, pline("Engine Oil", "8", "300")); err != nil {
		t.Fatalf("edit: %v", err)
	}

	records, err = env.svc.ListInventory(ctx)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no record after editing a deleted item, got %+v", records)
	}
}

func TestListPurchaseLinesForDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stock(t, pline("Oil", "1", "100"))
	*env.now = baseTime.AddDate(0, 0, 1)
	env.stock(t, pline("Wiper", "2", "150"))

	lines, err := env.svc.ListPurchaseLines(ctx, baseTime)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 1 || lines[0].ItemName != "Oil" || !lines[0].DateTime.Equal(baseTime) {
		t.Fatalf("expected only the first day's line, got %+v", lines)
	}
}

type faultyStore struct {
	*memory.Store
	failMovements bool
}

func (f *faultyStore) WithTx(ctx context.Context, fn store.TxFunc) error {
	return f.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, failMovements: f.failMovements})
	})
}

type faultyTx struct {
	store.Tx
	failMovements bool
}

func (f *faultyTx) InsertMovement(ctx context.Context, mv domain.InventoryMovement) error {
	if f.failMovements {
		return fmt.Errorf("%w: insert movement: disk I/O error", store.ErrStorage)
	}
	return f.Tx.InsertMovement(ctx, mv)
}

func TestStorageFailureRollsBackInventory(t *testing.T) {
	faulty := &faultyStore{Store: memory.New()}
	env := newTestEnvWithStore(t, faulty)
	ctx := context.Background()
	env.stock(t, pline("Engine Oil", "5", "300"))

	faulty.failMovements = true
	_, err := env.svc.CreateSale(ctx, domain.SaleDraft{Items: []domain.SaleLine{
		line("Labour", "1", "200"),
		line("Engine Oil", "2", "450"),
	}})
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if got := env.quantity(t, "Engine Oil"); !got.Equal(d("5")) {
		t.Fatalf("expected inventory untouched at 5, got %s", got)
	}
	if _, err := env.svc.GetSale(ctx, "INV-20240315-0001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no sale persisted, got %v", err)
	}

	_, err = env.svc.EditPurchaseItem(ctx, 1, pline("Engine Oil", "9", "300"))
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected storage error on edit, got %v", err)
	}
	item, err := env.store.GetPurchaseItem(ctx, 1)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.Quantity.Equal(d("5")) {
		t.Fatalf("expected purchase line unchanged, got %s", item.Quantity)
	}
}
