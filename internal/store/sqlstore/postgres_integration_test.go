package sqlstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"billdesk/internal/domain"
	"billdesk/internal/ledger"
	"billdesk/internal/store"
)

func TestPostgresSaleRollbackKeepsInventory(t *testing.T) {
	databaseURL := os.Getenv("BILLDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BILLDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := Open(ctx, "postgres", databaseURL)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	itemName := fmt.Sprintf("IT Oil %d", stamp)
	key := ledger.NormalizeKey(itemName)
	billID := fmt.Sprintf("INV-IT-%d", stamp)
	l := ledger.New(nil)

	t.Cleanup(func() {
		_, _ = s.DB().ExecContext(ctx, `DELETE FROM sales WHERE bill_id = $1`, billID)
		_, _ = s.DB().ExecContext(ctx, `DELETE FROM inventory_movements WHERE item_key = $1`, key)
		_, _ = s.DB().ExecContext(ctx, `DELETE FROM inventory WHERE item_key = $1`, key)
	})

	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := l.Apply(ctx, tx, ledger.Movement{ItemName: itemName, Delta: dec("10"), Source: domain.SourcePurchase, Reference: "it"})
		return err
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertSale(ctx, domain.Sale{BillID: billID, DateTime: time.Now(), NetTotal: dec("90"), Subtotal: dec("90")}); err != nil {
			return err
		}
		if err := tx.InsertSaleItems(ctx, billID, []domain.SaleItem{{SrNo: 1, ItemName: itemName, Quantity: dec("2"), Rate: dec("45"), Amount: dec("90")}}); err != nil {
			return err
		}
		if _, err := l.Apply(ctx, tx, ledger.Movement{ItemName: itemName, Delta: dec("-2"), Source: domain.SourceSale, Reference: billID}); err != nil {
			return err
		}
		return fmt.Errorf("%w: injected failure", store.ErrStorage)
	})
	if err == nil {
		t.Fatalf("expected injected failure")
	}

	rec, err := s.GetInventoryByKey(ctx, key)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if !rec.Quantity.Equal(dec("10")) {
		t.Fatalf("expected stock 10 after rollback, got %s", rec.Quantity)
	}
	if _, err := s.GetSale(ctx, billID); err == nil {
		t.Fatalf("expected sale to be rolled back")
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertSale(ctx, domain.Sale{BillID: billID, DateTime: time.Now()}); err != nil {
			return err
		}
		return tx.InsertSale(ctx, domain.Sale{BillID: billID, DateTime: time.Now()})
	})
	if err == nil {
		t.Fatalf("expected duplicate bill id to fail")
	}
}
