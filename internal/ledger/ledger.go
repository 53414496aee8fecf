// Package ledger owns every change to on-hand inventory quantities.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"billdesk/internal/domain"
	"billdesk/internal/store"
)

type Movement struct {
	ItemName  string
	Delta     decimal.Decimal
	Source    domain.MovementSource
	Reference string
}

type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{now: now}
}

// NormalizeKey maps an item name to its inventory key: surrounding and
// repeated whitespace removed, case folded.
func NormalizeKey(name string) string {
	return cases.Fold().String(DisplayName(name))
}

func DisplayName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Apply adds mv.Delta to the record matching mv.ItemName inside tx and writes
// a movement row. A missing record is created only for positive stock-in from
// tracked purchases or a renamed purchase line; for every other source it
// means the item is not inventoried and Apply reports false without error.
func (l *Ledger) Apply(ctx context.Context, tx store.Tx, mv Movement) (bool, error) {
	key := NormalizeKey(mv.ItemName)
	if key == "" || mv.Delta.IsZero() {
		return false, nil
	}
	at := l.now()

	var qtyAfter decimal.Decimal
	rec, err := tx.GetInventoryByKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !createsRecord(mv.Source) || !mv.Delta.IsPositive() {
			return false, nil
		}
		qtyAfter = mv.Delta
		_, err := tx.InsertInventory(ctx, domain.InventoryRecord{
			ItemName:    DisplayName(mv.ItemName),
			ItemKey:     key,
			Quantity:    qtyAfter,
			LastUpdated: at,
		})
		if err != nil {
			return false, fmt.Errorf("ledger: create %q: %w", key, err)
		}
	case err != nil:
		return false, fmt.Errorf("ledger: load %q: %w", key, err)
	default:
		qtyAfter = rec.Quantity.Add(mv.Delta)
		if err := tx.UpdateInventoryQuantity(ctx, rec.ID, qtyAfter, at); err != nil {
			return false, fmt.Errorf("ledger: adjust %q: %w", key, err)
		}
	}

	err = tx.InsertMovement(ctx, domain.InventoryMovement{
		ItemKey:       key,
		Delta:         mv.Delta,
		QuantityAfter: qtyAfter,
		Source:        mv.Source,
		Reference:     mv.Reference,
		CreatedAt:     at,
	})
	if err != nil {
		return false, fmt.Errorf("ledger: journal %q: %w", key, err)
	}
	return true, nil
}

func createsRecord(source domain.MovementSource) bool {
	return source == domain.SourcePurchase || source == domain.SourcePurchaseRename
}
