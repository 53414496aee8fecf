package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/internal/domain"
)

func (q *queries) GetInventoryByKey(ctx context.Context, key string) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := q.get(ctx, &rec, `SELECT id, item_name, item_key, quantity, last_updated FROM inventory WHERE item_key = ?`, key)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get inventory %q", key), err)
	}
	return &rec, nil
}

func (q *queries) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	records := make([]domain.InventoryRecord, 0)
	err := q.selectAll(ctx, &records, `SELECT id, item_name, item_key, quantity, last_updated FROM inventory ORDER BY item_key`)
	if err != nil {
		return nil, wrapErr("list inventory", err)
	}
	return records, nil
}

func (q *queries) ListMovements(ctx context.Context, key string, limit int) ([]domain.InventoryMovement, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, item_key, delta, quantity_after, source, reference, created_at FROM inventory_movements`
	args := []any{}
	if key != "" {
		query += ` WHERE item_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	movements := make([]domain.InventoryMovement, 0)
	if err := q.selectAll(ctx, &movements, query, args...); err != nil {
		return nil, wrapErr("list inventory movements", err)
	}
	return movements, nil
}

func (q *queries) InsertInventory(ctx context.Context, rec domain.InventoryRecord) (int64, error) {
	return q.insertReturningID(ctx, "insert inventory", `
		INSERT INTO inventory (item_name, item_key, quantity, last_updated)
		VALUES (?, ?, ?, ?)`,
		rec.ItemName, rec.ItemKey, rec.Quantity, dbTime(rec.LastUpdated),
	)
}

func (q *queries) UpdateInventoryQuantity(ctx context.Context, id int64, qty decimal.Decimal, at time.Time) error {
	return q.execOne(ctx, "update inventory", "inventory item", id,
		`UPDATE inventory SET quantity = ?, last_updated = ? WHERE id = ?`, qty, dbTime(at), id)
}

func (q *queries) DeleteInventory(ctx context.Context, id int64) error {
	return q.execOne(ctx, "delete inventory", "inventory item", id, `DELETE FROM inventory WHERE id = ?`, id)
}

func (q *queries) InsertMovement(ctx context.Context, mv domain.InventoryMovement) error {
	_, err := q.exec(ctx, `
		INSERT INTO inventory_movements (item_key, delta, quantity_after, source, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mv.ItemKey, mv.Delta, mv.QuantityAfter, string(mv.Source), mv.Reference, dbTime(mv.CreatedAt),
	)
	return wrapErr("insert inventory movement", err)
}
