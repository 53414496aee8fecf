package sqlstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"billdesk/internal/domain"
	"billdesk/internal/store"
)

const purchaseItemColumns = `id, purchase_id, sr_no, item_name, quantity, rate, amount, category, tracked`

func (q *queries) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	var purchase domain.Purchase
	err := q.get(ctx, &purchase, `SELECT id, date_time, total_amount, tracked, category FROM purchases WHERE id = ?`, id)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get purchase %d", id), err)
	}
	items, err := q.ListPurchaseItems(ctx, id)
	if err != nil {
		return nil, err
	}
	purchase.Items = items
	return &purchase, nil
}

func (q *queries) GetPurchaseItem(ctx context.Context, id int64) (*domain.PurchaseItem, error) {
	var item domain.PurchaseItem
	if err := q.get(ctx, &item, `SELECT `+purchaseItemColumns+` FROM purchase_items WHERE id = ?`, id); err != nil {
		return nil, wrapErr(fmt.Sprintf("get purchase item %d", id), err)
	}
	return &item, nil
}

func (q *queries) ListPurchaseItems(ctx context.Context, purchaseID int64) ([]domain.PurchaseItem, error) {
	items := make([]domain.PurchaseItem, 0)
	err := q.selectAll(ctx, &items, `SELECT `+purchaseItemColumns+` FROM purchase_items WHERE purchase_id = ? ORDER BY sr_no, id`, purchaseID)
	if err != nil {
		return nil, wrapErr("list purchase items", err)
	}
	return items, nil
}

func (q *queries) ListPurchaseLines(ctx context.Context, window store.Range, limit int) ([]domain.PurchaseLineView, error) {
	if limit <= 0 {
		limit = 100
	}
	clause, args := rangeClause("p.date_time", window)
	args = append(args, limit)
	lines := make([]domain.PurchaseLineView, 0)
	err := q.selectAll(ctx, &lines, `
		SELECT pi.id, pi.purchase_id, pi.sr_no, pi.item_name, pi.quantity, pi.rate, pi.amount,
			pi.category, pi.tracked, p.date_time
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE `+clause+`
		ORDER BY p.date_time DESC, pi.id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, wrapErr("list purchase lines", err)
	}
	return lines, nil
}

func (q *queries) InsertPurchase(ctx context.Context, purchase domain.Purchase) (int64, error) {
	return q.insertReturningID(ctx, "insert purchase", `
		INSERT INTO purchases (date_time, total_amount, tracked, category)
		VALUES (?, ?, ?, ?)`,
		dbTime(purchase.DateTime), purchase.TotalAmount, purchase.Tracked, purchase.Category,
	)
}

func (q *queries) InsertPurchaseItems(ctx context.Context, purchaseID int64, items []domain.PurchaseItem) error {
	for _, item := range items {
		_, err := q.exec(ctx, `
			INSERT INTO purchase_items (purchase_id, sr_no, item_name, quantity, rate, amount, category, tracked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			purchaseID, item.SrNo, item.ItemName, item.Quantity, item.Rate, item.Amount, item.Category, item.Tracked,
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("insert purchase item %d", item.SrNo), err)
		}
	}
	return nil
}

func (q *queries) UpdatePurchaseItem(ctx context.Context, item domain.PurchaseItem) error {
	return q.execOne(ctx, "update purchase item", "purchase item", item.ID, `
		UPDATE purchase_items SET item_name = ?, quantity = ?, rate = ?, amount = ? WHERE id = ?`,
		item.ItemName, item.Quantity, item.Rate, item.Amount, item.ID,
	)
}

func (q *queries) DeletePurchaseItem(ctx context.Context, id int64) error {
	return q.execOne(ctx, "delete purchase item", "purchase item", id, `DELETE FROM purchase_items WHERE id = ?`, id)
}

func (q *queries) SetPurchaseTotal(ctx context.Context, purchaseID int64, total decimal.Decimal) error {
	return q.execOne(ctx, "set purchase total", "purchase", purchaseID,
		`UPDATE purchases SET total_amount = ? WHERE id = ?`, total, purchaseID)
}
