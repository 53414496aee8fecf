package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"billdesk/internal/domain"
	"billdesk/internal/store"
)

const saleColumns = `bill_id, date_time, customer_name, mobile_number, car_number, car_model, car_km,
	subtotal, discount_percent, net_total, paid, is_edited`

const saleItemColumns = `id, bill_id, sr_no, item_name, quantity, rate, amount`

var searchColumns = map[domain.SaleSearchField]string{
	domain.SearchByBillID:       "bill_id",
	domain.SearchByCustomerName: "customer_name",
	domain.SearchByCarNumber:    "car_number",
	domain.SearchByMobileNumber: "mobile_number",
}

func (q *queries) GetSale(ctx context.Context, billID string) (*domain.Sale, error) {
	var sale domain.Sale
	if err := q.get(ctx, &sale, `SELECT `+saleColumns+` FROM sales WHERE bill_id = ?`, billID); err != nil {
		return nil, wrapErr(fmt.Sprintf("get sale %s", billID), err)
	}
	items, err := q.ListSaleItems(ctx, billID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (q *queries) ListSaleItems(ctx context.Context, billID string) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0)
	err := q.selectAll(ctx, &items, `SELECT `+saleItemColumns+` FROM sale_items WHERE bill_id = ? ORDER BY sr_no, id`, billID)
	if err != nil {
		return nil, wrapErr("list sale items", err)
	}
	return items, nil
}

func (q *queries) SearchSales(ctx context.Context, field domain.SaleSearchField, term string, limit int) ([]domain.Sale, error) {
	column, ok := searchColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown search field %q", store.ErrValidation, field)
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	sales := make([]domain.Sale, 0)
	err := q.selectAll(ctx, &sales, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE LOWER(`+column+`) LIKE ? ESCAPE '\'
		ORDER BY date_time DESC, bill_id DESC
		LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, wrapErr("search sales", err)
	}
	return sales, nil
}

func (q *queries) ListBillIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	ids := make([]string, 0)
	err := q.selectAll(ctx, &ids, `SELECT bill_id FROM sales WHERE bill_id LIKE ? ESCAPE '\' ORDER BY bill_id`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, wrapErr("list bill ids", err)
	}
	return ids, nil
}

func (q *queries) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := q.exec(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.BillID, dbTime(sale.DateTime), sale.CustomerName, sale.MobileNumber, sale.CarNumber, sale.CarModel, sale.CarKM,
		sale.Subtotal, sale.DiscountPercent, sale.NetTotal, sale.Paid, sale.Edited,
	)
	return wrapErr(fmt.Sprintf("insert sale %s", sale.BillID), err)
}

func (q *queries) UpdateSale(ctx context.Context, sale domain.Sale) error {
	return q.execOne(ctx, "update sale", "sale", sale.BillID, `
		UPDATE sales
		SET customer_name = ?, mobile_number = ?, car_number = ?, car_model = ?, car_km = ?,
			subtotal = ?, discount_percent = ?, net_total = ?, paid = ?, is_edited = ?
		WHERE bill_id = ?`,
		sale.CustomerName, sale.MobileNumber, sale.CarNumber, sale.CarModel, sale.CarKM,
		sale.Subtotal, sale.DiscountPercent, sale.NetTotal, sale.Paid, sale.Edited,
		sale.BillID,
	)
}

// DeleteSale removes the sale and its items. Items are deleted explicitly so
// the cascade does not depend on the foreign_keys pragma.
func (q *queries) DeleteSale(ctx context.Context, billID string) error {
	if err := q.DeleteSaleItems(ctx, billID); err != nil {
		return err
	}
	return q.execOne(ctx, "delete sale", "sale", billID, `DELETE FROM sales WHERE bill_id = ?`, billID)
}

func (q *queries) InsertSaleItems(ctx context.Context, billID string, items []domain.SaleItem) error {
	for _, item := range items {
		_, err := q.exec(ctx, `
			INSERT INTO sale_items (bill_id, sr_no, item_name, quantity, rate, amount)
			VALUES (?, ?, ?, ?, ?, ?)`,
			billID, item.SrNo, item.ItemName, item.Quantity, item.Rate, item.Amount,
		)
		if err != nil {
			return wrapErr(fmt.Sprintf("insert sale item %d", item.SrNo), err)
		}
	}
	return nil
}

func (q *queries) DeleteSaleItems(ctx context.Context, billID string) error {
	_, err := q.exec(ctx, `DELETE FROM sale_items WHERE bill_id = ?`, billID)
	return wrapErr("delete sale items", err)
}
