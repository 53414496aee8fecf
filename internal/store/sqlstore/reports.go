package sqlstore

import (
	"context"

	"github.com/shopspring/decimal"

	"billdesk/internal/store"
)

func (q *queries) SumSales(ctx context.Context, window store.Range) (store.Aggregate, error) {
	return q.sum(ctx, "sum sales", "sales", "net_total", window)
}

func (q *queries) SumPurchases(ctx context.Context, window store.Range) (store.Aggregate, error) {
	return q.sum(ctx, "sum purchases", "purchases", "total_amount", window)
}

func (q *queries) SumExpenditures(ctx context.Context, window store.Range) (store.Aggregate, error) {
	return q.sum(ctx, "sum expenditures", "expenditures", "amount", window)
}

// sum counts rows of table inside window and totals column. Table and column
// names are fixed by the callers above. Totals are added in Go so SQLite's
// text-stored decimals never pass through floating point.
func (q *queries) sum(ctx context.Context, op string, table string, column string, window store.Range) (store.Aggregate, error) {
	clause, args := rangeClause("date_time", window)
	var values []decimal.Decimal
	err := q.selectAll(ctx, &values, `SELECT `+column+` FROM `+table+` WHERE `+clause, args...)
	if err != nil {
		return store.Aggregate{Total: decimal.Zero}, wrapErr(op, err)
	}
	agg := store.Aggregate{Count: len(values), Total: decimal.Zero}
	for _, v := range values {
		agg.Total = agg.Total.Add(v)
	}
	return agg, nil
}
