package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"billdesk/internal/cache"
	"billdesk/internal/domain"
	"billdesk/internal/store"
	"billdesk/internal/store/memory"
)

var fixedNow = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T, st *memory.Store) {
	t.Helper()
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		sales := []domain.Sale{
			{BillID: "INV-20240315-0001", DateTime: fixedNow.Add(-2 * time.Hour), NetTotal: dec("100")},
			{BillID: "INV-20240310-0001", DateTime: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), NetTotal: dec("70")},
			{BillID: "INV-20240105-0001", DateTime: time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), NetTotal: dec("30")},
			{BillID: "INV-20231220-0001", DateTime: time.Date(2023, 12, 20, 9, 0, 0, 0, time.UTC), NetTotal: dec("500")},
		}
		for _, sale := range sales {
			if err := tx.InsertSale(ctx, sale); err != nil {
				return err
			}
		}
		id, err := tx.InsertPurchase(ctx, domain.Purchase{DateTime: fixedNow.Add(-time.Hour), TotalAmount: dec("40"), Category: domain.CategoryGeneral})
		if err != nil {
			return err
		}
		err = tx.InsertPurchaseItems(ctx, id, []domain.PurchaseItem{{SrNo: 1, ItemName: "Coolant", Quantity: dec("2"), Rate: dec("20"), Amount: dec("40"), Category: domain.CategoryGeneral}})
		if err != nil {
			return err
		}
		if _, err := tx.InsertPurchase(ctx, domain.Purchase{DateTime: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), TotalAmount: dec("25")}); err != nil {
			return err
		}
		if _, err := tx.InsertExpenditure(ctx, domain.Expenditure{DateTime: fixedNow.Add(-30 * time.Minute), SrNoDaily: 1, Description: "Tea", Amount: dec("10")}); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)
}

func newAggregator(st store.Queries, c cache.ReportCache) *Aggregator {
	return New(st, Options{
		Cache:    c,
		Now:      func() time.Time { return fixedNow },
		Location: time.UTC,
	})
}

func TestSummarizeDay(t *testing.T) {
	st := memory.New()
	seed(t, st)

	summary, err := newAggregator(st, nil).Summarize(context.Background(), domain.PeriodDay)
	require.NoError(t, err)
	require.True(t, summary.Sales.Equal(dec("100")), summary.Sales.String())
	require.True(t, summary.Purchases.Equal(dec("40")))
	require.True(t, summary.Expenses.Equal(dec("10")))
	require.True(t, summary.Profit.Equal(dec("50")))
	require.NotNil(t, summary.From)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *summary.From)
}

func TestSummarizeWiderWindows(t *testing.T) {
	st := memory.New()
	seed(t, st)
	agg := newAggregator(st, nil)

	month, err := agg.Summarize(context.Background(), domain.PeriodMonth)
	require.NoError(t, err)
	require.True(t, month.Sales.Equal(dec("170")))
	require.True(t, month.Purchases.Equal(dec("40")))

	year, err := agg.Summarize(context.Background(), domain.PeriodYear)
	require.NoError(t, err)
	require.True(t, year.Sales.Equal(dec("200")))
	require.True(t, year.Purchases.Equal(dec("65")))
	require.True(t, year.Profit.Equal(dec("125")))

	all, err := agg.Summarize(context.Background(), domain.PeriodAll)
	require.NoError(t, err)
	require.Nil(t, all.From)
	require.True(t, all.Sales.Equal(dec("700")))
}

func TestSummarizeEmptyStoreIsZero(t *testing.T) {
	summary, err := newAggregator(memory.New(), nil).Summarize(context.Background(), domain.PeriodDay)
	require.NoError(t, err)
	require.True(t, summary.Sales.IsZero())
	require.True(t, summary.Profit.IsZero())
}

func TestSummarizeRejectsUnknownPeriod(t *testing.T) {
	_, err := newAggregator(memory.New(), nil).Summarize(context.Background(), domain.Period("week"))
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestWindowIncludesCurrentSecond(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 0, 0, 500, time.UTC)
	window, err := Window(domain.PeriodDay, now, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 15, 14, 0, 1, 0, time.UTC), window.To)

	kolkata := time.FixedZone("IST", 5*3600+1800)
	window, err = Window(domain.PeriodDay, time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC), kolkata)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC), window.From)
}

func TestSummarizeServesFromCacheUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := cache.NewRedisReportCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	st := memory.New()
	seed(t, st)
	agg := newAggregator(st, rc)
	ctx := context.Background()

	first, err := agg.Summarize(ctx, domain.PeriodDay)
	require.NoError(t, err)
	require.True(t, first.Sales.Equal(dec("100")))

	require.NoError(t, st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{BillID: "INV-20240315-0002", DateTime: fixedNow, NetTotal: dec("20")})
	}))

	cached, err := agg.Summarize(ctx, domain.PeriodDay)
	require.NoError(t, err)
	require.True(t, cached.Sales.Equal(dec("100")))

	require.NoError(t, rc.Invalidate(ctx))
	fresh, err := agg.Summarize(ctx, domain.PeriodDay)
	require.NoError(t, err)
	require.True(t, fresh.Sales.Equal(dec("120")))
}

func TestDashboard(t *testing.T) {
	st := memory.New()
	seed(t, st)

	dash, err := newAggregator(st, nil).Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024-03-15", dash.Date)
	require.Equal(t, 1, dash.SaleCount)
	require.True(t, dash.Revenue.Equal(dec("100")))
	require.Len(t, dash.PurchaseLines, 1)
	require.Equal(t, "Coolant", dash.PurchaseLines[0].ItemName)
	require.Len(t, dash.Expenditures, 1)
}
