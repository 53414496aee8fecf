// Package reporting computes sales, purchase and expense totals over calendar
// windows. Results may be served from the report cache.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"billdesk/internal/cache"
	"billdesk/internal/domain"
	"billdesk/internal/store"
)

type Options struct {
	Cache    cache.ReportCache
	TTL      time.Duration
	Now      func() time.Time
	Location *time.Location
	Logger   *slog.Logger
}

type Aggregator struct {
	queries  store.Queries
	cache    cache.ReportCache
	ttl      time.Duration
	clock    func() time.Time
	location *time.Location
	logger   *slog.Logger
}

func New(queries store.Queries, opts Options) *Aggregator {
	a := &Aggregator{
		queries:  queries,
		cache:    opts.Cache,
		ttl:      opts.TTL,
		clock:    opts.Now,
		location: opts.Location,
		logger:   opts.Logger,
	}
	if a.cache == nil {
		a.cache = cache.NoopReportCache{}
	}
	if a.ttl <= 0 {
		a.ttl = 30 * time.Second
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.location == nil {
		a.location = time.Local
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Window returns the range covered by period as of now. The end is one second
// past now so rows stamped in the current second are included.
func Window(period domain.Period, now time.Time, loc *time.Location) (store.Range, error) {
	now = now.Truncate(time.Second)
	local := now.In(loc)
	end := now.Add(time.Second).UTC()
	var start time.Time
	switch period {
	case domain.PeriodDay:
		start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	case domain.PeriodMonth:
		start = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	case domain.PeriodYear:
		start = time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
	case domain.PeriodAll:
		return store.Range{To: end}, nil
	default:
		return store.Range{}, fmt.Errorf("%w: unknown period %q", store.ErrValidation, period)
	}
	return store.Range{From: start.UTC(), To: end}, nil
}

func (a *Aggregator) Summarize(ctx context.Context, period domain.Period) (domain.Summary, error) {
	now := a.clock()
	window, err := Window(period, now, a.location)
	if err != nil {
		return domain.Summary{}, err
	}

	key := fmt.Sprintf("summary:%s:%s", period, now.In(a.location).Format("2006-01-02"))
	var cached domain.Summary
	if a.lookup(ctx, key, &cached) {
		return cached, nil
	}

	sales, err := a.queries.SumSales(ctx, window)
	if err != nil {
		return domain.Summary{}, err
	}
	purchases, err := a.queries.SumPurchases(ctx, window)
	if err != nil {
		return domain.Summary{}, err
	}
	expenses, err := a.queries.SumExpenditures(ctx, window)
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{
		Period:    period,
		To:        window.To.Add(-time.Second),
		Sales:     sales.Total.Round(2),
		Purchases: purchases.Total.Round(2),
		Expenses:  expenses.Total.Round(2),
	}
	summary.Profit = sales.Total.Sub(purchases.Total).Sub(expenses.Total).Round(2)
	if !window.From.IsZero() {
		from := window.From
		summary.From = &from
	}
	a.store(ctx, key, summary)
	return summary, nil
}

// Dashboard reports today's activity.
func (a *Aggregator) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	now := a.clock()
	window, err := Window(domain.PeriodDay, now, a.location)
	if err != nil {
		return domain.Dashboard{}, err
	}
	date := now.In(a.location).Format("2006-01-02")
	key := "dashboard:" + date
	var cached domain.Dashboard
	if a.lookup(ctx, key, &cached) {
		return cached, nil
	}

	sales, err := a.queries.SumSales(ctx, window)
	if err != nil {
		return domain.Dashboard{}, err
	}
	lines, err := a.queries.ListPurchaseLines(ctx, window, 1000)
	if err != nil {
		return domain.Dashboard{}, err
	}
	expenses, err := a.queries.ListExpenditures(ctx, window)
	if err != nil {
		return domain.Dashboard{}, err
	}

	dash := domain.Dashboard{
		Date:          date,
		SaleCount:     sales.Count,
		Revenue:       sales.Total.Round(2),
		PurchaseLines: lines,
		Expenditures:  expenses,
	}
	a.store(ctx, key, dash)
	return dash, nil
}

func (a *Aggregator) lookup(ctx context.Context, key string, dest any) bool {
	hit, err := a.cache.Get(ctx, key, dest)
	if err != nil {
		a.logger.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return hit
}

func (a *Aggregator) store(ctx context.Context, key string, value any) {
	if err := a.cache.Set(ctx, key, value, a.ttl); err != nil {
		a.logger.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
