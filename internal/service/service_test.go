package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/internal/document"
	"billdesk/internal/domain"
	"billdesk/internal/notify"
	"billdesk/internal/store"
	"billdesk/internal/store/memory"
	"billdesk/internal/store/sqlstore"
)

var baseTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type recordingMessenger struct {
	mu   sync.Mutex
	sent []domain.OutboundMessage
	err  error
}

func (m *recordingMessenger) Send(_ context.Context, msg domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *recordingMessenger) messages() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboundMessage(nil), m.sent...)
}

type testEnv struct {
	svc        *Service
	store      store.Store
	now        *time.Time
	dispatcher *notify.Dispatcher
	messenger  *recordingMessenger
	logs       *bytes.Buffer
	docDir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.New())
}

func newTestEnvWithStore(t *testing.T, st store.Store) *testEnv {
	t.Helper()
	now := baseTime
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dispatcher := notify.NewDispatcher(logger, nil, 4, time.Second)
	messenger := &recordingMessenger{}
	docDir := t.TempDir()
	svc := New(st, Options{
		Dispatcher: dispatcher,
		Documents:  document.NewRenderer(docDir, nil),
		Messenger:  messenger,
		Logger:     logger,
		Now:        func() time.Time { return now },
		Location:   time.UTC,
	})
	return &testEnv{svc: svc, store: st, now: &now, dispatcher: dispatcher, messenger: messenger, logs: logs, docDir: docDir}
}

// drain waits for queued side effects.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.dispatcher.Close(ctx); err != nil {
		t.Fatalf("drain dispatcher: %v", err)
	}
}

func (e *testEnv) quantity(t *testing.T, name string) decimal.Decimal {
	t.Helper()
	records, err := e.svc.ListInventory(context.Background())
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	for _, rec := range records {
		if rec.ItemName == name {
			return rec.Quantity
		}
	}
	t.Fatalf("inventory record %q not found", name)
	return decimal.Zero
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(name, qty, rate string) domain.SaleLine {
	return domain.SaleLine{ItemName: name, Quantity: d(qty), Rate: d(rate)}
}

func pline(name, qty, rate string) domain.PurchaseLine {
	return domain.PurchaseLine{ItemName: name, Quantity: d(qty), Rate: d(rate)}
}

func (e *testEnv) stock(t *testing.T, lines ...domain.PurchaseLine) domain.Purchase {
	t.Helper()
	purchase, err := e.svc.CreateTrackedPurchase(context.Background(), domain.PurchaseDraft{Items: lines})
	if err != nil {
		t.Fatalf("tracked purchase: %v", err)
	}
	return purchase
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username != "admin" {
		t.Fatalf("expected admin actor, got %+v ok=%t", actor, ok)
	}
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected no actor on bare context")
	}
}

func TestComputeTotals(t *testing.T) {
	cases := []struct {
		name     string
		lines    []domain.SaleLine
		discount string
		subtotal string
		net      string
	}{
		{"discounted", []domain.SaleLine{line("Oil Filter", "2", "50"), line("Labour", "1", "150")}, "10", "250", "225"},
		{"rounds net once", []domain.SaleLine{line("Bolt", "3", "33.333")}, "0", "99.999", "100"},
		{"odd discount", []domain.SaleLine{line("Wash", "1", "10")}, "33.333", "10", "6.67"},
		{"full discount", []domain.SaleLine{line("Wash", "1", "10")}, "100", "10", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			totals := ComputeTotals(tc.lines, d(tc.discount))
			if !totals.Subtotal.Equal(d(tc.subtotal)) {
				t.Fatalf("subtotal: expected %s, got %s", tc.subtotal, totals.Subtotal)
			}
			if !totals.NetTotal.Equal(d(tc.net)) {
				t.Fatalf("net: expected %s, got %s", tc.net, totals.NetTotal)
			}
			if len(totals.Amounts) != len(tc.lines) {
				t.Fatalf("expected %d amounts, got %d", len(tc.lines), len(totals.Amounts))
			}
		})
	}
}

func TestCreateSaleDecrementsInventoryAndNumbersBills(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stock(t, pline("Engine Oil", "5", "300"))

	sale, err := env.svc.CreateSale(ctx, domain.SaleDraft{
		CustomerName: "Asha",
		CarNumber:    "MH12AB1234",
		Items:        []domain.SaleLine{line("Engine Oil", "2", "450"), line("Labour", "1", "200")},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.BillID != "INV-20240315-0001" {
		t.Fatalf("unexpected bill id %s", sale.BillID)
	}
	if !sale.Subtotal.Equal(d("1100")) || !sale.NetTotal.Equal(d("1100")) {
		t.Fatalf("unexpected totals %s / %s", sale.Subtotal, sale.NetTotal)
	}
	if len(sale.Items) != 2 || sale.Items[0].SrNo != 1 || sale.Items[1].SrNo != 2 {
		t.Fatalf("expected two numbered items, got %+v", sale.Items)
	}
	if got := env.quantity(t, "Engine Oil"); !got.Equal(d("3")) {
		t.Fatalf("expected 3 engine oil left, got %s", got)
	}

	next, err := env.svc.CreateSale(ctx, domain.SaleDraft{Items: []domain.SaleLine{line("Labour", "1", "100")}})
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if next.BillID != "INV-20240315-0002" {
		t.Fatalf("expected second bill of the day, got %s", next.BillID)
	}
	preview, err := env.svc.NextBillID(ctx)
	if err != nil || preview != "INV-20240315-0003" {
		t.Fatalf("expected preview 0003, got %s (%v)", preview, err)
	}
}

func TestCreateSaleRejectsInvalidDrafts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	drafts := map[string]domain.SaleDraft{
		"no lines":                            {CustomerName: "Asha"},
		"zero quantity":                       {Items: []domain.SaleLine{line("Oil", "0", "10")}},
		"negative rate":                       {Items: []domain.SaleLine{line("Oil", "1", "-1")}},
		"blank name":                          {Items: []domain.SaleLine{line("   ", "1", "10")}},
		"discount above 100":                  {DiscountPercent: d("101"), Items: []domain.SaleLine{line("Oil", "1", "10")}},
		"negative discount":                   {DiscountPercent: d("-5"), Items: []domain.SaleLine{line("Oil", "1", "10")}},
		"discount over 100 in the 16th place": {DiscountPercent: d("100.0000000000000001"), Items: []domain.SaleLine{line("Oil", "1", "10")}},
		"quantity just below zero":            {Items: []domain.SaleLine{line("Oil", "-0.0000000000000000001", "10")}},
		"rate just below zero":                {Items: []domain.SaleLine{line("Oil", "1", "-0.0000000000000000001")}},
	}
	for name, draft := range drafts {
		if _, err := env.svc.CreateSale(ctx, draft); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	found, err := env.svc.SearchSales(ctx, domain.SearchByBillID, "", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no sales written, got %d", len(found))
	}
}

func TestDecimalBoundsCompareExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateSale(ctx, domain.SaleDraft{DiscountPercent: d("100.0000000000000001"), Items: []domain.SaleLine{line("Oil", "1", "10")}})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if want := "discount_percent must be at most 100"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected %q in %q", want, err.Error())
	}

	sale, err := env.svc.CreateSale(ctx, domain.SaleDraft{DiscountPercent: d("100"), Items: []domain.SaleLine{line("Oil", "0.0000000000000000001", "10")}})
	if err != nil {
		t.Fatalf("bounds are inclusive: %v", err)
	}
	if !sale.NetTotal.IsZero() {
		t.Fatalf("expected zero net at 100%% discount, got %s", sale.NetTotal)
	}

	if _, err := env.svc.AddExpenditure(ctx, domain.ExpenditureDraft{Description: "Tea", Amount: d("-0.0000000000000000001")}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for negative amount, got %v", err)
	}
}

func TestCreateSaleOnSQLiteKeepsHighPrecisionTotals(t *testing.T) {
	st, err := sqlstore.Open(context.Background(), "sqlite", sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "billdesk.db")))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	env := newTestEnvWithStore(t, st)
	ctx := context.Background()

	sale, err := env.svc.CreateSale(ctx, domain.SaleDraft{Items: []domain.SaleLine{
		line("Overhaul", "1", "12345678901234.5678"),
		line("Washer", "3", "0.1"),
	}})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	stored, err := env.svc.GetSale(ctx, sale.BillID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if got := stored.Subtotal.String(); got != "12345678901234.8678" {
		t.Fatalf("expected exact subtotal, got %s", got)
	}
	if got := stored.Items[0].Rate.String(); got != "12345678901234.5678" {
		t.Fatalf("expected exact rate, got %s", got)
	}
}

func TestCreateSaleWithSuppliedBillID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	draft := domain.SaleDraft{BillID: "MANUAL-7", Items: []domain.SaleLine{line("Wash", "1", "150")}}

	sale, err := env.svc.CreateSale(ctx, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sale.BillID != "MANUAL-7" {
		t.Fatalf("expected supplied bill id, got %s", sale.BillID)
	}
	if _, err := env.svc.CreateSale(ctx, draft); !errors.Is(err, store.ErrConsistency) {
		t.Fatalf("expected consistency error on duplicate bill id, got %v", err)
	}
}

func TestCreateSaleWithReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateSale(ctx, domain.SaleDraft{
		CustomerName:   "Ravi",
		MobileNumber:   "9876543210",
		CarNumber:      "KA01XY9999",
		CreateReminder: true,
		Items:          []domain.SaleLine{line("Service", "1", "999")},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	due, err := env.svc.ListDueReminders(ctx)
	if err != nil {
		t.Fatalf("due reminders: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected reminder not yet due, got %d", len(due))
	}

	*env.now = baseTime.AddDate(0, 0, 364)
	due, err = env.svc.ListDueReminders(ctx)
	if err != nil {
		t.Fatalf("due reminders: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected one due reminder, got %d", len(due))
	}
	if !due[0].ServiceDueDate.Equal(baseTime.Add(364 * 24 * time.Hour)) {
		t.Fatalf("unexpected due date %s", due[0].ServiceDueDate)
	}
	if due[0].BillID != "INV-20240315-0001" || due[0].CarNumber != "KA01XY9999" {
		t.Fatalf("reminder fields not copied: %+v", due[0])
	}
}

func TestUpdateSaleReversesThenReapplies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stock(t, pline("Engine Oil", "10", "300"))

	created, err := env.svc.CreateSale(ctx, domain.SaleDraft{
		CustomerName: "Asha",
		Items:        []domain.SaleLine{line("Engine Oil", "3", "450")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := env.quantity(t, "Engine Oil"); !got.Equal(d("7")) {
		t.Fatalf("expected 7 after sale, got %s", got)
	}

	*env.now = baseTime.Add(2 * time.Hour)
	updated, err := env.svc.UpdateSale(ctx, created.BillID, domain.SaleDraft{
		CustomerName:    "Asha K",
		DiscountPercent: d("10"),
		CreateReminder:  true,
		Items:           []domain.SaleLine{line("Engine Oil", "5", "450"), line("Labour", "1", "250")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := env.quantity(t, "Engine Oil"); !got.Equal(d("5")) {
		t.Fatalf("expected 10-5=5 after update, got %s", got)
	}
	if !updated.Edited || updated.BillID != created.BillID || !updated.DateTime.Equal(created.DateTime) {
		t.Fatalf("update must keep id and timestamp and mark edited: %+v", updated)
	}
	if !updated.Subtotal.Equal(d("2500")) || !updated.NetTotal.Equal(d("2250")) {
		t.Fatalf("unexpected totals %s / %s", updated.Subtotal, updated.NetTotal)
	}

	stored, err := env.svc.GetSale(ctx, created.BillID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Items) != 2 || stored.CustomerName != "Asha K" {
		t.Fatalf("stored sale not rewritten: %+v", stored)
	}

	*env.now = baseTime.AddDate(2, 0, 0)
	due, err := env.svc.ListDueReminders(ctx)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("update must not create reminders, got %d", len(due))
	}
}

func TestUpdateSaleErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	draft := domain.SaleDraft{Items: []domain.SaleLine{line("Wash", "1", "100")}}

	if _, err := env.svc.UpdateSale(ctx, "INV-19990101-0001", draft); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	created, err := env.svc.CreateSale(ctx, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	draft.BillID = "OTHER"
	if _, err := env.svc.UpdateSale(ctx, created.BillID, draft); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for changed bill id, got %v", err)
	}
}

// Deleting a sale does not return its stock.
func TestDeleteSaleKeepsInventoryDecremented(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stock(t, pline("Brake Pad", "5", "800"))

	sale, err := env.svc.CreateSale(ctx, domain.SaleDraft{Items: []domain.SaleLine{line("Brake Pad", "2", "1200")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.svc.DeleteSale(ctx, sale.BillID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.GetSale(ctx, sale.BillID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sale gone, got %v", err)
	}
	items, err := env.store.ListSaleItems(ctx, sale.BillID)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected items removed, got %d (%v)", len(items), err)
	}
	if got := env.quantity(t, "Brake Pad"); !got.Equal(d("3")) {
		t.Fatalf("expected inventory to stay at 3, got %s", got)
	}
	if err := env.svc.DeleteSale(ctx, sale.BillID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestSearchSales(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i, name := range []string{"Asha Kulkarni", "Ravi", "asha"} {
		*env.now = baseTime.Add(time.Duration(i) * time.Minute)
		_, err := env.svc.CreateSale(ctx, domain.SaleDraft{
			CustomerName: name,
			MobileNumber: fmt.Sprintf("98000000%02d", i),
			Items:        []domain.SaleLine{line("Wash", "1", "100")},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	found, err := env.svc.SearchSales(ctx, domain.SearchByCustomerName, "ASHA", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 || found[0].CustomerName != "asha" {
		t.Fatalf("expected two matches newest first, got %+v", found)
	}
	found, err = env.svc.SearchSales(ctx, domain.SearchByMobileNumber, "0001", 0)
	if err != nil || len(found) != 1 || found[0].CustomerName != "Ravi" {
		t.Fatalf("expected Ravi by mobile, got %+v (%v)", found, err)
	}
	if _, err := env.svc.SearchSales(ctx, domain.SaleSearchField("address"), "x", 0); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestBillDocumentUsesProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.SaveBusinessProfile(ctx, domain.BusinessProfile{Name: "Sharma Motors", CountryCode: "+91"}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	sale, err := env.svc.CreateSale(ctx, domain.SaleDraft{CustomerName: "Asha", Items: []domain.SaleLine{line("Wash", "2", "75")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := env.svc.BillDocument(ctx, sale.BillID)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if doc.Business.Name != "Sharma Motors" || len(doc.Lines) != 1 || !doc.NetTotal.Equal(d("150")) {
		t.Fatalf("unexpected document %+v", doc)
	}
}
