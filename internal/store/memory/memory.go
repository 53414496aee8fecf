package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/internal/domain"
	"billdesk/internal/store"
)

// Store keeps everything in process memory. Committed states are never
// mutated: a transaction works on a clone that replaces the current state on
// success, so readers only need the pointer.
type Store struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	state   *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn store.TxFunc) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.view().clone()
	if err := fn(ctx, next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: commit: %w", store.ErrStorage, err)
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) view() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) GetSale(ctx context.Context, billID string) (*domain.Sale, error) {
	return s.view().GetSale(ctx, billID)
}

func (s *Store) ListSaleItems(ctx context.Context, billID string) ([]domain.SaleItem, error) {
	return s.view().ListSaleItems(ctx, billID)
}

func (s *Store) SearchSales(ctx context.Context, field domain.SaleSearchField, term string, limit int) ([]domain.Sale, error) {
	return s.view().SearchSales(ctx, field, term, limit)
}

func (s *Store) ListBillIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return s.view().ListBillIDsWithPrefix(ctx, prefix)
}

func (s *Store) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	return s.view().GetPurchase(ctx, id)
}

func (s *Store) GetPurchaseItem(ctx context.Context, id int64) (*domain.PurchaseItem, error) {
	return s.view().GetPurchaseItem(ctx, id)
}

func (s *Store) ListPurchaseItems(ctx context.Context, purchaseID int64) ([]domain.PurchaseItem, error) {
	return s.view().ListPurchaseItems(ctx, purchaseID)
}

func (s *Store) ListPurchaseLines(ctx context.Context, window store.Range, limit int) ([]domain.PurchaseLineView, error) {
	return s.view().ListPurchaseLines(ctx, window, limit)
}

func (s *Store) GetExpenditure(ctx context.Context, id int64) (*domain.Expenditure, error) {
	return s.view().GetExpenditure(ctx, id)
}

func (s *Store) ListExpenditures(ctx context.Context, window store.Range) ([]domain.Expenditure, error) {
	return s.view().ListExpenditures(ctx, window)
}

func (s *Store) MaxExpenditureSrNo(ctx context.Context, window store.Range) (int, error) {
	return s.view().MaxExpenditureSrNo(ctx, window)
}

func (s *Store) GetInventoryByKey(ctx context.Context, key string) (*domain.InventoryRecord, error) {
	return s.view().GetInventoryByKey(ctx, key)
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	return s.view().ListInventory(ctx)
}

func (s *Store) ListMovements(ctx context.Context, key string, limit int) ([]domain.InventoryMovement, error) {
	return s.view().ListMovements(ctx, key, limit)
}

func (s *Store) GetReminder(ctx context.Context, id int64) (*domain.ServiceReminder, error) {
	return s.view().GetReminder(ctx, id)
}

func (s *Store) ListDueReminders(ctx context.Context, asOf time.Time) ([]domain.ServiceReminder, error) {
	return s.view().ListDueReminders(ctx, asOf)
}

func (s *Store) GetBusinessProfile(ctx context.Context) (*domain.BusinessProfile, error) {
	return s.view().GetBusinessProfile(ctx)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return s.view().ListUsers(ctx)
}

func (s *Store) SumSales(ctx context.Context, window store.Range) (store.Aggregate, error) {
	return s.view().SumSales(ctx, window)
}

func (s *Store) SumPurchases(ctx context.Context, window store.Range) (store.Aggregate, error) {
	return s.view().SumPurchases(ctx, window)
}

func (s *Store) SumExpenditures(ctx context.Context, window store.Range) (store.Aggregate, error) {
	return s.view().SumExpenditures(ctx, window)
}

type sequences struct {
	saleItem     int64
	purchase     int64
	purchaseItem int64
	expenditure  int64
	inventory    int64
	movement     int64
	reminder     int64
}

type state struct {
	sales         map[string]domain.Sale
	saleItems     map[string][]domain.SaleItem
	purchases     map[int64]domain.Purchase
	purchaseItems map[int64]domain.PurchaseItem
	expenditures  map[int64]domain.Expenditure
	inventory     map[int64]domain.InventoryRecord
	movements     []domain.InventoryMovement
	reminders     map[int64]domain.ServiceReminder
	profile       *domain.BusinessProfile
	users         map[string]domain.UserAccount
	seq           sequences
}

var _ store.Tx = (*state)(nil)

func newState() *state {
	return &state{
		sales:         make(map[string]domain.Sale),
		saleItems:     make(map[string][]domain.SaleItem),
		purchases:     make(map[int64]domain.Purchase),
		purchaseItems: make(map[int64]domain.PurchaseItem),
		expenditures:  make(map[int64]domain.Expenditure),
		inventory:     make(map[int64]domain.InventoryRecord),
		reminders:     make(map[int64]domain.ServiceReminder),
		users:         make(map[string]domain.UserAccount),
	}
}

func (st *state) clone() *state {
	next := &state{
		sales:         make(map[string]domain.Sale, len(st.sales)),
		saleItems:     make(map[string][]domain.SaleItem, len(st.saleItems)),
		purchases:     make(map[int64]domain.Purchase, len(st.purchases)),
		purchaseItems: make(map[int64]domain.PurchaseItem, len(st.purchaseItems)),
		expenditures:  make(map[int64]domain.Expenditure, len(st.expenditures)),
		inventory:     make(map[int64]domain.InventoryRecord, len(st.inventory)),
		movements:     slices.Clone(st.movements),
		reminders:     make(map[int64]domain.ServiceReminder, len(st.reminders)),
		users:         make(map[string]domain.UserAccount, len(st.users)),
		seq:           st.seq,
	}
	for k, v := range st.sales {
		next.sales[k] = v
	}
	for k, v := range st.saleItems {
		next.saleItems[k] = slices.Clone(v)
	}
	for k, v := range st.purchases {
		next.purchases[k] = v
	}
	for k, v := range st.purchaseItems {
		next.purchaseItems[k] = v
	}
	for k, v := range st.expenditures {
		next.expenditures[k] = v
	}
	for k, v := range st.inventory {
		next.inventory[k] = v
	}
	for k, v := range st.reminders {
		next.reminders[k] = v
	}
	for k, v := range st.users {
		next.users[k] = v
	}
	if st.profile != nil {
		profile := *st.profile
		next.profile = &profile
	}
	return next
}

func inRange(at time.Time, window store.Range) bool {
	if !window.From.IsZero() && at.Before(window.From) {
		return false
	}
	return at.Before(window.To)
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, store.ErrNotFound)
}

func (st *state) GetSale(_ context.Context, billID string) (*domain.Sale, error) {
	sale, ok := st.sales[billID]
	if !ok {
		return nil, notFound("sale", billID)
	}
	sale.Items = slices.Clone(st.saleItems[billID])
	return &sale, nil
}

func (st *state) ListSaleItems(_ context.Context, billID string) ([]domain.SaleItem, error) {
	return slices.Clone(st.saleItems[billID]), nil
}

func (st *state) SearchSales(_ context.Context, field domain.SaleSearchField, term string, limit int) ([]domain.Sale, error) {
	needle := strings.ToLower(term)
	result := make([]domain.Sale, 0)
	for _, sale := range st.sales {
		var hay string
		switch field {
		case domain.SearchByBillID:
			hay = sale.BillID
		case domain.SearchByCustomerName:
			hay = sale.CustomerName
		case domain.SearchByCarNumber:
			hay = sale.CarNumber
		case domain.SearchByMobileNumber:
			hay = sale.MobileNumber
		default:
			return nil, fmt.Errorf("%w: unknown search field %q", store.ErrValidation, field)
		}
		if strings.Contains(strings.ToLower(hay), needle) {
			result = append(result, sale)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DateTime.Equal(result[j].DateTime) {
			return result[i].BillID > result[j].BillID
		}
		return result[i].DateTime.After(result[j].DateTime)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (st *state) ListBillIDsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	ids := make([]string, 0)
	for id := range st.sales {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (st *state) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := st.sales[sale.BillID]; exists {
		return fmt.Errorf("%w: bill id %s already exists", store.ErrConsistency, sale.BillID)
	}
	sale.Items = nil
	st.sales[sale.BillID] = sale
	return nil
}

func (st *state) UpdateSale(_ context.Context, sale domain.Sale) error {
	if _, exists := st.sales[sale.BillID]; !exists {
		return notFound("sale", sale.BillID)
	}
	sale.Items = nil
	st.sales[sale.BillID] = sale
	return nil
}

func (st *state) DeleteSale(_ context.Context, billID string) error {
	if _, exists := st.sales[billID]; !exists {
		return notFound("sale", billID)
	}
	delete(st.sales, billID)
	delete(st.saleItems, billID)
	return nil
}

func (st *state) InsertSaleItems(_ context.Context, billID string, items []domain.SaleItem) error {
	if _, exists := st.sales[billID]; !exists {
		return fmt.Errorf("%w: sale items reference missing bill %s", store.ErrConsistency, billID)
	}
	for _, item := range items {
		st.seq.saleItem++
		item.ID = st.seq.saleItem
		item.BillID = billID
		st.saleItems[billID] = append(st.saleItems[billID], item)
	}
	return nil
}

func (st *state) DeleteSaleItems(_ context.Context, billID string) error {
	delete(st.saleItems, billID)
	return nil
}

func (st *state) GetPurchase(_ context.Context, id int64) (*domain.Purchase, error) {
	purchase, ok := st.purchases[id]
	if !ok {
		return nil, notFound("purchase", id)
	}
	items, _ := st.ListPurchaseItems(context.Background(), id)
	purchase.Items = items
	return &purchase, nil
}

func (st *state) GetPurchaseItem(_ context.Context, id int64) (*domain.PurchaseItem, error) {
	item, ok := st.purchaseItems[id]
	if !ok {
		return nil, notFound("purchase item", id)
	}
	return &item, nil
}

func (st *state) ListPurchaseItems(_ context.Context, purchaseID int64) ([]domain.PurchaseItem, error) {
	items := make([]domain.PurchaseItem, 0)
	for _, item := range st.purchaseItems {
		if item.PurchaseID == purchaseID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SrNo == items[j].SrNo {
			return items[i].ID < items[j].ID
		}
		return items[i].SrNo < items[j].SrNo
	})
	return items, nil
}

func (st *state) ListPurchaseLines(_ context.Context, window store.Range, limit int) ([]domain.PurchaseLineView, error) {
	lines := make([]domain.PurchaseLineView, 0)
	for _, item := range st.purchaseItems {
		parent, ok := st.purchases[item.PurchaseID]
		if !ok || !inRange(parent.DateTime, window) {
			continue
		}
		lines = append(lines, domain.PurchaseLineView{PurchaseItem: item, DateTime: parent.DateTime})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].DateTime.Equal(lines[j].DateTime) {
			return lines[i].ID > lines[j].ID
		}
		return lines[i].DateTime.After(lines[j].DateTime)
	})
	if limit > 0 && len(lines) > limit {
		lines = lines[:limit]
	}
	return lines, nil
}

func (st *state) InsertPurchase(_ context.Context, purchase domain.Purchase) (int64, error) {
	st.seq.purchase++
	purchase.ID = st.seq.purchase
	purchase.Items = nil
	st.purchases[purchase.ID] = purchase
	return purchase.ID, nil
}

func (st *state) InsertPurchaseItems(_ context.Context, purchaseID int64, items []domain.PurchaseItem) error {
	if _, ok := st.purchases[purchaseID]; !ok {
		return fmt.Errorf("%w: purchase items reference missing purchase %d", store.ErrConsistency, purchaseID)
	}
	for _, item := range items {
		st.seq.purchaseItem++
		item.ID = st.seq.purchaseItem
		item.PurchaseID = purchaseID
		st.purchaseItems[item.ID] = item
	}
	return nil
}

func (st *state) UpdatePurchaseItem(_ context.Context, item domain.PurchaseItem) error {
	existing, ok := st.purchaseItems[item.ID]
	if !ok {
		return notFound("purchase item", item.ID)
	}
	existing.ItemName = item.ItemName
	existing.Quantity = item.Quantity
	existing.Rate = item.Rate
	existing.Amount = item.Amount
	st.purchaseItems[item.ID] = existing
	return nil
}

func (st *state) DeletePurchaseItem(_ context.Context, id int64) error {
	if _, ok := st.purchaseItems[id]; !ok {
		return notFound("purchase item", id)
	}
	delete(st.purchaseItems, id)
	return nil
}

func (st *state) SetPurchaseTotal(_ context.Context, purchaseID int64, total decimal.Decimal) error {
	purchase, ok := st.purchases[purchaseID]
	if !ok {
		return notFound("purchase", purchaseID)
	}
	purchase.TotalAmount = total
	st.purchases[purchaseID] = purchase
	return nil
}

func (st *state) GetExpenditure(_ context.Context, id int64) (*domain.Expenditure, error) {
	exp, ok := st.expenditures[id]
	if !ok {
		return nil, notFound("expenditure", id)
	}
	return &exp, nil
}

func (st *state) ListExpenditures(_ context.Context, window store.Range) ([]domain.Expenditure, error) {
	result := make([]domain.Expenditure, 0)
	for _, exp := range st.expenditures {
		if inRange(exp.DateTime, window) {
			result = append(result, exp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SrNoDaily == result[j].SrNoDaily {
			return result[i].ID < result[j].ID
		}
		return result[i].SrNoDaily < result[j].SrNoDaily
	})
	return result, nil
}

func (st *state) MaxExpenditureSrNo(_ context.Context, window store.Range) (int, error) {
	highest := 0
	for _, exp := range st.expenditures {
		if inRange(exp.DateTime, window) && exp.SrNoDaily > highest {
			highest = exp.SrNoDaily
		}
	}
	return highest, nil
}

func (st *state) InsertExpenditure(_ context.Context, exp domain.Expenditure) (int64, error) {
	st.seq.expenditure++
	exp.ID = st.seq.expenditure
	st.expenditures[exp.ID] = exp
	return exp.ID, nil
}

func (st *state) UpdateExpenditure(_ context.Context, exp domain.Expenditure) error {
	existing, ok := st.expenditures[exp.ID]
	if !ok {
		return notFound("expenditure", exp.ID)
	}
	existing.Description = exp.Description
	existing.Amount = exp.Amount
	st.expenditures[exp.ID] = existing
	return nil
}

func (st *state) DeleteExpenditure(_ context.Context, id int64) error {
	if _, ok := st.expenditures[id]; !ok {
		return notFound("expenditure", id)
	}
	delete(st.expenditures, id)
	return nil
}

func (st *state) GetInventoryByKey(_ context.Context, key string) (*domain.InventoryRecord, error) {
	for _, rec := range st.inventory {
		if rec.ItemKey == key {
			return &rec, nil
		}
	}
	return nil, notFound("inventory item", key)
}

func (st *state) ListInventory(_ context.Context) ([]domain.InventoryRecord, error) {
	result := make([]domain.InventoryRecord, 0, len(st.inventory))
	for _, rec := range st.inventory {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ItemKey < result[j].ItemKey
	})
	return result, nil
}

func (st *state) ListMovements(_ context.Context, key string, limit int) ([]domain.InventoryMovement, error) {
	result := make([]domain.InventoryMovement, 0)
	for i := len(st.movements) - 1; i >= 0; i-- {
		if key != "" && st.movements[i].ItemKey != key {
			continue
		}
		result = append(result, st.movements[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (st *state) InsertInventory(_ context.Context, rec domain.InventoryRecord) (int64, error) {
	for _, existing := range st.inventory {
		if existing.ItemKey == rec.ItemKey {
			return 0, fmt.Errorf("%w: inventory item %q already exists", store.ErrConsistency, rec.ItemKey)
		}
	}
	st.seq.inventory++
	rec.ID = st.seq.inventory
	st.inventory[rec.ID] = rec
	return rec.ID, nil
}

func (st *state) UpdateInventoryQuantity(_ context.Context, id int64, qty decimal.Decimal, at time.Time) error {
	rec, ok := st.inventory[id]
	if !ok {
		return notFound("inventory item", id)
	}
	rec.Quantity = qty
	rec.LastUpdated = at
	st.inventory[id] = rec
	return nil
}

func (st *state) DeleteInventory(_ context.Context, id int64) error {
	if _, ok := st.inventory[id]; !ok {
		return notFound("inventory item", id)
	}
	delete(st.inventory, id)
	return nil
}

func (st *state) InsertMovement(_ context.Context, mv domain.InventoryMovement) error {
	st.seq.movement++
	mv.ID = st.seq.movement
	st.movements = append(st.movements, mv)
	return nil
}

func (st *state) GetReminder(_ context.Context, id int64) (*domain.ServiceReminder, error) {
	reminder, ok := st.reminders[id]
	if !ok {
		return nil, notFound("reminder", id)
	}
	return &reminder, nil
}

func (st *state) ListDueReminders(_ context.Context, asOf time.Time) ([]domain.ServiceReminder, error) {
	result := make([]domain.ServiceReminder, 0)
	for _, reminder := range st.reminders {
		if !reminder.Notified && !reminder.ServiceDueDate.After(asOf) {
			result = append(result, reminder)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ServiceDueDate.Equal(result[j].ServiceDueDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].ServiceDueDate.Before(result[j].ServiceDueDate)
	})
	return result, nil
}

func (st *state) InsertReminder(_ context.Context, reminder domain.ServiceReminder) (int64, error) {
	st.seq.reminder++
	reminder.ID = st.seq.reminder
	st.reminders[reminder.ID] = reminder
	return reminder.ID, nil
}

func (st *state) MarkReminderNotified(_ context.Context, id int64) error {
	reminder, ok := st.reminders[id]
	if !ok {
		return notFound("reminder", id)
	}
	reminder.Notified = true
	st.reminders[id] = reminder
	return nil
}

func (st *state) GetBusinessProfile(_ context.Context) (*domain.BusinessProfile, error) {
	if st.profile == nil {
		return nil, notFound("business profile", "default")
	}
	profile := *st.profile
	return &profile, nil
}

func (st *state) SaveBusinessProfile(_ context.Context, profile domain.BusinessProfile) error {
	st.profile = &profile
	return nil
}

func (st *state) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	result := make([]domain.UserAccount, 0, len(st.users))
	for _, user := range st.users {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

func (st *state) CreateUser(_ context.Context, user domain.UserAccount) error {
	if _, exists := st.users[user.Username]; exists {
		return fmt.Errorf("%w: username %s already exists", store.ErrConsistency, user.Username)
	}
	st.users[user.Username] = user
	return nil
}

func (st *state) UpdateUserPassword(_ context.Context, username string, password string) error {
	user, ok := st.users[username]
	if !ok {
		return notFound("user", username)
	}
	user.Password = password
	st.users[username] = user
	return nil
}

func (st *state) DeleteUser(_ context.Context, username string) error {
	if _, ok := st.users[username]; !ok {
		return notFound("user", username)
	}
	delete(st.users, username)
	return nil
}

func (st *state) SumSales(_ context.Context, window store.Range) (store.Aggregate, error) {
	agg := store.Aggregate{Total: decimal.Zero}
	for _, sale := range st.sales {
		if inRange(sale.DateTime, window) {
			agg.Count++
			agg.Total = agg.Total.Add(sale.NetTotal)
		}
	}
	return agg, nil
}

func (st *state) SumPurchases(_ context.Context, window store.Range) (store.Aggregate, error) {
	agg := store.Aggregate{Total: decimal.Zero}
	for _, purchase := range st.purchases {
		if inRange(purchase.DateTime, window) {
			agg.Count++
			agg.Total = agg.Total.Add(purchase.TotalAmount)
		}
	}
	return agg, nil
}

func (st *state) SumExpenditures(_ context.Context, window store.Range) (store.Aggregate, error) {
	agg := store.Aggregate{Total: decimal.Zero}
	for _, exp := range st.expenditures {
		if inRange(exp.DateTime, window) {
			agg.Count++
			agg.Total = agg.Total.Add(exp.Amount)
		}
	}
	return agg, nil
}
