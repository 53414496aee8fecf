package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrConsistency = errors.New("consistency violation")
	ErrStorage     = errors.New("storage failure")
)

// Range is a half-open time window [From, To). A zero From means no lower bound.
type Range struct {
	From time.Time
	To   time.Time
}

type Aggregate struct {
	Count int             `db:"n"`
	Total decimal.Decimal `db:"total"`
}

// Queries is the read side shared by a Store and an open transaction.
type Queries interface {
	GetSale(ctx context.Context, billID string) (*domain.Sale, error)
	ListSaleItems(ctx context.Context, billID string) ([]domain.SaleItem, error)
	SearchSales(ctx context.Context, field domain.SaleSearchField, term string, limit int) ([]domain.Sale, error)
	ListBillIDsWithPrefix(ctx context.Context, prefix string) ([]string, error)

	GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error)
	GetPurchaseItem(ctx context.Context, id int64) (*domain.PurchaseItem, error)
	ListPurchaseItems(ctx context.Context, purchaseID int64) ([]domain.PurchaseItem, error)
	ListPurchaseLines(ctx context.Context, window Range, limit int) ([]domain.PurchaseLineView, error)

	GetExpenditure(ctx context.Context, id int64) (*domain.Expenditure, error)
	ListExpenditures(ctx context.Context, window Range) ([]domain.Expenditure, error)
	MaxExpenditureSrNo(ctx context.Context, window Range) (int, error)

	GetInventoryByKey(ctx context.Context, key string) (*domain.InventoryRecord, error)
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
	ListMovements(ctx context.Context, key string, limit int) ([]domain.InventoryMovement, error)

	GetReminder(ctx context.Context, id int64) (*domain.ServiceReminder, error)
	ListDueReminders(ctx context.Context, asOf time.Time) ([]domain.ServiceReminder, error)

	GetBusinessProfile(ctx context.Context) (*domain.BusinessProfile, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)

	SumSales(ctx context.Context, window Range) (Aggregate, error)
	SumPurchases(ctx context.Context, window Range) (Aggregate, error)
	SumExpenditures(ctx context.Context, window Range) (Aggregate, error)
}

// Tx is a unit of work. Every write goes through a Tx handed out by Store.WithTx.
type Tx interface {
	Queries

	InsertSale(ctx context.Context, sale domain.Sale) error
	UpdateSale(ctx context.Context, sale domain.Sale) error
	DeleteSale(ctx context.Context, billID string) error
	InsertSaleItems(ctx context.Context, billID string, items []domain.SaleItem) error
	DeleteSaleItems(ctx context.Context, billID string) error

	InsertPurchase(ctx context.Context, purchase domain.Purchase) (int64, error)
	InsertPurchaseItems(ctx context.Context, purchaseID int64, items []domain.PurchaseItem) error
	UpdatePurchaseItem(ctx context.Context, item domain.PurchaseItem) error
	DeletePurchaseItem(ctx context.Context, id int64) error
	SetPurchaseTotal(ctx context.Context, purchaseID int64, total decimal.Decimal) error

	InsertExpenditure(ctx context.Context, exp domain.Expenditure) (int64, error)
	UpdateExpenditure(ctx context.Context, exp domain.Expenditure) error
	DeleteExpenditure(ctx context.Context, id int64) error

	InsertInventory(ctx context.Context, rec domain.InventoryRecord) (int64, error)
	UpdateInventoryQuantity(ctx context.Context, id int64, qty decimal.Decimal, at time.Time) error
	DeleteInventory(ctx context.Context, id int64) error
	InsertMovement(ctx context.Context, mv domain.InventoryMovement) error

	InsertReminder(ctx context.Context, reminder domain.ServiceReminder) (int64, error)
	MarkReminderNotified(ctx context.Context, id int64) error

	SaveBusinessProfile(ctx context.Context, profile domain.BusinessProfile) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	UpdateUserPassword(ctx context.Context, username string, password string) error
	DeleteUser(ctx context.Context, username string) error
}

// TxFunc runs inside a transaction. Returning an error rolls back every write made through tx.
type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Queries
	WithTx(ctx context.Context, fn TxFunc) error
	Close() error
}
