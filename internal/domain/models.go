package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CategoryGeneral = "General"
	CategoryTracked = "Tracked"
)

type Sale struct {
	BillID          string          `json:"bill_id" db:"bill_id"`
	DateTime        time.Time       `json:"date_time" db:"date_time"`
	CustomerName    string          `json:"customer_name" db:"customer_name"`
	MobileNumber    string          `json:"mobile_number" db:"mobile_number"`
	CarNumber       string          `json:"car_number" db:"car_number"`
	CarModel        string          `json:"car_model" db:"car_model"`
	CarKM           string          `json:"car_km" db:"car_km"`
	Subtotal        decimal.Decimal `json:"subtotal" db:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	NetTotal        decimal.Decimal `json:"net_total" db:"net_total"`
	Paid            bool            `json:"paid" db:"paid"`
	Edited          bool            `json:"is_edited" db:"is_edited"`
	Items           []SaleItem      `json:"items,omitempty" db:"-"`
}

type SaleItem struct {
	ID       int64           `json:"id" db:"id"`
	BillID   string          `json:"bill_id" db:"bill_id"`
	SrNo     int             `json:"sr_no" db:"sr_no"`
	ItemName string          `json:"item_name" db:"item_name"`
	Quantity decimal.Decimal `json:"quantity" db:"quantity"`
	Rate     decimal.Decimal `json:"rate" db:"rate"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
}

// SaleLine is one line of a sale as entered by the operator.
type SaleLine struct {
	ItemName string          `json:"item_name" validate:"required,max=200"`
	Quantity decimal.Decimal `json:"quantity" validate:"dec_gt=0"`
	Rate     decimal.Decimal `json:"rate" validate:"dec_gte=0"`
}

type SaleDraft struct {
	BillID          string          `json:"bill_id,omitempty" validate:"max=64"`
	CustomerName    string          `json:"customer_name" validate:"max=200"`
	MobileNumber    string          `json:"mobile_number" validate:"max=32"`
	CarNumber       string          `json:"car_number" validate:"max=64"`
	CarModel        string          `json:"car_model" validate:"max=120"`
	CarKM           string          `json:"car_km" validate:"max=32"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"dec_gte=0,dec_lte=100"`
	Paid            bool            `json:"paid"`
	CreateReminder  bool            `json:"create_reminder"`
	Share           bool            `json:"share"`
	Items           []SaleLine      `json:"items" validate:"required,min=1,dive"`
}

type SaleTotals struct {
	Amounts  []decimal.Decimal `json:"amounts"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	NetTotal decimal.Decimal   `json:"net_total"`
}

type SaleSearchField string

const (
	SearchByBillID       SaleSearchField = "bill_id"
	SearchByCustomerName SaleSearchField = "customer_name"
	SearchByCarNumber    SaleSearchField = "car_number"
	SearchByMobileNumber SaleSearchField = "mobile_number"
)

func (f SaleSearchField) Valid() bool {
	switch f {
	case SearchByBillID, SearchByCustomerName, SearchByCarNumber, SearchByMobileNumber:
		return true
	}
	return false
}

type Purchase struct {
	ID          int64           `json:"id" db:"id"`
	DateTime    time.Time       `json:"date_time" db:"date_time"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	Tracked     bool            `json:"tracked" db:"tracked"`
	Category    string          `json:"category" db:"category"`
	Items       []PurchaseItem  `json:"items,omitempty" db:"-"`
}

type PurchaseItem struct {
	ID         int64           `json:"id" db:"id"`
	PurchaseID int64           `json:"purchase_id" db:"purchase_id"`
	SrNo       int             `json:"sr_no" db:"sr_no"`
	ItemName   string          `json:"item_name" db:"item_name"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	Rate       decimal.Decimal `json:"rate" db:"rate"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Category   string          `json:"category" db:"category"`
	Tracked    bool            `json:"tracked" db:"tracked"`
}

type PurchaseLine struct {
	ItemName string          `json:"item_name" validate:"required,max=200"`
	Quantity decimal.Decimal `json:"quantity" validate:"dec_gt=0"`
	Rate     decimal.Decimal `json:"rate" validate:"dec_gte=0"`
}

type PurchaseDraft struct {
	Items []PurchaseLine `json:"items" validate:"required,min=1,dive"`
}

// PurchaseLineView is a purchase item joined with its parent's timestamp.
type PurchaseLineView struct {
	PurchaseItem
	DateTime time.Time `json:"date_time" db:"date_time"`
}

type Expenditure struct {
	ID          int64           `json:"id" db:"id"`
	DateTime    time.Time       `json:"date_time" db:"date_time"`
	SrNoDaily   int             `json:"sr_no_daily" db:"sr_no_daily"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
}

type ExpenditureDraft struct {
	Description string          `json:"description" validate:"required,max=500"`
	Amount      decimal.Decimal `json:"amount" validate:"dec_gte=0"`
}

type InventoryRecord struct {
	ID          int64           `json:"id" db:"id"`
	ItemName    string          `json:"item_name" db:"item_name"`
	ItemKey     string          `json:"item_key" db:"item_key"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	LastUpdated time.Time       `json:"last_updated" db:"last_updated"`
}

type MovementSource string

const (
	SourceSale           MovementSource = "sale"
	SourceSaleReversal   MovementSource = "sale_reversal"
	SourcePurchase       MovementSource = "purchase"
	SourcePurchaseEdit   MovementSource = "purchase_edit"
	SourcePurchaseRename MovementSource = "purchase_rename"
	SourcePurchaseDelete MovementSource = "purchase_delete"
)

// InventoryMovement is one stock card row written per applied ledger delta.
type InventoryMovement struct {
	ID            int64           `json:"id" db:"id"`
	ItemKey       string          `json:"item_key" db:"item_key"`
	Delta         decimal.Decimal `json:"delta" db:"delta"`
	QuantityAfter decimal.Decimal `json:"quantity_after" db:"quantity_after"`
	Source        MovementSource  `json:"source" db:"source"`
	Reference     string          `json:"reference" db:"reference"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

type ServiceReminder struct {
	ID             int64     `json:"id" db:"id"`
	BillID         string    `json:"bill_id" db:"bill_id"`
	CarNumber      string    `json:"car_number" db:"car_number"`
	CustomerName   string    `json:"customer_name" db:"customer_name"`
	MobileNumber   string    `json:"mobile_number" db:"mobile_number"`
	ServiceDueDate time.Time `json:"service_due_date" db:"service_due_date"`
	Notified       bool      `json:"is_notified" db:"is_notified"`
}

type BusinessProfile struct {
	Name        string `json:"name" db:"name" validate:"max=200"`
	Address     string `json:"address" db:"address" validate:"max=500"`
	Phone       string `json:"phone" db:"phone" validate:"max=32"`
	OwnerName   string `json:"owner_name" db:"owner_name" validate:"max=200"`
	LogoPath    string `json:"logo_path" db:"logo_path" validate:"max=500"`
	CountryCode string `json:"country_code" db:"country_code" validate:"required,startswith=+,max=6"`
}

func DefaultBusinessProfile() BusinessProfile {
	return BusinessProfile{
		Name:        "My Business",
		CountryCode: "+91",
	}
}

type UserAccount struct {
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password_hash"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

type Summary struct {
	Period    Period          `json:"period"`
	From      *time.Time      `json:"from,omitempty"`
	To        time.Time       `json:"to"`
	Sales     decimal.Decimal `json:"sales"`
	Purchases decimal.Decimal `json:"purchases"`
	Expenses  decimal.Decimal `json:"expenses"`
	Profit    decimal.Decimal `json:"profit"`
}

type Dashboard struct {
	Date          string             `json:"date"`
	SaleCount     int                `json:"sale_count"`
	Revenue       decimal.Decimal    `json:"revenue"`
	PurchaseLines []PurchaseLineView `json:"purchase_lines"`
	Expenditures  []Expenditure      `json:"expenditures"`
}

// BillDocument is the transfer object handed to document generation.
type BillDocument struct {
	BillID          string             `json:"bill_id"`
	DateTime        time.Time          `json:"date_time"`
	CustomerName    string             `json:"customer_name"`
	MobileNumber    string             `json:"mobile_number"`
	CarNumber       string             `json:"car_number"`
	CarModel        string             `json:"car_model"`
	CarKM           string             `json:"car_km"`
	Lines           []BillDocumentLine `json:"lines"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	DiscountPercent decimal.Decimal    `json:"discount_percent"`
	NetTotal        decimal.Decimal    `json:"net_total"`
	Paid            bool               `json:"paid"`
	Business        BusinessProfile    `json:"business"`
}

type BillDocumentLine struct {
	SrNo     int             `json:"sr_no"`
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

func NewBillDocument(sale Sale, profile BusinessProfile) BillDocument {
	lines := make([]BillDocumentLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, BillDocumentLine{
			SrNo:     item.SrNo,
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Rate:     item.Rate,
			Amount:   item.Amount,
		})
	}
	return BillDocument{
		BillID:          sale.BillID,
		DateTime:        sale.DateTime,
		CustomerName:    sale.CustomerName,
		MobileNumber:    sale.MobileNumber,
		CarNumber:       sale.CarNumber,
		CarModel:        sale.CarModel,
		CarKM:           sale.CarKM,
		Lines:           lines,
		Subtotal:        sale.Subtotal,
		DiscountPercent: sale.DiscountPercent,
		NetTotal:        sale.NetTotal,
		Paid:            sale.Paid,
		Business:        profile,
	}
}

// OutboundMessage is handed to the messaging integration.
type OutboundMessage struct {
	CountryCode    string `json:"country_code"`
	Number         string `json:"number"`
	Body           string `json:"body"`
	AttachmentPath string `json:"attachment_path,omitempty"`
}

func (m OutboundMessage) Destination() string {
	number := strings.Join(strings.Fields(m.Number), "")
	if strings.HasPrefix(number, "+") {
		return number
	}
	return strings.TrimSpace(m.CountryCode) + number
}
