package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Session is the employee and store a terminal is operating as. It travels
// with each request instead of living in process-wide state.
type Session struct {
	EmployeeID int64 `json:"employee_id"`
	Store      Store `json:"store"`
}

type SessionRequest struct {
	EmployeeID int64  `json:"employee_id"`
	Store      string `json:"store"`
}

type SessionResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	Session   Session `json:"session"`
}

type Employee struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EmployeeCreateRequest struct {
	Name string `json:"name"`
}

type Product struct {
	ID             int64           `json:"id" db:"id"`
	ModelNumber    string          `json:"model_number" db:"model_number"`
	Brand          string          `json:"brand" db:"brand"`
	ProductType    string          `json:"product_type" db:"product_type"`
	BoutiquePrice  decimal.Decimal `json:"boutique_price" db:"boutique_price"`
	OnlinePrice    decimal.Decimal `json:"online_price" db:"online_price"`
	Specifications string          `json:"specifications" db:"specifications"`
	ImageURL       string          `json:"image_url" db:"image_url"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// PriceFor returns the list price of the product on the given channel.
func (p Product) PriceFor(store Store) decimal.Decimal {
	if store == StoreBoutique {
		return p.BoutiquePrice
	}
	return p.OnlinePrice
}

type ProductCreateRequest struct {
	ModelNumber    string          `json:"model_number"`
	Brand          string          `json:"brand"`
	ProductType    string          `json:"product_type"`
	BoutiquePrice  decimal.Decimal `json:"boutique_price"`
	OnlinePrice    decimal.Decimal `json:"online_price"`
	Specifications string          `json:"specifications"`
	ImageURL       string          `json:"image_url"`
	Colors         []string        `json:"colors,omitempty"`
}

type ProductUpdateRequest struct {
	ModelNumber    *string          `json:"model_number,omitempty"`
	Brand          *string          `json:"brand,omitempty"`
	ProductType    *string          `json:"product_type,omitempty"`
	BoutiquePrice  *decimal.Decimal `json:"boutique_price,omitempty"`
	OnlinePrice    *decimal.Decimal `json:"online_price,omitempty"`
	Specifications *string          `json:"specifications,omitempty"`
	ImageURL       *string          `json:"image_url,omitempty"`
}

type ProductFilter struct {
	Store  Store
	Search string
}

type ColorVariant struct {
	ID        int64     `json:"id" db:"id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	ColorName string    `json:"color_name" db:"color_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ColorCreateRequest struct {
	ColorName string `json:"color_name"`
}

type ColorWithStock struct {
	ColorVariant
	Stock []StockEntry `json:"stock"`
}

type ProductWithColors struct {
	Product
	Colors []ColorWithStock `json:"colors"`
}

// Variant is a color variant joined with its product.
type Variant struct {
	ColorVariant
	Product Product `json:"product"`
}

// StockKey identifies one ledger row.
type StockKey struct {
	VariantID int64  `json:"variant_id"`
	Store     Store  `json:"store"`
	Size      string `json:"size"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.VariantID, k.Store, k.Size)
}

type StockEntry struct {
	ID        int64     `json:"id" db:"id"`
	VariantID int64     `json:"variant_id" db:"variant_id"`
	Store     Store     `json:"store" db:"store"`
	Size      string    `json:"size" db:"size"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (e StockEntry) Key() StockKey {
	return StockKey{VariantID: e.VariantID, Store: e.Store, Size: e.Size}
}

// MovementRef describes why a ledger row moved.
type MovementRef struct {
	Reason      MovementReason
	ReferenceID string
	EmployeeID  int64
}

type StockMovement struct {
	ID            string         `json:"id" db:"id"`
	VariantID     int64          `json:"variant_id" db:"variant_id"`
	Store         Store          `json:"store" db:"store"`
	Size          string         `json:"size" db:"size"`
	Delta         int            `json:"delta" db:"delta"`
	QuantityAfter int            `json:"quantity_after" db:"quantity_after"`
	Reason        MovementReason `json:"reason" db:"reason"`
	ReferenceID   string         `json:"reference_id" db:"reference_id"`
	EmployeeID    int64          `json:"employee_id" db:"employee_id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	// EntryCreated is set when a credit had to provision a missing row.
	EntryCreated bool `json:"entry_created,omitempty" db:"-"`
}

type StockSetRequest struct {
	VariantID int64  `json:"variant_id"`
	Store     string `json:"store"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type StockAdjustRequest struct {
	VariantID int64  `json:"variant_id"`
	Size      string `json:"size"`
	Delta     int    `json:"delta"`
	Note      string `json:"note"`
}

type AvailabilityResponse struct {
	Key       StockKey `json:"key"`
	Requested int      `json:"requested"`
	Available bool     `json:"available"`
}

type Sale struct {
	ID            int64           `json:"id" db:"id"`
	SaleID        string          `json:"sale_id" db:"sale_id"`
	EmployeeID    int64           `json:"employee_id" db:"employee_id"`
	Store         Store           `json:"store" db:"store"`
	VariantID     int64           `json:"variant_id" db:"variant_id"`
	Size          string          `json:"size" db:"size"`
	Quantity      int             `json:"quantity" db:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price" db:"unit_price"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	TaxAmount     decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

func (s Sale) Key() StockKey {
	return StockKey{VariantID: s.VariantID, Store: s.Store, Size: s.Size}
}

type SaleCreateRequest struct {
	VariantID     int64            `json:"variant_id"`
	Size          string           `json:"size"`
	Quantity      int              `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	PaymentMethod string           `json:"payment_method"`
}

type CustomerInfo struct {
	Name    string `json:"name" db:"customer_name"`
	Phone   string `json:"phone" db:"customer_phone"`
	Emirate string `json:"emirate" db:"customer_emirate"`
	Address string `json:"address" db:"customer_address"`
}

type Order struct {
	ID           int64  `json:"id" db:"id"`
	OrderID      string `json:"order_id" db:"order_id"`
	EmployeeID   int64  `json:"employee_id" db:"employee_id"`
	CustomerInfo `json:"customer"`
	TrackingNumber string          `json:"tracking_number" db:"tracking_number"`
	Notes          string          `json:"notes" db:"notes"`
	VariantID      int64           `json:"variant_id" db:"variant_id"`
	Size           string          `json:"size" db:"size"`
	Quantity       int             `json:"quantity" db:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price" db:"unit_price"`
	PaymentMethod  PaymentMethod   `json:"payment_method" db:"payment_method"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status         OrderStatus     `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

func (o Order) Key() StockKey {
	return StockKey{VariantID: o.VariantID, Store: StoreOnline, Size: o.Size}
}

type OrderCreateRequest struct {
	VariantID      int64            `json:"variant_id"`
	Size           string           `json:"size"`
	Quantity       int              `json:"quantity"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	PaymentMethod  string           `json:"payment_method"`
	Customer       CustomerInfo     `json:"customer"`
	TrackingNumber string           `json:"tracking_number"`
	Notes          string           `json:"notes"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type OrderFilter struct {
	Status OrderStatus
	Limit  int
}

type Return struct {
	ID                int64               `json:"id" db:"id"`
	ReturnID          string              `json:"return_id" db:"return_id"`
	EmployeeID        int64               `json:"employee_id" db:"employee_id"`
	Store             Store               `json:"store" db:"store"`
	OriginalSaleID    *string             `json:"original_sale_id,omitempty" db:"original_sale_id"`
	OriginalOrderID   *string             `json:"original_order_id,omitempty" db:"original_order_id"`
	ReturnType        ReturnType          `json:"return_type" db:"return_type"`
	OriginalVariantID int64               `json:"original_variant_id" db:"original_variant_id"`
	OriginalSize      string              `json:"original_size" db:"original_size"`
	OriginalQuantity  int                 `json:"original_quantity" db:"original_quantity"`
	NewVariantID      *int64              `json:"new_variant_id,omitempty" db:"new_variant_id"`
	NewSize           *string             `json:"new_size,omitempty" db:"new_size"`
	NewQuantity       *int                `json:"new_quantity,omitempty" db:"new_quantity"`
	RefundAmount      decimal.NullDecimal `json:"refund_amount" db:"refund_amount"`
	PriceDifference   decimal.NullDecimal `json:"price_difference" db:"price_difference"`
	Reason            string              `json:"reason" db:"reason"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
}

func (r Return) OriginalKey() StockKey {
	return StockKey{VariantID: r.OriginalVariantID, Store: r.Store, Size: r.OriginalSize}
}

// NewKey is the exchange target row; ok is false for refunds.
func (r Return) NewKey() (key StockKey, qty int, ok bool) {
	if r.NewVariantID == nil || r.NewSize == nil || r.NewQuantity == nil {
		return StockKey{}, 0, false
	}
	return StockKey{VariantID: *r.NewVariantID, Store: r.Store, Size: *r.NewSize}, *r.NewQuantity, true
}

type ReturnCreateRequest struct {
	OriginalSaleID    string `json:"original_sale_id,omitempty"`
	OriginalOrderID   string `json:"original_order_id,omitempty"`
	ReturnType        string `json:"return_type"`
	OriginalVariantID int64  `json:"original_variant_id"`
	OriginalSize      string `json:"original_size"`
	OriginalQuantity  int    `json:"original_quantity"`
	NewVariantID      *int64 `json:"new_variant_id,omitempty"`
	NewSize           string `json:"new_size,omitempty"`
	NewQuantity       *int   `json:"new_quantity,omitempty"`
	Reason            string `json:"reason"`
}

type DashboardMetrics struct {
	TotalProducts int             `json:"total_products"`
	TodaySales    decimal.Decimal `json:"today_sales"`
	PendingOrders int             `json:"pending_orders"`
	LowStockItems int             `json:"low_stock_items"`
}

type TopProduct struct {
	ProductID    int64           `json:"product_id" db:"product_id"`
	ProductName  string          `json:"product_name" db:"product_name"`
	ImageURL     string          `json:"image_url" db:"image_url"`
	TotalSold    int             `json:"total_sold" db:"total_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue" db:"total_revenue"`
}

type DashboardResponse struct {
	Store       Store            `json:"store"`
	Metrics     DashboardMetrics `json:"metrics"`
	TopProducts []TopProduct     `json:"top_products"`
	GeneratedAt time.Time        `json:"generated_at"`
	Cached      bool             `json:"cached"`
}
