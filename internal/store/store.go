package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boutique/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrIntegrity marks a debit against a ledger row that was never provisioned.
	ErrIntegrity         = errors.New("stock entry integrity violation")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// CheckReturnable rejects a return of qty units against a source that moved
// sold units, of which returned are already back in stock.
func CheckReturnable(sold int, returned int, qty int) error {
	if returned+qty > sold {
		return domain.NewValidationError("original_quantity",
			fmt.Sprintf("only %d of %d units remain returnable", max(0, sold-returned), sold))
	}
	return nil
}

// CheckOrderReturnable rejects returns against orders that have not reached
// the customer. Pending and in-delivery orders are cancelled instead.
func CheckOrderReturnable(status domain.OrderStatus) error {
	if status != domain.OrderDelivered {
		return domain.NewValidationError("original_order_id",
			fmt.Sprintf("order is %s; only delivered orders can be returned", status))
	}
	return nil
}

// Repository persists the catalog, the stock ledger and the transactions that
// move it. Every method that changes a stock quantity also appends the
// matching StockMovement in the same transaction and returns it.
type Repository interface {
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	GetEmployee(ctx context.Context, id int64) (*domain.Employee, error)
	CreateEmployee(ctx context.Context, name string) (*domain.Employee, error)

	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductWithColors, error)
	GetProduct(ctx context.Context, id int64) (*domain.ProductWithColors, error)
	CreateProduct(ctx context.Context, product domain.Product, colors []string) (*domain.ProductWithColors, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	// CreateColor is idempotent on (productID, colorName); created reports
	// whether a new variant row was written.
	CreateColor(ctx context.Context, productID int64, colorName string) (variant *domain.ColorVariant, created bool, err error)
	GetVariant(ctx context.Context, variantID int64) (*domain.Variant, error)
	DeleteColor(ctx context.Context, variantID int64) error

	GetStockEntry(ctx context.Context, key domain.StockKey) (*domain.StockEntry, error)
	ListStock(ctx context.Context, storeID domain.Store, variantID int64) ([]domain.StockEntry, error)
	SetStock(ctx context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (*domain.StockEntry, domain.StockMovement, error)
	// Debit subtracts qty only when at least qty units are on hand.
	Debit(ctx context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error)
	// Credit adds qty, creating the row when it is missing.
	Credit(ctx context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error)
	ListMovements(ctx context.Context, storeID domain.Store, limit int) ([]domain.StockMovement, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, domain.StockMovement, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID domain.Store, limit int) ([]domain.Sale, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, domain.StockMovement, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus, employeeID int64) (*domain.Order, []domain.StockMovement, error)

	// CreateReturn locks the referenced sale or order and rejects the return
	// when it would take back more units than the source moved. Order returns
	// are accepted only once the order is delivered.
	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, []domain.StockMovement, error)
	ListReturns(ctx context.Context, storeID domain.Store, limit int) ([]domain.Return, error)

	GetDashboardMetrics(ctx context.Context, storeID domain.Store, since time.Time, lowStockThreshold int) (domain.DashboardMetrics, error)
	GetTopProducts(ctx context.Context, storeID domain.Store, limit int) ([]domain.TopProduct, error)
}
