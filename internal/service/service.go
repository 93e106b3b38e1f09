package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"boutique/backend/internal/dashboard"
	"boutique/backend/internal/domain"
	"boutique/backend/internal/events"
	"boutique/backend/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

type sessionContextKey struct{}

func WithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(domain.Session)
	return session, ok
}

type Config struct {
	Sizes []string
	// CardTaxPercent defaults to 5 when not set.
	CardTaxPercent decimal.NullDecimal
}

type Service struct {
	repo        store.Repository
	dashboard   *dashboard.Engine
	publisher   events.Publisher
	sizes       domain.SizeCatalog
	cardTaxRate decimal.Decimal
	logger      *zap.Logger
}

func New(repo store.Repository, engine *dashboard.Engine, publisher events.Publisher, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = dashboard.NewEngine(repo, nil, 0, 0, logger)
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	taxPercent := decimal.NewFromInt(5)
	if cfg.CardTaxPercent.Valid {
		taxPercent = cfg.CardTaxPercent.Decimal
	}

	return &Service{
		repo:        repo,
		dashboard:   engine,
		publisher:   publisher,
		sizes:       domain.NewSizeCatalog(cfg.Sizes),
		cardTaxRate: taxPercent.Div(decimal.NewFromInt(100)),
		logger:      logger.Named("service"),
	}
}

func (s *Service) Sizes() []string {
	return s.sizes.Sizes()
}

// OpenSession resolves an employee and store selection into a Session.
func (s *Service) OpenSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error) {
	storeID, err := domain.ParseStore(req.Store)
	if err != nil {
		return domain.Session{}, err
	}
	if req.EmployeeID < 1 {
		return domain.Session{}, domain.NewValidationError("employee_id", "employee is required")
	}
	if _, err := s.repo.GetEmployee(ctx, req.EmployeeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, domain.NewValidationError("employee_id", "unknown employee")
		}
		return domain.Session{}, err
	}
	return domain.Session{EmployeeID: req.EmployeeID, Store: storeID}, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return s.repo.ListEmployees(ctx)
}

func (s *Service) GetEmployee(ctx context.Context, id int64) (domain.Employee, error) {
	employee, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return domain.Employee{}, err
	}
	return *employee, nil
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Employee{}, domain.NewValidationError("name", "name is required")
	}
	employee, err := s.repo.CreateEmployee(ctx, name)
	if err != nil {
		return domain.Employee{}, err
	}
	s.logger.Info("employee created", zap.Int64("employee_id", employee.ID))
	return *employee, nil
}

// CheckAvailability reports whether the ledger row holds at least qty units.
// A row that was never provisioned counts as zero stock.
func (s *Service) CheckAvailability(ctx context.Context, storeID domain.Store, variantID int64, size string, qty int) (domain.AvailabilityResponse, error) {
	key, err := s.stockKey(storeID, variantID, size, "size")
	if err != nil {
		return domain.AvailabilityResponse{}, err
	}
	if qty < 1 {
		return domain.AvailabilityResponse{}, domain.NewValidationError("quantity", "quantity must be greater than zero")
	}

	resp := domain.AvailabilityResponse{Key: key, Requested: qty}
	entry, err := s.repo.GetStockEntry(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resp, nil
		}
		return domain.AvailabilityResponse{}, err
	}
	resp.Available = entry.Quantity >= qty
	return resp, nil
}

func (s *Service) ListStock(ctx context.Context, storeID domain.Store, variantID int64) ([]domain.StockEntry, error) {
	if !storeID.Valid() {
		return nil, domain.NewValidationError("store", fmt.Sprintf("unknown store %q", storeID))
	}
	if variantID < 0 {
		return nil, domain.NewValidationError("variant_id", "variant_id must be positive")
	}
	return s.repo.ListStock(ctx, storeID, variantID)
}

// SetStock authors an absolute quantity for one ledger row, creating it if needed.
func (s *Service) SetStock(ctx context.Context, req domain.StockSetRequest) (domain.StockEntry, error) {
	session, err := requireSession(ctx)
	if err != nil {
		return domain.StockEntry{}, err
	}
	storeID, err := domain.ParseStore(req.Store)
	if err != nil {
		return domain.StockEntry{}, err
	}
	key, err := s.stockKey(storeID, req.VariantID, req.Size, "size")
	if err != nil {
		return domain.StockEntry{}, err
	}
	if req.Quantity < 0 {
		return domain.StockEntry{}, domain.NewValidationError("quantity", "quantity cannot be negative")
	}
	if _, err := s.repo.GetVariant(ctx, key.VariantID); err != nil {
		return domain.StockEntry{}, err
	}

	entry, movement, err := s.repo.SetStock(ctx, key, req.Quantity, domain.MovementRef{
		Reason:     domain.MovementSet,
		EmployeeID: session.EmployeeID,
	})
	if err != nil {
		return domain.StockEntry{}, err
	}
	s.afterCommit(ctx, movement)
	return *entry, nil
}

// Adjust applies a signed manual correction. Positive deltas credit the row,
// negative deltas debit it and never drive it below zero.
func (s *Service) Adjust(ctx context.Context, storeID domain.Store, req domain.StockAdjustRequest) (domain.StockMovement, error) {
	session, err := requireSession(ctx)
	if err != nil {
		return domain.StockMovement{}, err
	}
	key, err := s.stockKey(storeID, req.VariantID, req.Size, "size")
	if err != nil {
		return domain.StockMovement{}, err
	}
	if req.Delta == 0 {
		return domain.StockMovement{}, domain.NewValidationError("delta", "delta must not be zero")
	}
	ref := domain.MovementRef{
		Reason:      domain.MovementAdjustment,
		ReferenceID: strings.TrimSpace(req.Note),
		EmployeeID:  session.EmployeeID,
	}

	var movement domain.StockMovement
	if req.Delta > 0 {
		movement, err = s.repo.Credit(ctx, key, req.Delta, ref)
	} else {
		movement, err = s.repo.Debit(ctx, key, -req.Delta, ref)
	}
	if err != nil {
		s.logIntegrity(err, key)
		return domain.StockMovement{}, err
	}
	s.afterCommit(ctx, movement)
	return movement, nil
}

func (s *Service) ListMovements(ctx context.Context, storeID domain.Store, limit int) ([]domain.StockMovement, error) {
	if !storeID.Valid() {
		return nil, domain.NewValidationError("store", fmt.Sprintf("unknown store %q", storeID))
	}
	return s.repo.ListMovements(ctx, storeID, normalizeLimit(limit))
}

// RecordSale prices, taxes and records a sale while atomically debiting the
// ledger row it sells from.
func (s *Service) RecordSale(ctx context.Context, storeID domain.Store, req domain.SaleCreateRequest) (domain.Sale, error) {
	session, err := requireSession(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := matchSessionStore(session, storeID); err != nil {
		return domain.Sale{}, err
	}
	key, err := s.stockKey(storeID, req.VariantID, req.Size, "size")
	if err != nil {
		return domain.Sale{}, err
	}
	if req.Quantity < 1 {
		return domain.Sale{}, domain.NewValidationError("quantity", "quantity must be greater than zero")
	}
	method, err := parsePaymentMethod(req.PaymentMethod, storeID)
	if err != nil {
		return domain.Sale{}, err
	}
	variant, err := s.repo.GetVariant(ctx, key.VariantID)
	if err != nil {
		return domain.Sale{}, err
	}
	unitPrice, err := resolveUnitPrice(req.UnitPrice, variant.Product, storeID)
	if err != nil {
		return domain.Sale{}, err
	}

	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	tax := decimal.Zero
	if method.Taxable() {
		tax = subtotal.Mul(s.cardTaxRate).Round(2)
	}

	if err := s.requireAvailable(ctx, key, req.Quantity); err != nil {
		return domain.Sale{}, err
	}

	sale, movement, err := s.repo.CreateSale(ctx, domain.Sale{
		EmployeeID:    session.EmployeeID,
		Store:         storeID,
		VariantID:     key.VariantID,
		Size:          key.Size,
		Quantity:      req.Quantity,
		UnitPrice:     unitPrice,
		PaymentMethod: method,
		TaxAmount:     tax,
		TotalAmount:   subtotal.Add(tax).Round(2),
	})
	if err != nil {
		s.logIntegrity(err, key)
		return domain.Sale{}, err
	}
	s.afterCommit(ctx, movement)
	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.SaleID),
		zap.String("store", string(storeID)),
		zap.Int64("employee_id", session.EmployeeID),
		zap.String("total", sale.TotalAmount.StringFixed(2)),
	)
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, domain.NewValidationError("sale_id", "sale_id is required")
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, storeID domain.Store, limit int) ([]domain.Sale, error) {
	if !storeID.Valid() {
		return nil, domain.NewValidationError("store", fmt.Sprintf("unknown store %q", storeID))
	}
	return s.repo.ListSales(ctx, storeID, normalizeLimit(limit))
}

// RecordOrder records an online order and debits online stock. Orders carry
// no sales tax.
func (s *Service) RecordOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	session, err := requireSession(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	key, err := s.stockKey(domain.StoreOnline, req.VariantID, req.Size, "size")
	if err != nil {
		return domain.Order{}, err
	}
	if req.Quantity < 1 {
		return domain.Order{}, domain.NewValidationError("quantity", "quantity must be greater than zero")
	}
	method, err := parsePaymentMethod(req.PaymentMethod, domain.StoreOnline)
	if err != nil {
		return domain.Order{}, err
	}
	customer, err := normalizeCustomer(req.Customer)
	if err != nil {
		return domain.Order{}, err
	}
	variant, err := s.repo.GetVariant(ctx, key.VariantID)
	if err != nil {
		return domain.Order{}, err
	}
	unitPrice, err := resolveUnitPrice(req.UnitPrice, variant.Product, domain.StoreOnline)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.requireAvailable(ctx, key, req.Quantity); err != nil {
		return domain.Order{}, err
	}

	order, movement, err := s.repo.CreateOrder(ctx, domain.Order{
		EmployeeID:     session.EmployeeID,
		CustomerInfo:   customer,
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		Notes:          strings.TrimSpace(req.Notes),
		VariantID:      key.VariantID,
		Size:           key.Size,
		Quantity:       req.Quantity,
		UnitPrice:      unitPrice,
		PaymentMethod:  method,
		TotalAmount:    unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2),
		Status:         domain.OrderPending,
	})
	if err != nil {
		s.logIntegrity(err, key)
		return domain.Order{}, err
	}
	s.afterCommit(ctx, movement)
	s.logger.Info("order recorded",
		zap.String("order_id", order.OrderID),
		zap.Int64("employee_id", session.EmployeeID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	return *order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.NewValidationError("order_id", "order_id is required")
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	filter := domain.OrderFilter{Limit: normalizeLimit(limit)}
	if strings.TrimSpace(status) != "" {
		parsed, err := domain.ParseOrderStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = parsed
	}
	return s.repo.ListOrders(ctx, filter)
}

// UpdateOrderStatus moves an order along its lifecycle. Cancelling returns the
// ordered units to online stock in the same transaction.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, req domain.OrderStatusUpdateRequest) (domain.Order, error) {
	session, err := requireSession(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.NewValidationError("order_id", "order_id is required")
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return domain.Order{}, err
	}

	order, movements, err := s.repo.UpdateOrderStatus(ctx, orderID, next, session.EmployeeID)
	if err != nil {
		return domain.Order{}, err
	}
	s.afterCommit(ctx, movements...)
	// pending_orders moves with every transition, not only with restocks.
	s.dashboard.Invalidate(ctx, domain.StoreOnline)
	s.logger.Info("order status updated",
		zap.String("order_id", order.OrderID),
		zap.String("status", string(order.Status)),
		zap.Int64("employee_id", session.EmployeeID),
	)
	return *order, nil
}

// RecordReturn restores the returned units and, for exchanges, debits the
// replacement in the same transaction. A failed replacement debit rejects the
// whole return.
func (s *Service) RecordReturn(ctx context.Context, storeID domain.Store, req domain.ReturnCreateRequest) (domain.Return, error) {
	session, err := requireSession(ctx)
	if err != nil {
		return domain.Return{}, err
	}
	if err := matchSessionStore(session, storeID); err != nil {
		return domain.Return{}, err
	}
	returnType, err := domain.ParseReturnType(req.ReturnType)
	if err != nil {
		return domain.Return{}, err
	}
	originalKey, err := s.stockKey(storeID, req.OriginalVariantID, req.OriginalSize, "original_size")
	if err != nil {
		return domain.Return{}, err
	}
	if req.OriginalQuantity < 1 {
		return domain.Return{}, domain.NewValidationError("original_quantity", "original_quantity must be greater than zero")
	}
	originalVariant, err := s.repo.GetVariant(ctx, originalKey.VariantID)
	if err != nil {
		return domain.Return{}, err
	}

	ret := domain.Return{
		EmployeeID:        session.EmployeeID,
		Store:             storeID,
		ReturnType:        returnType,
		OriginalVariantID: originalKey.VariantID,
		OriginalSize:      originalKey.Size,
		OriginalQuantity:  req.OriginalQuantity,
		Reason:            strings.TrimSpace(req.Reason),
	}

	source, err := s.resolveReturnSource(ctx, storeID, originalKey, req)
	if err != nil {
		return domain.Return{}, err
	}
	if source != nil {
		ret.OriginalSaleID = source.saleID
		ret.OriginalOrderID = source.orderID
	}

	if returnType.IsExchange() {
		newKey, newQty, newVariant, err := s.resolveExchangeTarget(ctx, storeID, req)
		if err != nil {
			return domain.Return{}, err
		}
		ret.NewVariantID = &newKey.VariantID
		ret.NewSize = &newKey.Size
		ret.NewQuantity = &newQty
		diff := newVariant.Product.PriceFor(storeID).Sub(originalVariant.Product.PriceFor(storeID)).Round(2)
		ret.PriceDifference = decimal.NewNullDecimal(diff)
	} else {
		if source == nil {
			return domain.Return{}, domain.NewValidationError("original_sale_id", "a refund must reference the original sale or order")
		}
		refund := source.total
		if source.quantity > 0 && req.OriginalQuantity != source.quantity {
			refund = refund.Mul(decimal.NewFromInt(int64(req.OriginalQuantity))).Div(decimal.NewFromInt(int64(source.quantity)))
		}
		ret.RefundAmount = decimal.NewNullDecimal(refund.Round(2))
	}

	created, movements, err := s.repo.CreateReturn(ctx, ret)
	if err != nil {
		s.logIntegrity(err, originalKey)
		return domain.Return{}, err
	}
	s.afterCommit(ctx, movements...)
	s.logger.Info("return recorded",
		zap.String("return_id", created.ReturnID),
		zap.String("store", string(storeID)),
		zap.String("type", string(returnType)),
		zap.Int64("employee_id", session.EmployeeID),
	)
	return *created, nil
}

func (s *Service) ListReturns(ctx context.Context, storeID domain.Store, limit int) ([]domain.Return, error) {
	if !storeID.Valid() {
		return nil, domain.NewValidationError("store", fmt.Sprintf("unknown store %q", storeID))
	}
	return s.repo.ListReturns(ctx, storeID, normalizeLimit(limit))
}

func (s *Service) Dashboard(ctx context.Context, storeID domain.Store) (domain.DashboardResponse, error) {
	if !storeID.Valid() {
		return domain.DashboardResponse{}, domain.NewValidationError("store", fmt.Sprintf("unknown store %q", storeID))
	}
	return s.dashboard.Build(ctx, storeID)
}

type returnSource struct {
	saleID   *string
	orderID  *string
	total    decimal.Decimal
	quantity int
}

func (s *Service) resolveReturnSource(ctx context.Context, storeID domain.Store, originalKey domain.StockKey, req domain.ReturnCreateRequest) (*returnSource, error) {
	saleID := strings.TrimSpace(req.OriginalSaleID)
	orderID := strings.TrimSpace(req.OriginalOrderID)
	if saleID != "" && orderID != "" {
		return nil, domain.NewValidationError("original_order_id", "reference either a sale or an order, not both")
	}

	var source returnSource
	switch {
	case saleID != "":
		sale, err := s.repo.GetSale(ctx, saleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, domain.NewValidationError("original_sale_id", "unknown sale")
			}
			return nil, err
		}
		if sale.Store != storeID {
			return nil, domain.NewValidationError("original_sale_id", "sale belongs to another store")
		}
		if sale.Key() != originalKey {
			return nil, domain.NewValidationError("original_variant_id", "returned item does not match the sale")
		}
		source = returnSource{saleID: &sale.SaleID, total: sale.TotalAmount, quantity: sale.Quantity}
	case orderID != "":
		order, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, domain.NewValidationError("original_order_id", "unknown order")
			}
			return nil, err
		}
		if storeID != domain.StoreOnline {
			return nil, domain.NewValidationError("original_order_id", "orders are returned to the online store")
		}
		if err := store.CheckOrderReturnable(order.Status); err != nil {
			return nil, err
		}
		if order.Key() != originalKey {
			return nil, domain.NewValidationError("original_variant_id", "returned item does not match the order")
		}
		source = returnSource{orderID: &order.OrderID, total: order.TotalAmount, quantity: order.Quantity}
	default:
		return nil, nil
	}
	if req.OriginalQuantity > source.quantity {
		return nil, store.CheckReturnable(source.quantity, 0, req.OriginalQuantity)
	}
	return &source, nil
}

func (s *Service) resolveExchangeTarget(ctx context.Context, storeID domain.Store, req domain.ReturnCreateRequest) (domain.StockKey, int, *domain.Variant, error) {
	if req.NewVariantID == nil || req.NewQuantity == nil || strings.TrimSpace(req.NewSize) == "" {
		return domain.StockKey{}, 0, nil, domain.NewValidationError("new_variant_id", "exchanges require new_variant_id, new_size and new_quantity")
	}
	if *req.NewQuantity < 1 {
		return domain.StockKey{}, 0, nil, domain.NewValidationError("new_quantity", "new_quantity must be greater than zero")
	}
	key, err := s.stockKey(storeID, *req.NewVariantID, req.NewSize, "new_size")
	if err != nil {
		return domain.StockKey{}, 0, nil, err
	}
	variant, err := s.repo.GetVariant(ctx, key.VariantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.StockKey{}, 0, nil, domain.NewValidationError("new_variant_id", "unknown variant")
		}
		return domain.StockKey{}, 0, nil, err
	}
	return key, *req.NewQuantity, variant, nil
}

func (s *Service) requireAvailable(ctx context.Context, key domain.StockKey, qty int) error {
	availability, err := s.CheckAvailability(ctx, key.Store, key.VariantID, key.Size, qty)
	if err != nil {
		return err
	}
	if !availability.Available {
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Service) stockKey(storeID domain.Store, variantID int64, size string, sizeField string) (domain.StockKey, error) {
	if !storeID.Valid() {
		return domain.StockKey{}, domain.NewValidationError("store", fmt.Sprintf("unknown store %q", storeID))
	}
	if variantID < 1 {
		return domain.StockKey{}, domain.NewValidationError("variant_id", "variant_id is required")
	}
	normalized, err := s.sizes.Validate(sizeField, size)
	if err != nil {
		return domain.StockKey{}, err
	}
	return domain.StockKey{VariantID: variantID, Store: storeID, Size: normalized}, nil
}

// afterCommit fans committed movements out to the journal consumers and drops
// the dashboard views they affect. Failures here never undo the commit.
func (s *Service) afterCommit(ctx context.Context, movements ...domain.StockMovement) {
	touched := make(map[domain.Store]struct{}, 2)
	for _, m := range movements {
		touched[m.Store] = struct{}{}
		if m.EntryCreated && m.Reason != domain.MovementSet {
			s.logger.Warn("stock entry was missing and has been provisioned",
				zap.String("key", domain.StockKey{VariantID: m.VariantID, Store: m.Store, Size: m.Size}.String()),
				zap.String("reason", string(m.Reason)),
				zap.String("reference_id", m.ReferenceID),
				zap.Int("quantity", m.QuantityAfter),
			)
		}
	}
	for storeID := range touched {
		s.dashboard.Invalidate(ctx, storeID)
	}
	if err := s.publisher.PublishMovements(ctx, movements); err != nil {
		s.logger.Error("stock movement publish failed", zap.Int("count", len(movements)), zap.Error(err))
	}
}

func (s *Service) logIntegrity(err error, key domain.StockKey) {
	if errors.Is(err, store.ErrIntegrity) {
		s.logger.Warn("debit against unprovisioned stock entry", zap.String("key", key.String()), zap.Error(err))
	}
}

func requireSession(ctx context.Context) (domain.Session, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.EmployeeID < 1 || !session.Store.Valid() {
		return domain.Session{}, ErrNoSession
	}
	return session, nil
}

func matchSessionStore(session domain.Session, storeID domain.Store) error {
	if !storeID.Valid() {
		return domain.NewValidationError("store", fmt.Sprintf("unknown store %q", storeID))
	}
	if session.Store != storeID {
		return domain.NewValidationError("store", fmt.Sprintf("session is operating the %s store", session.Store))
	}
	return nil
}

func parsePaymentMethod(raw string, storeID domain.Store) (domain.PaymentMethod, error) {
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if !method.AllowedFor(storeID) {
		allowed := domain.PaymentMethodsFor(storeID)
		names := make([]string, len(allowed))
		for i, m := range allowed {
			names[i] = string(m)
		}
		return "", domain.NewValidationError("payment_method",
			fmt.Sprintf("%s store accepts %s", storeID, strings.Join(names, " or ")))
	}
	return method, nil
}

func resolveUnitPrice(requested *decimal.Decimal, product domain.Product, storeID domain.Store) (decimal.Decimal, error) {
	if requested == nil {
		return product.PriceFor(storeID).Round(2), nil
	}
	if requested.IsNegative() {
		return decimal.Zero, domain.NewValidationError("unit_price", "unit_price cannot be negative")
	}
	return requested.Round(2), nil
}

func normalizeCustomer(c domain.CustomerInfo) (domain.CustomerInfo, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Emirate = strings.TrimSpace(c.Emirate)
	c.Address = strings.TrimSpace(c.Address)
	switch {
	case c.Name == "":
		return c, domain.NewValidationError("customer.name", "customer name is required")
	case c.Phone == "":
		return c, domain.NewValidationError("customer.phone", "customer phone is required")
	case c.Emirate == "":
		return c, domain.NewValidationError("customer.emirate", "customer emirate is required")
	case c.Address == "":
		return c, domain.NewValidationError("customer.address", "customer address is required")
	}
	return c, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
