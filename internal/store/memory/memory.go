package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"boutique/backend/internal/domain"
	"boutique/backend/internal/store"
	"boutique/backend/internal/xid"
)

type Store struct {
	mu sync.RWMutex

	employeeSeq int64
	productSeq  int64
	variantSeq  int64
	stockSeq    int64
	saleSeq     int64
	orderSeq    int64
	returnSeq   int64

	employees map[int64]domain.Employee
	products  map[int64]domain.Product
	variants  map[int64]domain.ColorVariant
	stock     map[domain.StockKey]domain.StockEntry
	movements []domain.StockMovement
	sales     []domain.Sale
	orders    []domain.Order
	returns   []domain.Return
}

func New() *Store {
	return &Store{
		employees: make(map[int64]domain.Employee),
		products:  make(map[int64]domain.Product),
		variants:  make(map[int64]domain.ColorVariant),
		stock:     make(map[domain.StockKey]domain.StockEntry),
		movements: make([]domain.StockMovement, 0, 128),
	}
}

// NewSeeded returns a store with a small demo catalog, three employees and
// ten units of every seeded variant in sizes 38 to 44 on both channels.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, name := range []string{"Amira", "Layla", "Omar"} {
		s.employeeSeq++
		s.employees[s.employeeSeq] = domain.Employee{ID: s.employeeSeq, Name: name, CreatedAt: now}
	}

	catalog := []struct {
		model    string
		brand    string
		kind     string
		boutique string
		online   string
		colors   []string
	}{
		{"AB-1001", "Maison Noor", "abaya", "450.00", "420.00", []string{"Black", "Navy"}},
		{"KF-2040", "Maison Noor", "kaftan", "380.00", "360.00", []string{"Ivory", "Sand"}},
		{"JL-3300", "Dar Al Harir", "jalabiya", "520.00", "499.00", []string{"Emerald", "Rose"}},
		{"DR-4120", "Dar Al Harir", "dress", "295.00", "275.00", []string{"Black"}},
	}
	for _, item := range catalog {
		s.productSeq++
		product := domain.Product{
			ID:            s.productSeq,
			ModelNumber:   item.model,
			Brand:         item.brand,
			ProductType:   item.kind,
			BoutiquePrice: decimal.RequireFromString(item.boutique),
			OnlinePrice:   decimal.RequireFromString(item.online),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.products[product.ID] = product
		for _, color := range item.colors {
			s.variantSeq++
			variant := domain.ColorVariant{ID: s.variantSeq, ProductID: product.ID, ColorName: color, CreatedAt: now}
			s.variants[variant.ID] = variant
			for _, storeID := range domain.Stores {
				for _, size := range []string{"38", "40", "42", "44"} {
					s.stockSeq++
					key := domain.StockKey{VariantID: variant.ID, Store: storeID, Size: size}
					s.stock[key] = domain.StockEntry{
						ID:        s.stockSeq,
						VariantID: variant.ID,
						Store:     storeID,
						Size:      size,
						Quantity:  10,
						UpdatedAt: now,
					}
				}
			}
		}
	}

	return s
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		employees = append(employees, e)
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return cmpString(a.Name, b.Name)
	})
	return employees, nil
}

func (s *Store) GetEmployee(_ context.Context, id int64) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, ok := s.employees[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &employee, nil
}

func (s *Store) CreateEmployee(_ context.Context, name string) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.employeeSeq++
	employee := domain.Employee{ID: s.employeeSeq, Name: name, CreatedAt: time.Now().UTC()}
	s.employees[employee.ID] = employee
	return &employee, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.ProductWithColors, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.ProductWithColors, 0, len(s.products))
	for _, p := range s.products {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.ModelNumber), search) &&
			!strings.Contains(strings.ToLower(p.Brand), search) {
			continue
		}
		withColors := s.productWithColorsLocked(p, filter.Store)
		if filter.Store != "" && !hasStock(withColors) {
			continue
		}
		products = append(products, withColors)
	}
	slices.SortFunc(products, func(a, b domain.ProductWithColors) int {
		return cmpInt64(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.ProductWithColors, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	withColors := s.productWithColorsLocked(product, "")
	return &withColors, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, colors []string) (*domain.ProductWithColors, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.modelNumberTakenLocked(product.ModelNumber, 0) {
		return nil, fmt.Errorf("model number %s already exists: %w", product.ModelNumber, store.ErrInvalidTransaction)
	}

	now := time.Now().UTC()
	s.productSeq++
	product.ID = s.productSeq
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	for _, color := range colors {
		if _, _, err := s.createColorLocked(product.ID, color); err != nil {
			return nil, err
		}
	}

	created := s.productWithColorsLocked(product, "")
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.modelNumberTakenLocked(product.ModelNumber, product.ID) {
		return nil, fmt.Errorf("model number %s already exists: %w", product.ModelNumber, store.ErrInvalidTransaction)
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	variantIDs := make([]int64, 0, 4)
	for _, v := range s.variants {
		if v.ProductID != id {
			continue
		}
		if s.variantReferencedLocked(v.ID) {
			return domain.NewValidationError("id", "product has recorded sales, orders or returns")
		}
		variantIDs = append(variantIDs, v.ID)
	}
	for _, variantID := range variantIDs {
		s.deleteVariantLocked(variantID)
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateColor(_ context.Context, productID int64, colorName string) (*domain.ColorVariant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createColorLocked(productID, colorName)
}

func (s *Store) GetVariant(_ context.Context, variantID int64) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variants[variantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product, ok := s.products[v.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &domain.Variant{ColorVariant: v, Product: product}, nil
}

func (s *Store) DeleteColor(_ context.Context, variantID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.variants[variantID]; !ok {
		return store.ErrNotFound
	}
	if s.variantReferencedLocked(variantID) {
		return domain.NewValidationError("id", "color has recorded sales, orders or returns")
	}
	s.deleteVariantLocked(variantID)
	return nil
}

func (s *Store) GetStockEntry(_ context.Context, key domain.StockKey) (*domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.stock[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) ListStock(_ context.Context, storeID domain.Store, variantID int64) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0, 32)
	for key, entry := range s.stock {
		if key.Store != storeID {
			continue
		}
		if variantID > 0 && key.VariantID != variantID {
			continue
		}
		entries = append(entries, entry)
	}
	sortStock(entries)
	return entries, nil
}

func (s *Store) SetStock(_ context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (*domain.StockEntry, domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 0 {
		return nil, domain.StockMovement{}, store.ErrInvalidTransaction
	}
	if _, ok := s.variants[key.VariantID]; !ok {
		return nil, domain.StockMovement{}, store.ErrNotFound
	}

	entry, exists := s.stock[key]
	if !exists {
		s.stockSeq++
		entry = domain.StockEntry{ID: s.stockSeq, VariantID: key.VariantID, Store: key.Store, Size: key.Size}
	}
	delta := qty - entry.Quantity
	entry.Quantity = qty
	entry.UpdatedAt = time.Now().UTC()
	s.stock[key] = entry

	movement := s.appendMovementLocked(key, delta, entry.Quantity, ref)
	movement.EntryCreated = !exists
	out := entry
	return &out, movement, nil
}

func (s *Store) Debit(_ context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.debitLocked(key, qty, ref)
}

func (s *Store) Credit(_ context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.creditLocked(key, qty, ref)
}

func (s *Store) ListMovements(_ context.Context, storeID domain.Store, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if s.movements[i].Store == storeID {
			out = append(out, s.movements[i])
		}
	}
	return out, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.Quantity < 1 {
		return nil, domain.StockMovement{}, store.ErrInvalidTransaction
	}
	if sale.SaleID == "" {
		sale.SaleID = xid.New("sale")
	}
	movement, err := s.debitLocked(sale.Key(), sale.Quantity, domain.MovementRef{
		Reason:      domain.MovementSale,
		ReferenceID: sale.SaleID,
		EmployeeID:  sale.EmployeeID,
	})
	if err != nil {
		return nil, domain.StockMovement{}, err
	}

	s.saleSeq++
	sale.ID = s.saleSeq
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.sales = append(s.sales, sale)
	created := sale
	return &created, movement, nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.sales {
		if s.sales[i].SaleID == saleID {
			sale := s.sales[i]
			return &sale, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSales(_ context.Context, storeID domain.Store, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, limit)
	for i := len(s.sales) - 1; i >= 0 && len(out) < limit; i-- {
		if s.sales[i].Store == storeID {
			out = append(out, s.sales[i])
		}
	}
	return out, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.Quantity < 1 {
		return nil, domain.StockMovement{}, store.ErrInvalidTransaction
	}
	if order.OrderID == "" {
		order.OrderID = xid.New("ord")
	}
	movement, err := s.debitLocked(order.Key(), order.Quantity, domain.MovementRef{
		Reason:      domain.MovementOrder,
		ReferenceID: order.OrderID,
		EmployeeID:  order.EmployeeID,
	})
	if err != nil {
		return nil, domain.StockMovement{}, err
	}

	now := time.Now().UTC()
	s.orderSeq++
	order.ID = s.orderSeq
	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	s.orders = append(s.orders, order)
	created := order
	return &created, movement, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.orderIndexLocked(orderID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	order := s.orders[idx]
	return &order, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, filter.Limit)
	for i := len(s.orders) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if filter.Status != "" && s.orders[i].Status != filter.Status {
			continue
		}
		out = append(out, s.orders[i])
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID string, next domain.OrderStatus, employeeID int64) (*domain.Order, []domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.orderIndexLocked(orderID)
	if idx < 0 {
		return nil, nil, store.ErrNotFound
	}
	order := s.orders[idx]
	if !order.Status.CanTransitionTo(next) {
		return nil, nil, fmt.Errorf("%w: %s to %s", store.ErrInvalidTransition, order.Status, next)
	}

	movements := make([]domain.StockMovement, 0, 1)
	if next == domain.OrderCancelled {
		movement, err := s.creditLocked(order.Key(), order.Quantity, domain.MovementRef{
			Reason:      domain.MovementCancel,
			ReferenceID: order.OrderID,
			EmployeeID:  employeeID,
		})
		if err != nil {
			return nil, nil, err
		}
		movements = append(movements, movement)
	}

	order.Status = next
	order.UpdatedAt = time.Now().UTC()
	s.orders[idx] = order
	updated := order
	return &updated, movements, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, []domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ret.OriginalQuantity < 1 {
		return nil, nil, store.ErrInvalidTransaction
	}
	if err := s.checkReturnSourceLocked(ret); err != nil {
		return nil, nil, err
	}
	if ret.ReturnID == "" {
		ret.ReturnID = xid.New("ret")
	}
	reason := domain.MovementReturn
	if ret.ReturnType.IsExchange() {
		reason = domain.MovementExchange
	}
	ref := domain.MovementRef{Reason: reason, ReferenceID: ret.ReturnID, EmployeeID: ret.EmployeeID}

	originalKey := ret.OriginalKey()
	before, hadEntry := s.stock[originalKey]
	seqBefore := s.stockSeq
	journalBefore := len(s.movements)

	movements := make([]domain.StockMovement, 0, 2)
	credit, err := s.creditLocked(originalKey, ret.OriginalQuantity, ref)
	if err != nil {
		return nil, nil, err
	}
	movements = append(movements, credit)

	if newKey, newQty, ok := ret.NewKey(); ok {
		debit, err := s.debitLocked(newKey, newQty, ref)
		if err != nil {
			if hadEntry {
				s.stock[originalKey] = before
			} else {
				delete(s.stock, originalKey)
				s.stockSeq = seqBefore
			}
			s.movements = s.movements[:journalBefore]
			return nil, nil, err
		}
		movements = append(movements, debit)
	}

	s.returnSeq++
	ret.ID = s.returnSeq
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	s.returns = append(s.returns, ret)
	created := ret
	return &created, movements, nil
}

func (s *Store) ListReturns(_ context.Context, storeID domain.Store, limit int) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Return, 0, limit)
	for i := len(s.returns) - 1; i >= 0 && len(out) < limit; i-- {
		if s.returns[i].Store == storeID {
			out = append(out, s.returns[i])
		}
	}
	return out, nil
}

func (s *Store) GetDashboardMetrics(_ context.Context, storeID domain.Store, since time.Time, lowStockThreshold int) (domain.DashboardMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := domain.DashboardMetrics{TodaySales: decimal.Zero}
	productIDs := make(map[int64]struct{})
	for key, entry := range s.stock {
		if key.Store != storeID {
			continue
		}
		if v, ok := s.variants[key.VariantID]; ok {
			productIDs[v.ProductID] = struct{}{}
		}
		if entry.Quantity < lowStockThreshold {
			metrics.LowStockItems++
		}
	}
	metrics.TotalProducts = len(productIDs)

	for _, sale := range s.sales {
		if sale.Store == storeID && !sale.CreatedAt.Before(since) {
			metrics.TodaySales = metrics.TodaySales.Add(sale.TotalAmount)
		}
	}
	if storeID == domain.StoreOnline {
		for _, order := range s.orders {
			if order.Status == domain.OrderPending {
				metrics.PendingOrders++
			}
		}
	}
	return metrics, nil
}

func (s *Store) GetTopProducts(_ context.Context, storeID domain.Store, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := make(map[int64]*domain.TopProduct)
	for _, sale := range s.sales {
		if sale.Store != storeID {
			continue
		}
		v, ok := s.variants[sale.VariantID]
		if !ok {
			continue
		}
		top, ok := byProduct[v.ProductID]
		if !ok {
			product := s.products[v.ProductID]
			top = &domain.TopProduct{
				ProductID:    product.ID,
				ProductName:  productName(product),
				ImageURL:     product.ImageURL,
				TotalRevenue: decimal.Zero,
			}
			byProduct[v.ProductID] = top
		}
		top.TotalSold += sale.Quantity
		top.TotalRevenue = top.TotalRevenue.Add(sale.TotalAmount)
	}

	out := make([]domain.TopProduct, 0, len(byProduct))
	for _, top := range byProduct {
		out = append(out, *top)
	}
	slices.SortFunc(out, func(a, b domain.TopProduct) int {
		if a.TotalSold != b.TotalSold {
			return b.TotalSold - a.TotalSold
		}
		return cmpInt64(a.ProductID, b.ProductID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// checkReturnSourceLocked enforces the returnable quantity of the referenced
// sale or order. Callers hold s.mu for writing, so concurrent returns against
// one source see each other.
func (s *Store) checkReturnSourceLocked(ret domain.Return) error {
	var sold int
	switch {
	case ret.OriginalSaleID != nil:
		found := false
		for i := range s.sales {
			if s.sales[i].SaleID == *ret.OriginalSaleID {
				sold, found = s.sales[i].Quantity, true
				break
			}
		}
		if !found {
			return domain.NewValidationError("original_sale_id", "unknown sale")
		}
	case ret.OriginalOrderID != nil:
		idx := s.orderIndexLocked(*ret.OriginalOrderID)
		if idx < 0 {
			return domain.NewValidationError("original_order_id", "unknown order")
		}
		if err := store.CheckOrderReturnable(s.orders[idx].Status); err != nil {
			return err
		}
		sold = s.orders[idx].Quantity
	default:
		return nil
	}

	returned := 0
	for _, r := range s.returns {
		if ret.OriginalSaleID != nil && r.OriginalSaleID != nil && *r.OriginalSaleID == *ret.OriginalSaleID {
			returned += r.OriginalQuantity
		}
		if ret.OriginalOrderID != nil && r.OriginalOrderID != nil && *r.OriginalOrderID == *ret.OriginalOrderID {
			returned += r.OriginalQuantity
		}
	}
	return store.CheckReturnable(sold, returned, ret.OriginalQuantity)
}

func (s *Store) debitLocked(key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	if qty < 1 {
		return domain.StockMovement{}, store.ErrInvalidTransaction
	}
	entry, ok := s.stock[key]
	if !ok {
		return domain.StockMovement{}, fmt.Errorf("%w: no stock entry for %s", store.ErrIntegrity, key)
	}
	if entry.Quantity < qty {
		return domain.StockMovement{}, store.ErrInsufficientStock
	}
	entry.Quantity -= qty
	entry.UpdatedAt = time.Now().UTC()
	s.stock[key] = entry
	return s.appendMovementLocked(key, -qty, entry.Quantity, ref), nil
}

func (s *Store) creditLocked(key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	if qty < 1 {
		return domain.StockMovement{}, store.ErrInvalidTransaction
	}
	if _, ok := s.variants[key.VariantID]; !ok {
		return domain.StockMovement{}, store.ErrNotFound
	}
	entry, exists := s.stock[key]
	if !exists {
		s.stockSeq++
		entry = domain.StockEntry{ID: s.stockSeq, VariantID: key.VariantID, Store: key.Store, Size: key.Size}
	}
	entry.Quantity += qty
	entry.UpdatedAt = time.Now().UTC()
	s.stock[key] = entry

	movement := s.appendMovementLocked(key, qty, entry.Quantity, ref)
	movement.EntryCreated = !exists
	return movement, nil
}

func (s *Store) appendMovementLocked(key domain.StockKey, delta int, after int, ref domain.MovementRef) domain.StockMovement {
	movement := domain.StockMovement{
		ID:            xid.UUID(),
		VariantID:     key.VariantID,
		Store:         key.Store,
		Size:          key.Size,
		Delta:         delta,
		QuantityAfter: after,
		Reason:        ref.Reason,
		ReferenceID:   ref.ReferenceID,
		EmployeeID:    ref.EmployeeID,
		CreatedAt:     time.Now().UTC(),
	}
	s.movements = append(s.movements, movement)
	return movement
}

func (s *Store) createColorLocked(productID int64, colorName string) (*domain.ColorVariant, bool, error) {
	if _, ok := s.products[productID]; !ok {
		return nil, false, store.ErrNotFound
	}
	for _, v := range s.variants {
		if v.ProductID == productID && strings.EqualFold(v.ColorName, colorName) {
			existing := v
			return &existing, false, nil
		}
	}
	s.variantSeq++
	variant := domain.ColorVariant{ID: s.variantSeq, ProductID: productID, ColorName: colorName, CreatedAt: time.Now().UTC()}
	s.variants[variant.ID] = variant
	return &variant, true, nil
}

func (s *Store) deleteVariantLocked(variantID int64) {
	for key := range s.stock {
		if key.VariantID == variantID {
			delete(s.stock, key)
		}
	}
	delete(s.variants, variantID)
}

func (s *Store) variantReferencedLocked(variantID int64) bool {
	for _, sale := range s.sales {
		if sale.VariantID == variantID {
			return true
		}
	}
	for _, order := range s.orders {
		if order.VariantID == variantID {
			return true
		}
	}
	for _, r := range s.returns {
		if r.OriginalVariantID == variantID || (r.NewVariantID != nil && *r.NewVariantID == variantID) {
			return true
		}
	}
	return false
}

func (s *Store) modelNumberTakenLocked(modelNumber string, exceptID int64) bool {
	for id, p := range s.products {
		if id != exceptID && strings.EqualFold(p.ModelNumber, modelNumber) {
			return true
		}
	}
	return false
}

func (s *Store) productWithColorsLocked(product domain.Product, storeID domain.Store) domain.ProductWithColors {
	out := domain.ProductWithColors{Product: product, Colors: make([]domain.ColorWithStock, 0, 2)}
	for _, v := range s.variants {
		if v.ProductID != product.ID {
			continue
		}
		color := domain.ColorWithStock{ColorVariant: v, Stock: make([]domain.StockEntry, 0, 8)}
		for key, entry := range s.stock {
			if key.VariantID != v.ID {
				continue
			}
			if storeID != "" && key.Store != storeID {
				continue
			}
			color.Stock = append(color.Stock, entry)
		}
		sortStock(color.Stock)
		out.Colors = append(out.Colors, color)
	}
	slices.SortFunc(out.Colors, func(a, b domain.ColorWithStock) int {
		return cmpInt64(a.ID, b.ID)
	})
	return out
}

func (s *Store) orderIndexLocked(orderID string) int {
	for i := range s.orders {
		if s.orders[i].OrderID == orderID {
			return i
		}
	}
	return -1
}

func hasStock(p domain.ProductWithColors) bool {
	for _, c := range p.Colors {
		if len(c.Stock) > 0 {
			return true
		}
	}
	return false
}

func productName(p domain.Product) string {
	return strings.TrimSpace(p.Brand + " " + p.ModelNumber)
}

func sortStock(entries []domain.StockEntry) {
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		if a.VariantID != b.VariantID {
			return cmpInt64(a.VariantID, b.VariantID)
		}
		if a.Store != b.Store {
			return cmpString(string(a.Store), string(b.Store))
		}
		return cmpString(a.Size, b.Size)
	})
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
