package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"boutique/backend/internal/dashboard"
	"boutique/backend/internal/domain"
	"boutique/backend/internal/store"
	"boutique/backend/internal/store/memory"
)

// Seeded catalog: variant 1 is AB-1001 Black (450 boutique, 420 online),
// variant 3 is KF-2040 Ivory (380 boutique, 360 online). Every seeded variant
// starts with 10 units in sizes 38-44 on both channels.
const (
	abayaBlack  int64 = 1
	kaftanIvory int64 = 3
)

type recordingPublisher struct {
	mu        sync.Mutex
	movements []domain.StockMovement
}

func (p *recordingPublisher) PublishMovements(_ context.Context, movements []domain.StockMovement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.movements = append(p.movements, movements...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type mapCache struct {
	mu     sync.Mutex
	values map[domain.Store]domain.DashboardResponse
}

func (c *mapCache) Get(_ context.Context, storeID domain.Store) (*domain.DashboardResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[storeID]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *mapCache) Set(_ context.Context, storeID domain.Store, value *domain.DashboardResponse, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[storeID] = *value
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, storeID domain.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, storeID)
	return nil
}

func newTestService() (*Service, *memory.Store, *recordingPublisher) {
	repo := memory.NewSeeded()
	publisher := &recordingPublisher{}
	engine := dashboard.NewEngine(repo, &mapCache{values: map[domain.Store]domain.DashboardResponse{}}, time.Minute, 5, zap.NewNop())
	svc := New(repo, engine, publisher, zap.NewNop(), Config{CardTaxPercent: decimal.NewNullDecimal(decimal.NewFromInt(5))})
	return svc, repo, publisher
}

func sessionCtx(storeID domain.Store) context.Context {
	return WithSession(context.Background(), domain.Session{EmployeeID: 1, Store: storeID})
}

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func stockQty(t *testing.T, repo *memory.Store, variantID int64, storeID domain.Store, size string) int {
	t.Helper()
	entry, err := repo.GetStockEntry(context.Background(), domain.StockKey{VariantID: variantID, Store: storeID, Size: size})
	if err != nil {
		t.Fatalf("get stock %d/%s/%s: %v", variantID, storeID, size, err)
	}
	return entry.Quantity
}

func TestRecordSaleDebitsStockAndAppliesTax(t *testing.T) {
	cases := []struct {
		name   string
		method string
		tax    string
		total  string
	}{
		{name: "card carries five percent tax", method: "card", tax: "15", total: "315"},
		{name: "cash carries no tax", method: "cash", tax: "0", total: "300"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			ctx := sessionCtx(domain.StoreBoutique)

			sale, err := svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
				VariantID:     abayaBlack,
				Size:          "40",
				Quantity:      3,
				UnitPrice:     price("100"),
				PaymentMethod: tc.method,
			})
			if err != nil {
				t.Fatalf("record sale: %v", err)
			}
			if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "40"); got != 7 {
				t.Fatalf("expected 7 units left, got %d", got)
			}
			if !sale.TaxAmount.Equal(decimal.RequireFromString(tc.tax)) {
				t.Fatalf("expected tax %s, got %s", tc.tax, sale.TaxAmount)
			}
			if !sale.TotalAmount.Equal(decimal.RequireFromString(tc.total)) {
				t.Fatalf("expected total %s, got %s", tc.total, sale.TotalAmount)
			}
			if sale.EmployeeID != 1 || sale.SaleID == "" {
				t.Fatalf("sale not attributed: %+v", sale)
			}
		})
	}
}

func TestRecordSaleDefaultsToChannelPrice(t *testing.T) {
	svc, _, _ := newTestService()

	sale, err := svc.RecordSale(sessionCtx(domain.StoreBoutique), domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID:     abayaBlack,
		Size:          "42",
		Quantity:      1,
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.UnitPrice.Equal(decimal.RequireFromString("450")) {
		t.Fatalf("expected boutique price 450, got %s", sale.UnitPrice)
	}
}

func TestRecordSaleRejectedWhenUnavailable(t *testing.T) {
	svc, repo, publisher := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	availability, err := svc.CheckAvailability(ctx, domain.StoreBoutique, abayaBlack, "40", 11)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if availability.Available {
		t.Fatal("expected 11 units to be unavailable")
	}

	_, err = svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID:     abayaBlack,
		Size:          "40",
		Quantity:      11,
		PaymentMethod: "cash",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "40"); got != 10 {
		t.Fatalf("stock must be untouched, got %d", got)
	}

	// Size 46 was never provisioned; it reads as zero stock.
	_, err = svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID:     abayaBlack,
		Size:          "46",
		Quantity:      1,
		PaymentMethod: "cash",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for unprovisioned size, got %v", err)
	}

	sales, err := svc.ListSales(ctx, domain.StoreBoutique, 0)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 || len(publisher.movements) != 0 {
		t.Fatalf("rejected sales must leave no trace: sales=%d movements=%d", len(sales), len(publisher.movements))
	}
}

func TestRecordSaleValidation(t *testing.T) {
	svc, _, _ := newTestService()
	valid := domain.SaleCreateRequest{VariantID: abayaBlack, Size: "40", Quantity: 1, PaymentMethod: "cash"}

	cases := []struct {
		name  string
		ctx   context.Context
		store domain.Store
		edit  func(r *domain.SaleCreateRequest)
		field string
	}{
		{name: "size outside catalog", ctx: sessionCtx(domain.StoreBoutique), store: domain.StoreBoutique, edit: func(r *domain.SaleCreateRequest) { r.Size = "39" }, field: "size"},
		{name: "zero quantity", ctx: sessionCtx(domain.StoreBoutique), store: domain.StoreBoutique, edit: func(r *domain.SaleCreateRequest) { r.Quantity = 0 }, field: "quantity"},
		{name: "online method at boutique", ctx: sessionCtx(domain.StoreBoutique), store: domain.StoreBoutique, edit: func(r *domain.SaleCreateRequest) { r.PaymentMethod = "bank_transfer" }, field: "payment_method"},
		{name: "negative unit price", ctx: sessionCtx(domain.StoreBoutique), store: domain.StoreBoutique, edit: func(r *domain.SaleCreateRequest) { r.UnitPrice = price("-1") }, field: "unit_price"},
		{name: "session for another store", ctx: sessionCtx(domain.StoreOnline), store: domain.StoreBoutique, edit: func(r *domain.SaleCreateRequest) {}, field: "store"},
		{name: "unknown store", ctx: sessionCtx(domain.StoreBoutique), store: domain.Store("warehouse"), edit: func(r *domain.SaleCreateRequest) {}, field: "store"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.edit(&req)
			_, err := svc.RecordSale(tc.ctx, tc.store, req)
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, vErr.Field)
			}
		})
	}

	if _, err := svc.RecordSale(context.Background(), domain.StoreBoutique, valid); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected missing session error, got %v", err)
	}
}

func TestRecordSaleNormalizesNumericSizes(t *testing.T) {
	svc, repo, _ := newTestService()

	sale, err := svc.RecordSale(sessionCtx(domain.StoreBoutique), domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID:     abayaBlack,
		Size:          " 40.0 ",
		Quantity:      2,
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if sale.Size != "40" {
		t.Fatalf("expected normalized size 40, got %q", sale.Size)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "40"); got != 8 {
		t.Fatalf("expected 8 units left, got %d", got)
	}
}

func TestRefundRestoresStockAndRefundsSaleTotal(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	sale, err := svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID:     abayaBlack,
		Size:          "40",
		Quantity:      2,
		UnitPrice:     price("100"),
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "40"); got != 8 {
		t.Fatalf("expected 8 after sale, got %d", got)
	}

	ret, err := svc.RecordReturn(ctx, domain.StoreBoutique, domain.ReturnCreateRequest{
		OriginalSaleID:    sale.SaleID,
		ReturnType:        "refund",
		OriginalVariantID: abayaBlack,
		OriginalSize:      "40",
		OriginalQuantity:  2,
		Reason:            "wrong fit",
	})
	if err != nil {
		t.Fatalf("record return: %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "40"); got != 10 {
		t.Fatalf("expected 10 after refund, got %d", got)
	}
	if !ret.RefundAmount.Valid || !ret.RefundAmount.Decimal.Equal(sale.TotalAmount) {
		t.Fatalf("expected refund %s, got %+v", sale.TotalAmount, ret.RefundAmount)
	}
	if ret.PriceDifference.Valid {
		t.Fatalf("refund must not carry a price difference")
	}
}

func TestReturnCannotExceedSoldQuantity(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	sale, err := svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID: abayaBlack, Size: "40", Quantity: 2, UnitPrice: price("100"), PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	partial, err := svc.RecordReturn(ctx, domain.StoreBoutique, domain.ReturnCreateRequest{
		OriginalSaleID: sale.SaleID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "40", OriginalQuantity: 1,
	})
	if err != nil {
		t.Fatalf("partial return: %v", err)
	}
	if !partial.RefundAmount.Decimal.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected prorated refund 100, got %s", partial.RefundAmount.Decimal)
	}

	_, err = svc.RecordReturn(ctx, domain.StoreBoutique, domain.ReturnCreateRequest{
		OriginalSaleID: sale.SaleID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "40", OriginalQuantity: 2,
	})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "original_quantity" {
		t.Fatalf("expected original_quantity validation error, got %v", err)
	}

	_, err = svc.RecordReturn(ctx, domain.StoreBoutique, domain.ReturnCreateRequest{
		OriginalSaleID: sale.SaleID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "42", OriginalQuantity: 1,
	})
	if !errors.As(err, &vErr) || vErr.Field != "original_variant_id" {
		t.Fatalf("expected mismatch validation error, got %v", err)
	}
}

func TestExchangeMovesStockAndComputesPriceDifference(t *testing.T) {
	svc, repo, publisher := newTestService()
	ctx := sessionCtx(domain.StoreOnline)

	ret, err := svc.RecordReturn(ctx, domain.StoreOnline, domain.ReturnCreateRequest{
		ReturnType:        "exchange_size",
		OriginalVariantID: abayaBlack,
		OriginalSize:      "38",
		OriginalQuantity:  1,
		NewVariantID:      int64Ptr(kaftanIvory),
		NewSize:           "42",
		NewQuantity:       intPtr(1),
	})
	if err != nil {
		t.Fatalf("record exchange: %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "38"); got != 11 {
		t.Fatalf("expected original credited to 11, got %d", got)
	}
	if got := stockQty(t, repo, kaftanIvory, domain.StoreOnline, "42"); got != 9 {
		t.Fatalf("expected replacement debited to 9, got %d", got)
	}
	want := decimal.RequireFromString("-60")
	if !ret.PriceDifference.Valid || !ret.PriceDifference.Decimal.Equal(want) {
		t.Fatalf("expected price difference %s, got %+v", want, ret.PriceDifference)
	}
	if ret.RefundAmount.Valid {
		t.Fatal("exchange must not carry a refund amount")
	}
	if len(publisher.movements) != 2 {
		t.Fatalf("expected credit and debit movements, got %d", len(publisher.movements))
	}
}

func TestExchangeRollsBackCreditWhenReplacementUnavailable(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := sessionCtx(domain.StoreOnline)

	if _, err := svc.SetStock(ctx, domain.StockSetRequest{VariantID: kaftanIvory, Store: "online", Size: "42", Quantity: 0}); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	_, err := svc.RecordReturn(ctx, domain.StoreOnline, domain.ReturnCreateRequest{
		ReturnType:        "exchange_model",
		OriginalVariantID: abayaBlack,
		OriginalSize:      "38",
		OriginalQuantity:  1,
		NewVariantID:      int64Ptr(kaftanIvory),
		NewSize:           "42",
		NewQuantity:       intPtr(1),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "38"); got != 10 {
		t.Fatalf("credit must be rolled back, got %d", got)
	}
	returns, err := svc.ListReturns(ctx, domain.StoreOnline, 10)
	if err != nil {
		t.Fatalf("list returns: %v", err)
	}
	if len(returns) != 0 {
		t.Fatalf("expected no return rows, got %d", len(returns))
	}
}

func TestExchangeRequiresReplacementFields(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.RecordReturn(sessionCtx(domain.StoreOnline), domain.StoreOnline, domain.ReturnCreateRequest{
		ReturnType:        "exchange_color",
		OriginalVariantID: abayaBlack,
		OriginalSize:      "38",
		OriginalQuantity:  1,
	})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "new_variant_id" {
		t.Fatalf("expected new_variant_id validation error, got %v", err)
	}
}

func TestSetStockIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)
	req := domain.StockSetRequest{VariantID: abayaBlack, Store: "boutique", Size: "50", Quantity: 4}

	for i := 0; i < 2; i++ {
		entry, err := svc.SetStock(ctx, req)
		if err != nil {
			t.Fatalf("set stock: %v", err)
		}
		if entry.Quantity != 4 {
			t.Fatalf("expected quantity 4, got %d", entry.Quantity)
		}
	}

	entries, err := svc.ListStock(ctx, domain.StoreBoutique, abayaBlack)
	if err != nil {
		t.Fatalf("list stock: %v", err)
	}
	matches := 0
	for _, e := range entries {
		if e.Size == "50" {
			matches++
		}
	}
	if matches != 1 {
		t.Fatalf("expected exactly one row for size 50, got %d", matches)
	}
}

func TestSetStockUnknownVariantIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.SetStock(sessionCtx(domain.StoreBoutique), domain.StockSetRequest{VariantID: 999, Store: "boutique", Size: "40", Quantity: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	const (
		workers = 16
		perSale = 3
		onHand  = 10
	)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
				VariantID:     abayaBlack,
				Size:          "44",
				Quantity:      perSale,
				PaymentMethod: "cash",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != onHand/perSale {
		t.Fatalf("expected %d successful sales, got %d", onHand/perSale, succeeded)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "44"); got != onHand%perSale {
		t.Fatalf("expected %d units left, got %d", onHand%perSale, got)
	}
}

// slowSourceRepo delays source lookups so concurrent returns all pass the
// service-level checks before any of them commits.
type slowSourceRepo struct {
	*memory.Store
}

func (r slowSourceRepo) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	time.Sleep(5 * time.Millisecond)
	return r.Store.GetSale(ctx, saleID)
}

func TestConcurrentRefundsNeverExceedSoldQuantity(t *testing.T) {
	repo := memory.NewSeeded()
	engine := dashboard.NewEngine(repo, &mapCache{values: map[domain.Store]domain.DashboardResponse{}}, time.Minute, 5, zap.NewNop())
	svc := New(slowSourceRepo{Store: repo}, engine, &recordingPublisher{}, zap.NewNop(), Config{})
	ctx := sessionCtx(domain.StoreBoutique)

	sale, err := svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID: abayaBlack, Size: "42", Quantity: 1, UnitPrice: price("100"), PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordReturn(ctx, domain.StoreBoutique, domain.ReturnCreateRequest{
				OriginalSaleID: sale.SaleID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "42", OriginalQuantity: 1,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != "original_quantity" {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one refund, got %d", succeeded)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "42"); got != 10 {
		t.Fatalf("expected stock back at 10, got %d", got)
	}
	returns, err := svc.ListReturns(ctx, domain.StoreBoutique, 0)
	if err != nil {
		t.Fatalf("list returns: %v", err)
	}
	if len(returns) != 1 {
		t.Fatalf("expected one return row, got %d", len(returns))
	}
}

func TestLedgerQuantityNeverNegative(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := sessionCtx(domain.StoreOnline)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		delta := rng.Intn(9) - 4
		if delta == 0 {
			continue
		}
		_, err := svc.Adjust(ctx, domain.StoreOnline, domain.StockAdjustRequest{VariantID: kaftanIvory, Size: "40", Delta: delta})
		if err != nil && !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("adjust %d: %v", delta, err)
		}
		if got := stockQty(t, repo, kaftanIvory, domain.StoreOnline, "40"); got < 0 {
			t.Fatalf("quantity went negative after step %d: %d", i, got)
		}
	}
}

func TestAdjustProvisionsOnCreditAndRefusesUnprovisionedDebit(t *testing.T) {
	svc, repo, publisher := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	movement, err := svc.Adjust(ctx, domain.StoreBoutique, domain.StockAdjustRequest{VariantID: abayaBlack, Size: "46", Delta: 2})
	if err != nil {
		t.Fatalf("credit adjust: %v", err)
	}
	if !movement.EntryCreated || movement.QuantityAfter != 2 {
		t.Fatalf("expected provisioned entry with 2 units, got %+v", movement)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "46"); got != 2 {
		t.Fatalf("expected 2 units, got %d", got)
	}

	_, err = svc.Adjust(ctx, domain.StoreBoutique, domain.StockAdjustRequest{VariantID: abayaBlack, Size: "48", Delta: -1})
	if !errors.Is(err, store.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if len(publisher.movements) != 1 {
		t.Fatalf("expected only the credit to be published, got %d", len(publisher.movements))
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		path    []string
		wantErr bool
	}{
		{path: []string{"in_delivery", "delivered"}},
		{path: []string{"cancelled"}},
		{path: []string{"in_delivery", "cancelled"}},
		{path: []string{"delivered"}, wantErr: true},
		{path: []string{"in_delivery", "pending"}, wantErr: true},
		{path: []string{"cancelled", "in_delivery"}, wantErr: true},
		{path: []string{"in_delivery", "delivered", "cancelled"}, wantErr: true},
	}

	for _, tc := range cases {
		svc, _, _ := newTestService()
		ctx := sessionCtx(domain.StoreOnline)
		order, err := svc.RecordOrder(ctx, newOrderRequest())
		if err != nil {
			t.Fatalf("record order: %v", err)
		}

		var lastErr error
		for _, status := range tc.path {
			if _, lastErr = svc.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusUpdateRequest{Status: status}); lastErr != nil {
				break
			}
		}
		if tc.wantErr && !errors.Is(lastErr, store.ErrInvalidTransition) {
			t.Fatalf("path %v: expected invalid transition, got %v", tc.path, lastErr)
		}
		if !tc.wantErr && lastErr != nil {
			t.Fatalf("path %v: unexpected error %v", tc.path, lastErr)
		}
	}
}

func TestRecordOrderDebitsOnlineStock(t *testing.T) {
	svc, repo, _ := newTestService()

	order, err := svc.RecordOrder(sessionCtx(domain.StoreOnline), newOrderRequest())
	if err != nil {
		t.Fatalf("record order: %v", err)
	}
	if order.Status != domain.OrderPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("840")) {
		t.Fatalf("expected untaxed total 840, got %s", order.TotalAmount)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "40"); got != 8 {
		t.Fatalf("expected 8 online units left, got %d", got)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreBoutique, "40"); got != 10 {
		t.Fatalf("boutique stock must be untouched, got %d", got)
	}
}

func TestRecordOrderRequiresCustomer(t *testing.T) {
	svc, _, _ := newTestService()
	req := newOrderRequest()
	req.Customer.Phone = "  "

	_, err := svc.RecordOrder(sessionCtx(domain.StoreOnline), req)
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "customer.phone" {
		t.Fatalf("expected customer.phone validation error, got %v", err)
	}
}

func TestCancellingOrderRestocksOnline(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := sessionCtx(domain.StoreOnline)

	order, err := svc.RecordOrder(ctx, newOrderRequest())
	if err != nil {
		t.Fatalf("record order: %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusUpdateRequest{Status: "in_delivery"}); err != nil {
		t.Fatalf("ship order: %v", err)
	}
	cancelled, err := svc.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusUpdateRequest{Status: "cancelled"})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "40"); got != 10 {
		t.Fatalf("expected cancellation to restock to 10, got %d", got)
	}

	_, err = svc.RecordReturn(ctx, domain.StoreOnline, domain.ReturnCreateRequest{
		OriginalOrderID: order.OrderID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "40", OriginalQuantity: 1,
	})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected returns of cancelled orders to be rejected, got %v", err)
	}
}

func TestOrderRefundRequiresDelivery(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := sessionCtx(domain.StoreOnline)

	order, err := svc.RecordOrder(ctx, newOrderRequest())
	if err != nil {
		t.Fatalf("record order: %v", err)
	}

	_, err = svc.RecordReturn(ctx, domain.StoreOnline, domain.ReturnCreateRequest{
		OriginalOrderID: order.OrderID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "40", OriginalQuantity: 2,
	})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "original_order_id" {
		t.Fatalf("expected pending order refund to be rejected, got %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "40"); got != 8 {
		t.Fatalf("rejected refund must not restock, got %d", got)
	}

	if _, err := svc.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusUpdateRequest{Status: "cancelled"}); err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "40"); got != 10 {
		t.Fatalf("expected exactly the ordered units back, got %d", got)
	}
}

func TestDeliveredOrderRefund(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := sessionCtx(domain.StoreOnline)

	order, err := svc.RecordOrder(ctx, newOrderRequest())
	if err != nil {
		t.Fatalf("record order: %v", err)
	}
	for _, status := range []string{"in_delivery", "delivered"} {
		if _, err := svc.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusUpdateRequest{Status: status}); err != nil {
			t.Fatalf("move order to %s: %v", status, err)
		}
	}

	ret, err := svc.RecordReturn(ctx, domain.StoreOnline, domain.ReturnCreateRequest{
		OriginalOrderID: order.OrderID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "40", OriginalQuantity: 1,
	})
	if err != nil {
		t.Fatalf("record return: %v", err)
	}
	if ret.OriginalOrderID == nil || *ret.OriginalOrderID != order.OrderID || ret.OriginalSaleID != nil {
		t.Fatalf("return must reference the order, got %+v", ret)
	}
	if !ret.RefundAmount.Valid || !ret.RefundAmount.Decimal.Equal(decimal.RequireFromString("420")) {
		t.Fatalf("expected refund of one unit out of 840, got %+v", ret.RefundAmount)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "40"); got != 9 {
		t.Fatalf("expected 9 after refund, got %d", got)
	}

	_, err = svc.RecordReturn(ctx, domain.StoreOnline, domain.ReturnCreateRequest{
		OriginalOrderID: order.OrderID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "40", OriginalQuantity: 2,
	})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "original_quantity" {
		t.Fatalf("expected original_quantity validation error, got %v", err)
	}

	rest, err := svc.RecordReturn(ctx, domain.StoreOnline, domain.ReturnCreateRequest{
		OriginalOrderID: order.OrderID, ReturnType: "refund", OriginalVariantID: abayaBlack, OriginalSize: "40", OriginalQuantity: 1,
	})
	if err != nil {
		t.Fatalf("return remaining unit: %v", err)
	}
	if !rest.RefundAmount.Decimal.Equal(decimal.RequireFromString("420")) {
		t.Fatalf("expected second refund 420, got %s", rest.RefundAmount.Decimal)
	}

	if _, err := svc.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusUpdateRequest{Status: "cancelled"}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("delivered order must not be cancelled, got %v", err)
	}
	if got := stockQty(t, repo, abayaBlack, domain.StoreOnline, "40"); got != 10 {
		t.Fatalf("expected 10 after both refunds, got %d", got)
	}
}

func TestDashboardInvalidatedByOrderStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := sessionCtx(domain.StoreOnline)

	order, err := svc.RecordOrder(ctx, newOrderRequest())
	if err != nil {
		t.Fatalf("record order: %v", err)
	}
	before, err := svc.Dashboard(ctx, domain.StoreOnline)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if before.Metrics.PendingOrders != 1 {
		t.Fatalf("expected 1 pending order, got %d", before.Metrics.PendingOrders)
	}
	if cached, err := svc.Dashboard(ctx, domain.StoreOnline); err != nil || !cached.Cached {
		t.Fatalf("expected second read to be cached, got cached=%v err=%v", cached.Cached, err)
	}

	if _, err := svc.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusUpdateRequest{Status: "in_delivery"}); err != nil {
		t.Fatalf("ship order: %v", err)
	}
	after, err := svc.Dashboard(ctx, domain.StoreOnline)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if after.Cached || after.Metrics.PendingOrders != 0 {
		t.Fatalf("expected a fresh dashboard with no pending orders, got cached=%v pending=%d", after.Cached, after.Metrics.PendingOrders)
	}
}

func TestDashboardInvalidatedBySale(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	before, err := svc.Dashboard(ctx, domain.StoreBoutique)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !before.Metrics.TodaySales.IsZero() {
		t.Fatalf("expected no sales yet, got %s", before.Metrics.TodaySales)
	}
	cached, err := svc.Dashboard(ctx, domain.StoreBoutique)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !cached.Cached {
		t.Fatal("expected second read to be cached")
	}

	if _, err := svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID: abayaBlack, Size: "40", Quantity: 1, UnitPrice: price("200"), PaymentMethod: "cash",
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	after, err := svc.Dashboard(ctx, domain.StoreBoutique)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if after.Cached {
		t.Fatal("sale must invalidate the cached dashboard")
	}
	if !after.Metrics.TodaySales.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("expected today sales 200, got %s", after.Metrics.TodaySales)
	}
	if len(after.TopProducts) != 1 || after.TopProducts[0].TotalSold != 1 {
		t.Fatalf("unexpected top products %+v", after.TopProducts)
	}
}

func TestDeleteColorWithSalesIsRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	if _, err := svc.RecordSale(ctx, domain.StoreBoutique, domain.SaleCreateRequest{
		VariantID: abayaBlack, Size: "40", Quantity: 1, PaymentMethod: "cash",
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	var vErr *domain.ValidationError
	if err := svc.DeleteColor(ctx, abayaBlack); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.DeleteProduct(ctx, 1); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.DeleteColor(ctx, kaftanIvory); err != nil {
		t.Fatalf("delete unused color: %v", err)
	}
	if _, err := svc.ListStock(ctx, domain.StoreBoutique, kaftanIvory); err != nil {
		t.Fatalf("list stock: %v", err)
	}
}

func TestAddColorIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	first, created, err := svc.AddColor(ctx, 1, domain.ColorCreateRequest{ColorName: "Burgundy"})
	if err != nil || !created {
		t.Fatalf("add color: created=%v err=%v", created, err)
	}
	second, created, err := svc.AddColor(ctx, 1, domain.ColorCreateRequest{ColorName: "burgundy "})
	if err != nil {
		t.Fatalf("add color again: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing variant %d, got %d (created=%v)", first.ID, second.ID, created)
	}
}

func TestCreateProductValidatesAndSearches(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := sessionCtx(domain.StoreBoutique)

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{ModelNumber: "X-1", Brand: "B", ProductType: "dress"})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "boutique_price" {
		t.Fatalf("expected boutique_price validation error, got %v", err)
	}

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		ModelNumber:   "sl-7000",
		Brand:         "Sahara Line",
		ProductType:   "dress",
		BoutiquePrice: decimal.RequireFromString("199.999"),
		OnlinePrice:   decimal.RequireFromString("180"),
		Colors:        []string{"Olive", "olive", "Sand"},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.ModelNumber != "SL-7000" || len(created.Colors) != 2 {
		t.Fatalf("unexpected product %+v", created)
	}
	if !created.BoutiquePrice.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("expected price rounded to 200, got %s", created.BoutiquePrice)
	}

	found, err := svc.ListProducts(ctx, "", "sahara")
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(found) != 1 || found[0].ID != created.ID {
		t.Fatalf("expected search to find the new product, got %d results", len(found))
	}

	inBoutique, err := svc.ListProducts(ctx, "boutique", "")
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range inBoutique {
		if p.ID == created.ID {
			t.Fatal("a product without stock rows must not be listed for a store")
		}
	}
}

func TestOpenSessionRequiresKnownEmployee(t *testing.T) {
	svc, _, _ := newTestService()

	session, err := svc.OpenSession(context.Background(), domain.SessionRequest{EmployeeID: 2, Store: "Online"})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if session.Store != domain.StoreOnline || session.EmployeeID != 2 {
		t.Fatalf("unexpected session %+v", session)
	}

	_, err = svc.OpenSession(context.Background(), domain.SessionRequest{EmployeeID: 99, Store: "online"})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "employee_id" {
		t.Fatalf("expected employee_id validation error, got %v", err)
	}
}

func newOrderRequest() domain.OrderCreateRequest {
	return domain.OrderCreateRequest{
		VariantID:     abayaBlack,
		Size:          "40",
		Quantity:      2,
		PaymentMethod: "cash_on_delivery",
		Customer: domain.CustomerInfo{
			Name:    "Mariam",
			Phone:   "+971500000000",
			Emirate: "Dubai",
			Address: "Al Barsha 1",
		},
	}
}
