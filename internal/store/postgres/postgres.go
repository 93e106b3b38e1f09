package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"boutique/backend/internal/domain"
	"boutique/backend/internal/store"
	"boutique/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.Named("postgres")}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("schema applied")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	employees := make([]domain.Employee, 0, 16)
	err := s.db.SelectContext(ctx, &employees, `
		SELECT id, name, created_at
		FROM employees
		ORDER BY name, id
	`)
	return employees, err
}

func (s *Store) GetEmployee(ctx context.Context, id int64) (*domain.Employee, error) {
	var employee domain.Employee
	err := s.db.GetContext(ctx, &employee, `SELECT id, name, created_at FROM employees WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &employee, nil
}

func (s *Store) CreateEmployee(ctx context.Context, name string) (*domain.Employee, error) {
	var employee domain.Employee
	err := s.db.GetContext(ctx, &employee, `
		INSERT INTO employees (name, created_at)
		VALUES ($1, now())
		RETURNING id, name, created_at
	`, name)
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

const productColumns = `p.id, p.model_number, p.brand, p.product_type, p.boutique_price, p.online_price,
	p.specifications, p.image_url, p.created_at, p.updated_at`

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductWithColors, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.Store != "" {
		args = append(args, filter.Store)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM stock_entries se
			JOIN color_variants cv ON cv.id = se.variant_id
			WHERE cv.product_id = p.id AND se.store = $%d
		)`, len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(p.model_number ILIKE $%d OR p.brand ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, "SELECT "+productColumns+" FROM products p"+where+" ORDER BY p.id", args...); err != nil {
		return nil, err
	}
	return s.attachColors(ctx, products, filter.Store)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.ProductWithColors, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products p WHERE p.id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	withColors, err := s.attachColors(ctx, []domain.Product{product}, "")
	if err != nil {
		return nil, err
	}
	return &withColors[0], nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, colors []string) (*domain.ProductWithColors, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO products (
			model_number, brand, product_type, boutique_price, online_price,
			specifications, image_url, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING id, created_at, updated_at
	`, product.ModelNumber, product.Brand, product.ProductType, product.BoutiquePrice.Round(2),
		product.OnlinePrice.Round(2), product.Specifications, product.ImageURL,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("model number %s already exists: %w", product.ModelNumber, store.ErrInvalidTransaction)
		}
		return nil, err
	}

	created := domain.ProductWithColors{Product: product, Colors: make([]domain.ColorWithStock, 0, len(colors))}
	for _, color := range colors {
		variant, _, err := createColor(ctx, tx, product.ID, color)
		if err != nil {
			return nil, err
		}
		created.Colors = append(created.Colors, domain.ColorWithStock{ColorVariant: *variant, Stock: []domain.StockEntry{}})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	var updated domain.Product
	err := s.db.GetContext(ctx, &updated, `
		UPDATE products p
		SET model_number = $2, brand = $3, product_type = $4, boutique_price = $5,
			online_price = $6, specifications = $7, image_url = $8, updated_at = now()
		WHERE p.id = $1
		RETURNING `+productColumns,
		product.ID, product.ModelNumber, product.Brand, product.ProductType, product.BoutiquePrice.Round(2),
		product.OnlinePrice.Round(2), product.Specifications, product.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("model number %s already exists: %w", product.ModelNumber, store.ErrInvalidTransaction)
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewValidationError("id", "product has recorded sales, orders or returns")
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateColor(ctx context.Context, productID int64, colorName string) (*domain.ColorVariant, bool, error) {
	return createColor(ctx, s.db, productID, colorName)
}

func (s *Store) GetVariant(ctx context.Context, variantID int64) (*domain.Variant, error) {
	var row struct {
		domain.ColorVariant
		domain.Product `db:"p" json:"-"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT cv.id, cv.product_id, cv.color_name, cv.created_at,
			p.id AS "p.id", p.model_number AS "p.model_number", p.brand AS "p.brand",
			p.product_type AS "p.product_type", p.boutique_price AS "p.boutique_price",
			p.online_price AS "p.online_price", p.specifications AS "p.specifications",
			p.image_url AS "p.image_url", p.created_at AS "p.created_at", p.updated_at AS "p.updated_at"
		FROM color_variants cv
		JOIN products p ON p.id = cv.product_id
		WHERE cv.id = $1
	`, variantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &domain.Variant{ColorVariant: row.ColorVariant, Product: row.Product}, nil
}

func (s *Store) DeleteColor(ctx context.Context, variantID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM color_variants WHERE id = $1`, variantID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewValidationError("id", "color has recorded sales, orders or returns")
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const stockColumns = `id, variant_id, store, size, quantity, updated_at`

func (s *Store) GetStockEntry(ctx context.Context, key domain.StockKey) (*domain.StockEntry, error) {
	var entry domain.StockEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT `+stockColumns+`
		FROM stock_entries
		WHERE variant_id = $1 AND store = $2 AND size = $3
	`, key.VariantID, key.Store, key.Size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListStock(ctx context.Context, storeID domain.Store, variantID int64) ([]domain.StockEntry, error) {
	query := `SELECT ` + stockColumns + ` FROM stock_entries WHERE store = $1`
	args := []any{storeID}
	if variantID > 0 {
		query += ` AND variant_id = $2`
		args = append(args, variantID)
	}
	query += ` ORDER BY variant_id, size`

	entries := make([]domain.StockEntry, 0, 64)
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SetStock(ctx context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (*domain.StockEntry, domain.StockMovement, error) {
	if qty < 0 {
		return nil, domain.StockMovement{}, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, domain.StockMovement{}, err
	}
	defer func() { _ = tx.Rollback() }()

	previous := 0
	existed := true
	err = tx.GetContext(ctx, &previous, `
		SELECT quantity
		FROM stock_entries
		WHERE variant_id = $1 AND store = $2 AND size = $3
		FOR UPDATE
	`, key.VariantID, key.Store, key.Size)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, domain.StockMovement{}, err
		}
		existed = false
	}

	var entry domain.StockEntry
	err = tx.GetContext(ctx, &entry, `
		INSERT INTO stock_entries (variant_id, store, size, quantity, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (variant_id, store, size)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
		RETURNING `+stockColumns,
		key.VariantID, key.Store, key.Size, qty)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, domain.StockMovement{}, store.ErrNotFound
		}
		return nil, domain.StockMovement{}, err
	}

	movement, err := insertMovement(ctx, tx, key, qty-previous, entry.Quantity, ref)
	if err != nil {
		return nil, domain.StockMovement{}, err
	}
	movement.EntryCreated = !existed

	if err := tx.Commit(); err != nil {
		return nil, domain.StockMovement{}, err
	}
	return &entry, movement, nil
}

func (s *Store) Debit(ctx context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	var movement domain.StockMovement
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		movement, err = debit(ctx, tx, key, qty, ref)
		return err
	})
	return movement, err
}

func (s *Store) Credit(ctx context.Context, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	var movement domain.StockMovement
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		movement, err = credit(ctx, tx, key, qty, ref)
		return err
	})
	return movement, err
}

func (s *Store) ListMovements(ctx context.Context, storeID domain.Store, limit int) ([]domain.StockMovement, error) {
	movements := make([]domain.StockMovement, 0, limit)
	err := s.db.SelectContext(ctx, &movements, `
		SELECT id, variant_id, store, size, delta, quantity_after, reason, reference_id, employee_id, created_at
		FROM stock_movements
		WHERE store = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, storeID, limit)
	return movements, err
}

const saleColumns = `id, sale_id, employee_id, store, variant_id, size, quantity, unit_price,
	payment_method, tax_amount, total_amount, created_at`

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, domain.StockMovement, error) {
	if sale.Quantity < 1 {
		return nil, domain.StockMovement{}, store.ErrInvalidTransaction
	}
	if sale.SaleID == "" {
		sale.SaleID = xid.New("sale")
	}

	var movement domain.StockMovement
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		movement, err = debit(ctx, tx, sale.Key(), sale.Quantity, domain.MovementRef{
			Reason:      domain.MovementSale,
			ReferenceID: sale.SaleID,
			EmployeeID:  sale.EmployeeID,
		})
		if err != nil {
			return err
		}
		return tx.QueryRowxContext(ctx, `
			INSERT INTO sales (
				sale_id, employee_id, store, variant_id, size, quantity, unit_price,
				payment_method, tax_amount, total_amount, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
			RETURNING id, created_at
		`, sale.SaleID, sale.EmployeeID, sale.Store, sale.VariantID, sale.Size, sale.Quantity,
			sale.UnitPrice, sale.PaymentMethod, sale.TaxAmount, sale.TotalAmount,
		).Scan(&sale.ID, &sale.CreatedAt)
	})
	if err != nil {
		return nil, domain.StockMovement{}, err
	}
	return &sale, movement, nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.GetContext(ctx, &sale, `SELECT `+saleColumns+` FROM sales WHERE sale_id = $1`, saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, storeID domain.Store, limit int) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, limit)
	err := s.db.SelectContext(ctx, &sales, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE store = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	return sales, err
}

const orderColumns = `id, order_id, employee_id, customer_name, customer_phone, customer_emirate,
	customer_address, tracking_number, notes, variant_id, size, quantity, unit_price,
	payment_method, total_amount, status, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, domain.StockMovement, error) {
	if order.Quantity < 1 {
		return nil, domain.StockMovement{}, store.ErrInvalidTransaction
	}
	if order.OrderID == "" {
		order.OrderID = xid.New("ord")
	}
	if order.Status == "" {
		order.Status = domain.OrderPending
	}

	var movement domain.StockMovement
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		movement, err = debit(ctx, tx, order.Key(), order.Quantity, domain.MovementRef{
			Reason:      domain.MovementOrder,
			ReferenceID: order.OrderID,
			EmployeeID:  order.EmployeeID,
		})
		if err != nil {
			return err
		}
		return tx.QueryRowxContext(ctx, `
			INSERT INTO orders (
				order_id, employee_id, customer_name, customer_phone, customer_emirate,
				customer_address, tracking_number, notes, variant_id, size, quantity,
				unit_price, payment_method, total_amount, status, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
			RETURNING id, created_at, updated_at
		`, order.OrderID, order.EmployeeID, order.Name, order.Phone, order.Emirate, order.Address,
			order.TrackingNumber, order.Notes, order.VariantID, order.Size, order.Quantity,
			order.UnitPrice, order.PaymentMethod, order.TotalAmount, order.Status,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	})
	if err != nil {
		return nil, domain.StockMovement{}, err
	}
	return &order, movement, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]any, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` WHERE status = $1`
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	orders := make([]domain.Order, 0, filter.Limit)
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus, employeeID int64) (*domain.Order, []domain.StockMovement, error) {
	var order domain.Order
	movements := make([]domain.StockMovement, 0, 1)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1 FOR UPDATE`, orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if !order.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", store.ErrInvalidTransition, order.Status, next)
		}

		if next == domain.OrderCancelled {
			movement, err := credit(ctx, tx, order.Key(), order.Quantity, domain.MovementRef{
				Reason:      domain.MovementCancel,
				ReferenceID: order.OrderID,
				EmployeeID:  employeeID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
		}

		order.Status = next
		return tx.QueryRowxContext(ctx, `
			UPDATE orders
			SET status = $2, updated_at = now()
			WHERE order_id = $1
			RETURNING updated_at
		`, orderID, next).Scan(&order.UpdatedAt)
	})
	if err != nil {
		return nil, nil, err
	}
	return &order, movements, nil
}

const returnColumns = `id, return_id, employee_id, store, original_sale_id, original_order_id, return_type,
	original_variant_id, original_size, original_quantity, new_variant_id, new_size, new_quantity,
	refund_amount, price_difference, reason, created_at`

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, []domain.StockMovement, error) {
	if ret.OriginalQuantity < 1 {
		return nil, nil, store.ErrInvalidTransaction
	}
	if ret.ReturnID == "" {
		ret.ReturnID = xid.New("ret")
	}
	reason := domain.MovementReturn
	if ret.ReturnType.IsExchange() {
		reason = domain.MovementExchange
	}
	ref := domain.MovementRef{Reason: reason, ReferenceID: ret.ReturnID, EmployeeID: ret.EmployeeID}

	movements := make([]domain.StockMovement, 0, 2)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkReturnSource(ctx, tx, ret); err != nil {
			return err
		}
		creditMovement, err := credit(ctx, tx, ret.OriginalKey(), ret.OriginalQuantity, ref)
		if err != nil {
			return err
		}
		movements = append(movements, creditMovement)

		if newKey, newQty, ok := ret.NewKey(); ok {
			debitMovement, err := debit(ctx, tx, newKey, newQty, ref)
			if err != nil {
				return err
			}
			movements = append(movements, debitMovement)
		}

		return tx.QueryRowxContext(ctx, `
			INSERT INTO returns (
				return_id, employee_id, store, original_sale_id, original_order_id, return_type,
				original_variant_id, original_size, original_quantity, new_variant_id, new_size,
				new_quantity, refund_amount, price_difference, reason, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
			RETURNING id, created_at
		`, ret.ReturnID, ret.EmployeeID, ret.Store, ret.OriginalSaleID, ret.OriginalOrderID, ret.ReturnType,
			ret.OriginalVariantID, ret.OriginalSize, ret.OriginalQuantity, ret.NewVariantID, ret.NewSize,
			ret.NewQuantity, ret.RefundAmount, ret.PriceDifference, ret.Reason,
		).Scan(&ret.ID, &ret.CreatedAt)
	})
	if err != nil {
		return nil, nil, err
	}
	return &ret, movements, nil
}

func (s *Store) ListReturns(ctx context.Context, storeID domain.Store, limit int) ([]domain.Return, error) {
	returns := make([]domain.Return, 0, limit)
	err := s.db.SelectContext(ctx, &returns, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE store = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	return returns, err
}

func (s *Store) GetDashboardMetrics(ctx context.Context, storeID domain.Store, since time.Time, lowStockThreshold int) (domain.DashboardMetrics, error) {
	var metrics domain.DashboardMetrics
	err := s.db.QueryRowxContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT cv.product_id)
				FROM stock_entries se
				JOIN color_variants cv ON cv.id = se.variant_id
				WHERE se.store = $1),
			(SELECT COALESCE(SUM(total_amount), 0)
				FROM sales
				WHERE store = $1 AND created_at >= $2),
			(SELECT COUNT(*)
				FROM orders
				WHERE status = 'pending' AND $1 = 'online'),
			(SELECT COUNT(*)
				FROM stock_entries
				WHERE store = $1 AND quantity < $3)
	`, storeID, since, lowStockThreshold).Scan(
		&metrics.TotalProducts, &metrics.TodaySales, &metrics.PendingOrders, &metrics.LowStockItems,
	)
	return metrics, err
}

func (s *Store) GetTopProducts(ctx context.Context, storeID domain.Store, limit int) ([]domain.TopProduct, error) {
	top := make([]domain.TopProduct, 0, limit)
	err := s.db.SelectContext(ctx, &top, `
		SELECT
			p.id AS product_id,
			TRIM(p.brand || ' ' || p.model_number) AS product_name,
			p.image_url,
			SUM(s.quantity) AS total_sold,
			SUM(s.total_amount) AS total_revenue
		FROM sales s
		JOIN color_variants cv ON cv.id = s.variant_id
		JOIN products p ON p.id = cv.product_id
		WHERE s.store = $1
		GROUP BY p.id, p.brand, p.model_number, p.image_url
		ORDER BY total_sold DESC, p.id
		LIMIT $2
	`, storeID, limit)
	return top, err
}

// checkReturnSource locks the referenced sale or order row so concurrent
// returns and cancellations against it serialize, then enforces the
// returnable quantity.
func checkReturnSource(ctx context.Context, tx *sqlx.Tx, ret domain.Return) error {
	var (
		sold    int
		saleID  string
		orderID string
	)
	switch {
	case ret.OriginalSaleID != nil:
		saleID = *ret.OriginalSaleID
		err := tx.GetContext(ctx, &sold, `SELECT quantity FROM sales WHERE sale_id = $1 FOR UPDATE`, saleID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewValidationError("original_sale_id", "unknown sale")
		}
		if err != nil {
			return err
		}
	case ret.OriginalOrderID != nil:
		orderID = *ret.OriginalOrderID
		var source struct {
			Quantity int                `db:"quantity"`
			Status   domain.OrderStatus `db:"status"`
		}
		err := tx.GetContext(ctx, &source, `SELECT quantity, status FROM orders WHERE order_id = $1 FOR UPDATE`, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewValidationError("original_order_id", "unknown order")
		}
		if err != nil {
			return err
		}
		if err := store.CheckOrderReturnable(source.Status); err != nil {
			return err
		}
		sold = source.Quantity
	default:
		return nil
	}

	var returned int
	err := tx.GetContext(ctx, &returned, `
		SELECT COALESCE(SUM(original_quantity), 0)
		FROM returns
		WHERE ($1 <> '' AND original_sale_id = $1) OR ($2 <> '' AND original_order_id = $2)
	`, saleID, orderID)
	if err != nil {
		return err
	}
	return store.CheckReturnable(sold, returned, ret.OriginalQuantity)
}

// inTx runs fn in a READ COMMITTED transaction. The ledger relies on
// conditional updates and row locks rather than SERIALIZABLE isolation.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) attachColors(ctx context.Context, products []domain.Product, storeID domain.Store) ([]domain.ProductWithColors, error) {
	out := make([]domain.ProductWithColors, len(products))
	if len(products) == 0 {
		return out, nil
	}
	productIDs := make([]int64, len(products))
	index := make(map[int64]int, len(products))
	for i, p := range products {
		productIDs[i] = p.ID
		index[p.ID] = i
		out[i] = domain.ProductWithColors{Product: p, Colors: make([]domain.ColorWithStock, 0, 2)}
	}

	variants := make([]domain.ColorVariant, 0, len(products)*2)
	err := s.db.SelectContext(ctx, &variants, `
		SELECT id, product_id, color_name, created_at
		FROM color_variants
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`, productIDs)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return out, nil
	}
	variantIDs := make([]int64, len(variants))
	for i, v := range variants {
		variantIDs[i] = v.ID
	}

	query := `SELECT ` + stockColumns + ` FROM stock_entries WHERE variant_id = ANY($1)`
	args := []any{variantIDs}
	if storeID != "" {
		query += ` AND store = $2`
		args = append(args, storeID)
	}
	query += ` ORDER BY variant_id, store, size`
	entries := make([]domain.StockEntry, 0, len(variants)*8)
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	stockByVariant := make(map[int64][]domain.StockEntry, len(variants))
	for _, e := range entries {
		stockByVariant[e.VariantID] = append(stockByVariant[e.VariantID], e)
	}

	for _, v := range variants {
		stock := stockByVariant[v.ID]
		if stock == nil {
			stock = []domain.StockEntry{}
		}
		i := index[v.ProductID]
		out[i].Colors = append(out[i].Colors, domain.ColorWithStock{ColorVariant: v, Stock: stock})
	}
	return out, nil
}

func createColor(ctx context.Context, q sqlx.QueryerContext, productID int64, colorName string) (*domain.ColorVariant, bool, error) {
	var variant domain.ColorVariant
	err := sqlx.GetContext(ctx, q, &variant, `
		INSERT INTO color_variants (product_id, color_name, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (product_id, lower(color_name)) DO NOTHING
		RETURNING id, product_id, color_name, created_at
	`, productID, colorName)
	if err == nil {
		return &variant, true, nil
	}
	if isForeignKeyViolation(err) {
		return nil, false, store.ErrNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	err = sqlx.GetContext(ctx, q, &variant, `
		SELECT id, product_id, color_name, created_at
		FROM color_variants
		WHERE product_id = $1 AND lower(color_name) = lower($2)
	`, productID, colorName)
	if err != nil {
		return nil, false, err
	}
	return &variant, false, nil
}

// debit subtracts qty in a single conditional update so concurrent callers
// can never drive the row below zero.
func debit(ctx context.Context, tx *sqlx.Tx, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	if qty < 1 {
		return domain.StockMovement{}, store.ErrInvalidTransaction
	}

	var after int
	err := tx.GetContext(ctx, &after, `
		UPDATE stock_entries
		SET quantity = quantity - $1, updated_at = now()
		WHERE variant_id = $2 AND store = $3 AND size = $4 AND quantity >= $1
		RETURNING quantity
	`, qty, key.VariantID, key.Store, key.Size)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.StockMovement{}, err
		}
		var exists bool
		if err := tx.GetContext(ctx, &exists, `
			SELECT EXISTS (
				SELECT 1 FROM stock_entries WHERE variant_id = $1 AND store = $2 AND size = $3
			)
		`, key.VariantID, key.Store, key.Size); err != nil {
			return domain.StockMovement{}, err
		}
		if !exists {
			return domain.StockMovement{}, fmt.Errorf("%w: no stock entry for %s", store.ErrIntegrity, key)
		}
		return domain.StockMovement{}, store.ErrInsufficientStock
	}

	return insertMovement(ctx, tx, key, -qty, after, ref)
}

func credit(ctx context.Context, tx *sqlx.Tx, key domain.StockKey, qty int, ref domain.MovementRef) (domain.StockMovement, error) {
	if qty < 1 {
		return domain.StockMovement{}, store.ErrInvalidTransaction
	}

	var row struct {
		Quantity int  `db:"quantity"`
		Inserted bool `db:"inserted"`
	}
	err := tx.GetContext(ctx, &row, `
		INSERT INTO stock_entries (variant_id, store, size, quantity, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (variant_id, store, size)
		DO UPDATE SET quantity = stock_entries.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING quantity, (xmax = 0) AS inserted
	`, key.VariantID, key.Store, key.Size, qty)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.StockMovement{}, store.ErrNotFound
		}
		return domain.StockMovement{}, err
	}

	movement, err := insertMovement(ctx, tx, key, qty, row.Quantity, ref)
	if err != nil {
		return domain.StockMovement{}, err
	}
	movement.EntryCreated = row.Inserted
	return movement, nil
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, key domain.StockKey, delta int, after int, ref domain.MovementRef) (domain.StockMovement, error) {
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
	}
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO stock_movements (
			id, variant_id, store, size, delta, quantity_after, reason, reference_id, employee_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		RETURNING created_at
	`, movement.ID, movement.VariantID, movement.Store, movement.Size, movement.Delta,
		movement.QuantityAfter, movement.Reason, movement.ReferenceID, movement.EmployeeID,
	).Scan(&movement.CreatedAt)
	if err != nil {
		return domain.StockMovement{}, err
	}
	return movement, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
