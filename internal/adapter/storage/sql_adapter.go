package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the database named by driver and applies the dialect's pool limits.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, Dialect, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sqlx.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.MaxOpenConns > 0 {
		db.SetMaxOpenConns(dialect.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}

	return db, dialect, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB, dialect Dialect) error {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", dialect.Name, err)
		}
	}
	return nil
}

type Option func(*SQLStore)

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		s.q.now = now
	}
}

// SQLStore implements the stock ledger, the item and order registries and
// the unit of work on top of a SQL database.
type SQLStore struct {
	db *sqlx.DB
	q  *queries
}

var (
	_ port.StockLedger   = (*SQLStore)(nil)
	_ port.OrderRegistry = (*SQLStore)(nil)
	_ port.ItemRegistry  = (*SQLStore)(nil)
	_ port.UnitOfWork    = (*SQLStore)(nil)
)

func NewSQLStore(db *sqlx.DB, dialect Dialect, opts ...Option) *SQLStore {
	s := &SQLStore{
		db: db,
		q: &queries{
			dialect:  dialect,
			bindType: sqlx.BindType(dialect.DriverName),
			now:      time.Now,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLStore) Begin(ctx context.Context) (port.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlTx{tx: tx, q: s.q}, nil
}

func (s *SQLStore) CreateItem(ctx context.Context, item domain.InventoryItem) (domain.InventoryItem, error) {
	return s.q.createItem(ctx, s.db, item)
}

func (s *SQLStore) GetItem(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	return s.q.getItem(ctx, s.db, id)
}

func (s *SQLStore) Receive(ctx context.Context, itemID int64, location string, quantity int) (domain.StockEntry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.StockEntry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	entry, err := s.q.receive(ctx, tx, itemID, location, quantity)
	if err != nil {
		return domain.StockEntry{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.StockEntry{}, fmt.Errorf("commit tx: %w", err)
	}
	return entry, nil
}

func (s *SQLStore) AvailableTotal(ctx context.Context, itemID int64, location string) (int, error) {
	return s.q.availableTotal(ctx, s.db, itemID, location, false)
}

func (s *SQLStore) ListOldestFirst(ctx context.Context, itemID int64, location string) ([]domain.StockEntry, error) {
	return s.q.listOldestFirst(ctx, s.db, itemID, location, false)
}

func (s *SQLStore) Decrement(ctx context.Context, stockEntryID int64, amount int) error {
	return s.q.decrement(ctx, s.db, stockEntryID, amount)
}

func (s *SQLStore) ItemTotal(ctx context.Context, itemID int64) (int, error) {
	return s.q.availableTotal(ctx, s.db, itemID, "", false)
}

func (s *SQLStore) CreateOrder(ctx context.Context, orderNumber string, lines []domain.OrderLine) (domain.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	order, err := s.q.createOrder(ctx, tx, orderNumber, lines)
	if err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}

func (s *SQLStore) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.q.getOrder(ctx, s.db, id, false)
}

func (s *SQLStore) SetStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	return s.q.setStatus(ctx, s.db, orderID, status)
}

// queries runs every statement against an sqlx.ExtContext so the same code
// serves both the pool and an open transaction.
type queries struct {
	dialect  Dialect
	bindType int
	now      func() time.Time
}

func (q *queries) rebind(query string) string {
	return sqlx.Rebind(q.bindType, query)
}

func (q *queries) lock(locking bool) string {
	if locking {
		return q.dialect.LockClause
	}
	return ""
}

func (q *queries) timestamp() time.Time {
	return q.now().UTC().Truncate(time.Microsecond)
}

func (q *queries) insertID(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (int64, error) {
	if q.dialect.Returning {
		var id int64
		if err := sqlx.GetContext(ctx, ext, &id, q.rebind(query+" RETURNING id"), args...); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := ext.ExecContext(ctx, q.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (q *queries) createItem(ctx context.Context, ext sqlx.ExtContext, item domain.InventoryItem) (domain.InventoryItem, error) {
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, q.rebind(`SELECT COUNT(*) FROM inventory_items WHERE sku = ?`), item.SKU); err != nil {
		return domain.InventoryItem{}, fmt.Errorf("query sku: %w", err)
	}
	if count > 0 {
		return domain.InventoryItem{}, domain.ErrSKUExists
	}

	item.CreatedAt = q.timestamp()
	id, err := q.insertID(ctx, ext, `
		INSERT INTO inventory_items (sku, name, type, unit, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		item.SKU, item.Name, item.Type, item.Unit, item.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InventoryItem{}, domain.ErrSKUExists
		}
		return domain.InventoryItem{}, fmt.Errorf("insert item: %w", err)
	}

	item.ID = id
	return item, nil
}

func (q *queries) getItem(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := sqlx.GetContext(ctx, ext, &item, q.rebind(`
		SELECT id, sku, name, type, unit, created_at
		FROM inventory_items WHERE id = ?`), id)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &item, nil
}

func (q *queries) receive(ctx context.Context, ext sqlx.ExtContext, itemID int64, location string, quantity int) (domain.StockEntry, error) {
	item, err := q.getItem(ctx, ext, itemID)
	if err != nil {
		return domain.StockEntry{}, err
	}
	if item == nil {
		return domain.StockEntry{}, fmt.Errorf("%w %d", domain.ErrItemNotFound, itemID)
	}

	_, err = ext.ExecContext(ctx, q.rebind(q.dialect.UpsertStock), itemID, location, quantity, q.timestamp())
	if err != nil {
		return domain.StockEntry{}, fmt.Errorf("upsert stock: %w", err)
	}

	var entry domain.StockEntry
	err = sqlx.GetContext(ctx, ext, &entry, q.rebind(`
		SELECT id, item_id, location, quantity, created_at
		FROM stock_entries WHERE item_id = ? AND location = ?`), itemID, location)
	if err != nil {
		return domain.StockEntry{}, fmt.Errorf("query stock entry: %w", err)
	}
	return entry, nil
}

func (q *queries) availableTotal(ctx context.Context, ext sqlx.ExtContext, itemID int64, location string, locking bool) (int, error) {
	where, args := `WHERE item_id = ?`, []any{itemID}
	if location != "" {
		where += ` AND location = ?`
		args = append(args, location)
	}

	// Aggregates cannot carry FOR UPDATE on Postgres, so locked reads sum in Go.
	if locking && q.dialect.LockClause != "" {
		var quantities []int
		query := `SELECT quantity FROM stock_entries ` + where + ` ORDER BY id` + q.dialect.LockClause
		if err := sqlx.SelectContext(ctx, ext, &quantities, q.rebind(query), args...); err != nil {
			return 0, fmt.Errorf("lock stock: %w", err)
		}
		total := 0
		for _, qty := range quantities {
			total += qty
		}
		return total, nil
	}

	var total int
	query := `SELECT COALESCE(SUM(quantity), 0) FROM stock_entries ` + where
	if err := sqlx.GetContext(ctx, ext, &total, q.rebind(query), args...); err != nil {
		return 0, fmt.Errorf("sum stock: %w", err)
	}
	return total, nil
}

func (q *queries) listOldestFirst(ctx context.Context, ext sqlx.ExtContext, itemID int64, location string, locking bool) ([]domain.StockEntry, error) {
	query := `SELECT id, item_id, location, quantity, created_at FROM stock_entries WHERE item_id = ?`
	args := []any{itemID}
	if location != "" {
		query += ` AND location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY created_at ASC, id ASC` + q.lock(locking)

	var entries []domain.StockEntry
	if err := sqlx.SelectContext(ctx, ext, &entries, q.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query stock entries: %w", err)
	}
	return entries, nil
}

func (q *queries) decrement(ctx context.Context, ext sqlx.ExtContext, stockEntryID int64, amount int) error {
	result, err := ext.ExecContext(ctx, q.rebind(`
		UPDATE stock_entries
		SET quantity = quantity - ?
		WHERE id = ? AND quantity >= ?`),
		amount, stockEntryID, amount,
	)
	if err != nil {
		return fmt.Errorf("update stock entry: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: stock entry %d cannot cover %d", domain.ErrInvariantViolation, stockEntryID, amount)
	}
	return nil
}

func (q *queries) createOrder(ctx context.Context, ext sqlx.ExtContext, orderNumber string, lines []domain.OrderLine) (domain.Order, error) {
	if len(lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must have at least one line", domain.ErrInvalidInput)
	}

	var count int
	if err := sqlx.GetContext(ctx, ext, &count, q.rebind(`SELECT COUNT(*) FROM orders WHERE order_number = ?`), orderNumber); err != nil {
		return domain.Order{}, fmt.Errorf("query order number: %w", err)
	}
	if count > 0 {
		return domain.Order{}, domain.ErrOrderNumberExists
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity must be positive for item %d", domain.ErrInvalidInput, line.ItemID)
		}
		item, err := q.getItem(ctx, ext, line.ItemID)
		if err != nil {
			return domain.Order{}, err
		}
		if item == nil {
			return domain.Order{}, fmt.Errorf("%w %d", domain.ErrItemNotFound, line.ItemID)
		}
	}

	now := q.timestamp()
	order := domain.Order{
		OrderNumber: orderNumber,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id, err := q.insertID(ctx, ext, `
		INSERT INTO orders (order_number, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		order.OrderNumber, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrOrderNumberExists
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	order.ID = id

	order.Items = make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		lineID, err := q.insertID(ctx, ext, `
			INSERT INTO order_items (order_id, item_id, quantity)
			VALUES (?, ?, ?)`,
			order.ID, line.ItemID, line.Quantity,
		)
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:       lineID,
			OrderID:  order.ID,
			ItemID:   line.ItemID,
			Quantity: line.Quantity,
		})
	}

	return order, nil
}

func (q *queries) getOrder(ctx context.Context, ext sqlx.ExtContext, id int64, locking bool) (*domain.Order, error) {
	var order domain.Order
	err := sqlx.GetContext(ctx, ext, &order, q.rebind(`
		SELECT id, order_number, status, created_at, updated_at
		FROM orders WHERE id = ?`+q.lock(locking)), id)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	err = sqlx.SelectContext(ctx, ext, &order.Items, q.rebind(`
		SELECT id, order_id, item_id, quantity
		FROM order_items WHERE order_id = ? ORDER BY id`), id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}

	return &order, nil
}

func (q *queries) setStatus(ctx context.Context, ext sqlx.ExtContext, orderID int64, status domain.OrderStatus) error {
	result, err := ext.ExecContext(ctx, q.rebind(`
		UPDATE orders
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		status, q.timestamp(), orderID, domain.OrderStatusPending,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrOrderNotPending
	}
	return nil
}
