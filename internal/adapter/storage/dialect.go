package storage

import "fmt"

// Dialect holds the per-database SQL that differs between drivers.
type Dialect struct {
	Name       string
	DriverName string
	// LockClause is appended to row-locking reads inside a transaction.
	LockClause string
	// Returning is true when inserts report ids through RETURNING instead of LastInsertId.
	Returning    bool
	UpsertStock  string
	Schema       []string
	MaxOpenConns int
}

const upsertStockOnConflict = `
	INSERT INTO stock_entries (item_id, location, quantity, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (item_id, location) DO UPDATE SET quantity = stock_entries.quantity + excluded.quantity`

var (
	MySQL = Dialect{
		Name:       "mysql",
		DriverName: "mysql",
		LockClause: " FOR UPDATE",
		UpsertStock: `
	INSERT INTO stock_entries (item_id, location, quantity, created_at)
	VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS inventory_items (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				sku VARCHAR(64) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(64) NOT NULL,
				unit VARCHAR(32) NOT NULL,
				created_at DATETIME(6) NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS stock_entries (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				item_id BIGINT NOT NULL,
				location VARCHAR(128) NOT NULL,
				quantity INT NOT NULL CHECK (quantity >= 0),
				created_at DATETIME(6) NOT NULL,
				UNIQUE KEY uq_stock_item_location (item_id, location),
				FOREIGN KEY (item_id) REFERENCES inventory_items(id)
			)`,
			`CREATE TABLE IF NOT EXISTS orders (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				order_number VARCHAR(64) NOT NULL UNIQUE,
				status VARCHAR(16) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS order_items (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				order_id BIGINT NOT NULL,
				item_id BIGINT NOT NULL,
				quantity INT NOT NULL CHECK (quantity > 0),
				FOREIGN KEY (order_id) REFERENCES orders(id),
				FOREIGN KEY (item_id) REFERENCES inventory_items(id)
			)`,
		},
	}

	Postgres = Dialect{
		Name:        "postgres",
		DriverName:  "postgres",
		LockClause:  " FOR UPDATE",
		Returning:   true,
		UpsertStock: upsertStockOnConflict,
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS inventory_items (
				id BIGSERIAL PRIMARY KEY,
				sku TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				unit TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS stock_entries (
				id BIGSERIAL PRIMARY KEY,
				item_id BIGINT NOT NULL REFERENCES inventory_items(id),
				location TEXT NOT NULL,
				quantity INTEGER NOT NULL CHECK (quantity >= 0),
				created_at TIMESTAMPTZ NOT NULL,
				UNIQUE (item_id, location)
			)`,
			`CREATE TABLE IF NOT EXISTS orders (
				id BIGSERIAL PRIMARY KEY,
				order_number TEXT NOT NULL UNIQUE,
				status TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS order_items (
				id BIGSERIAL PRIMARY KEY,
				order_id BIGINT NOT NULL REFERENCES orders(id),
				item_id BIGINT NOT NULL REFERENCES inventory_items(id),
				quantity INTEGER NOT NULL CHECK (quantity > 0)
			)`,
		},
	}

	// SQLite serializes writers, so the pool is capped at one connection and
	// row locks are unnecessary.
	SQLite = Dialect{
		Name:         "sqlite",
		DriverName:   "sqlite",
		UpsertStock:  upsertStockOnConflict,
		MaxOpenConns: 1,
		Schema: []string{
			`PRAGMA foreign_keys = ON`,
			`CREATE TABLE IF NOT EXISTS inventory_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				sku TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				unit TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS stock_entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				item_id INTEGER NOT NULL REFERENCES inventory_items(id),
				location TEXT NOT NULL,
				quantity INTEGER NOT NULL CHECK (quantity >= 0),
				created_at DATETIME NOT NULL,
				UNIQUE (item_id, location)
			)`,
			`CREATE TABLE IF NOT EXISTS orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				order_number TEXT NOT NULL UNIQUE,
				status TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS order_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				order_id INTEGER NOT NULL REFERENCES orders(id),
				item_id INTEGER NOT NULL REFERENCES inventory_items(id),
				quantity INTEGER NOT NULL CHECK (quantity > 0)
			)`,
		},
	}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported db driver %q", driver)
	}
}
