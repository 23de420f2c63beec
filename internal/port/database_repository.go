package port

import (
	"context"

	"github.com/rl1809/stockkeeper/internal/core/domain"
)

type StockLedger interface {
	// Receive adds quantity to the (item, location) entry, creating it when absent.
	Receive(ctx context.Context, itemID int64, location string, quantity int) (domain.StockEntry, error)

	// AvailableTotal sums quantities for an item. An empty location means all locations.
	// Inside a transaction the matching rows are locked.
	AvailableTotal(ctx context.Context, itemID int64, location string) (int, error)

	// ListOldestFirst returns entries ordered by created_at, then id.
	ListOldestFirst(ctx context.Context, itemID int64, location string) ([]domain.StockEntry, error)

	// Decrement subtracts amount from one entry, failing if the entry would go negative.
	Decrement(ctx context.Context, stockEntryID int64, amount int) error

	// ItemTotal sums quantities across all locations without locking.
	ItemTotal(ctx context.Context, itemID int64) (int, error)
}

type OrderRegistry interface {
	// GetOrder returns nil, nil when the order does not exist.
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	// SetStatus moves a PENDING order to status.
	SetStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error

	CreateOrder(ctx context.Context, orderNumber string, lines []domain.OrderLine) (domain.Order, error)
}

type ItemRegistry interface {
	CreateItem(ctx context.Context, item domain.InventoryItem) (domain.InventoryItem, error)

	// GetItem returns nil, nil when the item does not exist.
	GetItem(ctx context.Context, id int64) (*domain.InventoryItem, error)
}

// Tx is a scoped transaction handle. Rollback after Commit is a no-op.
type Tx interface {
	StockLedger
	OrderRegistry
	Commit() error
	Rollback() error
}

type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}
