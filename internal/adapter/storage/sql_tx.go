package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
)

// sqlTx routes every statement through one open transaction. Reads that
// feed a decision take row locks where the dialect supports them.
type sqlTx struct {
	tx   *sqlx.Tx
	q    *queries
	done bool
}

var _ port.Tx = (*sqlTx)(nil)

func (t *sqlTx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func (t *sqlTx) Receive(ctx context.Context, itemID int64, location string, quantity int) (domain.StockEntry, error) {
	return t.q.receive(ctx, t.tx, itemID, location, quantity)
}

func (t *sqlTx) AvailableTotal(ctx context.Context, itemID int64, location string) (int, error) {
	return t.q.availableTotal(ctx, t.tx, itemID, location, true)
}

func (t *sqlTx) ListOldestFirst(ctx context.Context, itemID int64, location string) ([]domain.StockEntry, error) {
	return t.q.listOldestFirst(ctx, t.tx, itemID, location, true)
}

func (t *sqlTx) Decrement(ctx context.Context, stockEntryID int64, amount int) error {
	return t.q.decrement(ctx, t.tx, stockEntryID, amount)
}

func (t *sqlTx) ItemTotal(ctx context.Context, itemID int64) (int, error) {
	return t.q.availableTotal(ctx, t.tx, itemID, "", false)
}

func (t *sqlTx) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return t.q.getOrder(ctx, t.tx, id, true)
}

func (t *sqlTx) SetStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	return t.q.setStatus(ctx, t.tx, orderID, status)
}

func (t *sqlTx) CreateOrder(ctx context.Context, orderNumber string, lines []domain.OrderLine) (domain.Order, error) {
	return t.q.createOrder(ctx, t.tx, orderNumber, lines)
}
