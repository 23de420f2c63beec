package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrInvalidInput       = errors.New("invalid input")
)

var (
	ErrOrderNotFound      = fmt.Errorf("%w: order", ErrNotFound)
	ErrItemNotFound       = fmt.Errorf("%w: inventory item", ErrNotFound)
	ErrOrderNotPending    = fmt.Errorf("%w: order is not pending", ErrInvalidState)
	ErrOrderHasNoItems    = fmt.Errorf("%w: order has no items", ErrInvalidState)
	ErrUnexpectedShortage = fmt.Errorf("%w: unexpected stock shortage during reservation", ErrInvalidState)
	ErrSKUExists          = fmt.Errorf("%w: sku already exists", ErrDuplicateKey)
	ErrOrderNumberExists  = fmt.Errorf("%w: order_number already exists", ErrDuplicateKey)
)

// InsufficientStockError reports the first item whose demand exceeds what is on hand.
type InsufficientStockError struct {
	ItemID    int64
	Needed    int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: needed %d, available %d", e.ItemID, e.Needed, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
