package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
	"github.com/rl1809/stockkeeper/internal/validate"
)

const maxTextLen = 255

type InventoryService struct {
	items    port.ItemRegistry
	ledger   port.StockLedger
	notifier port.EventNotifier
	logger   *zap.Logger
}

func NewInventoryService(items port.ItemRegistry, ledger port.StockLedger, notifier port.EventNotifier, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		items:    items,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *InventoryService) CreateItem(ctx context.Context, name, sku, itemType, unit string) (domain.InventoryItem, error) {
	var (
		item domain.InventoryItem
		ok   bool
	)
	if item.Name, ok = validate.Text(name, maxTextLen); !ok {
		return domain.InventoryItem{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if item.SKU, ok = validate.SKU(sku); !ok {
		return domain.InventoryItem{}, fmt.Errorf("%w: invalid sku", domain.ErrInvalidInput)
	}
	if item.Type, ok = validate.Text(itemType, maxTextLen); !ok {
		return domain.InventoryItem{}, fmt.Errorf("%w: type is required", domain.ErrInvalidInput)
	}
	if item.Unit, ok = validate.Text(unit, maxTextLen); !ok {
		return domain.InventoryItem{}, fmt.Errorf("%w: unit is required", domain.ErrInvalidInput)
	}

	created, err := s.items.CreateItem(ctx, item)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.record(ctx, domain.EventItemCreated, map[string]any{
		"itemId": created.ID,
		"sku":    created.SKU,
	})
	return created, nil
}

func (s *InventoryService) AddStock(ctx context.Context, itemID int64, location string, quantity int) (domain.StockEntry, error) {
	location, ok := validate.Location(location)
	if !ok {
		return domain.StockEntry{}, fmt.Errorf("%w: location is required", domain.ErrInvalidInput)
	}
	if !validate.Quantity(quantity) {
		return domain.StockEntry{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	entry, err := s.ledger.Receive(ctx, itemID, location, quantity)
	if err != nil {
		return domain.StockEntry{}, err
	}

	s.record(ctx, domain.EventStockAdded, map[string]any{
		"itemId":   itemID,
		"location": location,
		"quantity": quantity,
	})
	return entry, nil
}

// Available returns the on-hand total for an item. Unknown items report 0.
func (s *InventoryService) Available(ctx context.Context, itemID int64, location string) (int, error) {
	return s.ledger.AvailableTotal(ctx, itemID, location)
}

func (s *InventoryService) record(ctx context.Context, eventType domain.EventType, details map[string]any) {
	if _, err := s.notifier.Record(ctx, eventType, details); err != nil {
		s.logger.Error("record event", zap.String("type", string(eventType)), zap.Error(err))
	}
}
