package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
	"github.com/rl1809/stockkeeper/internal/validate"
)

type OrderService struct {
	orders   port.OrderRegistry
	notifier port.EventNotifier
	logger   *zap.Logger
}

func NewOrderService(orders port.OrderRegistry, notifier port.EventNotifier, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, orderNumber string, lines []domain.OrderLine) (domain.Order, error) {
	orderNumber, ok := validate.OrderNumber(orderNumber)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: invalid order number", domain.ErrInvalidInput)
	}
	if len(lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must have at least one line", domain.ErrInvalidInput)
	}
	for _, line := range lines {
		if !validate.Quantity(line.Quantity) {
			return domain.Order{}, fmt.Errorf("%w: quantity must be positive for item %d", domain.ErrInvalidInput, line.ItemID)
		}
	}

	order, err := s.orders.CreateOrder(ctx, orderNumber, lines)
	if err != nil {
		return domain.Order{}, err
	}

	if _, err := s.notifier.Record(ctx, domain.EventOrderCreated, map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	}); err != nil {
		s.logger.Error("record event", zap.String("type", string(domain.EventOrderCreated)), zap.Error(err))
	}

	s.logger.Info("created order", zap.Int64("order_id", order.ID), zap.String("order_number", order.OrderNumber), zap.Int("lines", len(order.Items)))
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}
