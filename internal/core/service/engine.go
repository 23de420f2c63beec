package service

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
)

// Fulfiller reserves stock for an order and marks it fulfilled.
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID int64, location string) (*domain.Order, error)
}

// Engine fulfills orders inside a single transaction. Events are staged
// while the transaction is open and recorded only after commit.
type Engine struct {
	uow      port.UnitOfWork
	notifier port.EventNotifier
	logger   *zap.Logger
	tracer   trace.Tracer
}

var _ Fulfiller = (*Engine)(nil)

func NewEngine(uow port.UnitOfWork, notifier port.EventNotifier, logger *zap.Logger, tracer trace.Tracer) *Engine {
	return &Engine{
		uow:      uow,
		notifier: notifier,
		logger:   logger,
		tracer:   tracer,
	}
}

type stagedEvent struct {
	eventType domain.EventType
	details   map[string]any
}

// Fulfill reserves every line of the order from stock at location, oldest
// entries first. An empty location draws from all locations.
func (e *Engine) Fulfill(ctx context.Context, orderID int64, location string) (_ *domain.Order, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Fulfill", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("stock.location", location),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := e.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !order.IsPending() {
		return nil, domain.ErrOrderNotPending
	}
	if len(order.Items) == 0 {
		return nil, domain.ErrOrderHasNoItems
	}

	if err := e.checkAvailability(ctx, tx, order.Items, location); err != nil {
		return nil, err
	}
	span.AddEvent("availability checked")

	var staged []stagedEvent
	for _, line := range order.Items {
		reserved, err := e.reserveLine(ctx, tx, order.ID, line, location)
		if err != nil {
			return nil, err
		}
		staged = append(staged, reserved...)

		remaining, err := tx.ItemTotal(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		if remaining < domain.LowStockThreshold {
			staged = append(staged, stagedEvent{domain.EventStockLow, map[string]any{
				"itemId":    line.ItemID,
				"remaining": remaining,
			}})
		}
	}

	if err := tx.SetStatus(ctx, order.ID, domain.OrderStatusFulfilled); err != nil {
		return nil, err
	}
	staged = append(staged, stagedEvent{domain.EventOrderFulfilled, map[string]any{
		"orderId": order.ID,
	}})

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusFulfilled
	e.publish(context.WithoutCancel(ctx), staged)

	e.logger.Info("fulfilled order",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("location", location),
		zap.Int("events", len(staged)),
	)
	return order, nil
}

// checkAvailability compares the aggregated demand per item with the locked
// stock total. Rows are locked in ascending item order; the first short item
// in line order is reported.
func (e *Engine) checkAvailability(ctx context.Context, tx port.Tx, lines []domain.OrderItem, location string) error {
	demand := make(map[int64]int, len(lines))
	var firstSeen []int64
	for _, line := range lines {
		if _, seen := demand[line.ItemID]; !seen {
			firstSeen = append(firstSeen, line.ItemID)
		}
		demand[line.ItemID] += line.Quantity
	}

	lockOrder := append([]int64(nil), firstSeen...)
	sort.Slice(lockOrder, func(i, j int) bool { return lockOrder[i] < lockOrder[j] })

	available := make(map[int64]int, len(lockOrder))
	for _, itemID := range lockOrder {
		total, err := tx.AvailableTotal(ctx, itemID, location)
		if err != nil {
			return err
		}
		available[itemID] = total
	}

	for _, itemID := range firstSeen {
		if available[itemID] < demand[itemID] {
			return &domain.InsufficientStockError{
				ItemID:    itemID,
				Needed:    demand[itemID],
				Available: available[itemID],
			}
		}
	}
	return nil
}

func (e *Engine) reserveLine(ctx context.Context, tx port.Tx, orderID int64, line domain.OrderItem, location string) ([]stagedEvent, error) {
	entries, err := tx.ListOldestFirst(ctx, line.ItemID, location)
	if err != nil {
		return nil, err
	}

	var staged []stagedEvent
	remaining := line.Quantity
	for _, entry := range entries {
		if remaining == 0 {
			break
		}
		deduct := min(remaining, entry.Quantity)
		if deduct <= 0 {
			continue
		}

		if err := tx.Decrement(ctx, entry.ID, deduct); err != nil {
			return nil, err
		}
		staged = append(staged, stagedEvent{domain.EventItemReserved, map[string]any{
			"orderId":     orderID,
			"itemId":      line.ItemID,
			"quantity":    deduct,
			"fromStockId": entry.ID,
		}})
		remaining -= deduct
	}

	if remaining > 0 {
		e.logger.Warn("stock shortage during reservation",
			zap.Int64("order_id", orderID),
			zap.Int64("item_id", line.ItemID),
			zap.Int("short", remaining),
		)
		return nil, domain.ErrUnexpectedShortage
	}
	return staged, nil
}

func (e *Engine) publish(ctx context.Context, staged []stagedEvent) {
	for _, ev := range staged {
		if _, err := e.notifier.Record(ctx, ev.eventType, ev.details); err != nil {
			e.logger.Error("record event", zap.String("type", string(ev.eventType)), zap.Error(err))
		}
	}
}
