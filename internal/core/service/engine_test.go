package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stockkeeper/internal/core/domain"
)

func newTestEngine(t *testing.T, uow *mockUnitOfWork, notifier *mockNotifier) *Engine {
	return NewEngine(uow, notifier, zaptest.NewLogger(t), noop.NewTracerProvider().Tracer("test"))
}

func line(itemID int64, qty int) domain.OrderLine {
	return domain.OrderLine{ItemID: itemID, Quantity: qty}
}

func TestFulfill_SingleEntry(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	entryID := uow.addStock(1, "A1", 100, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10))

	order, err := engine.Fulfill(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusFulfilled {
		t.Errorf("expected FULFILLED, got %s", order.Status)
	}
	if len(order.Items) != 1 {
		t.Errorf("expected order lines to be returned, got %d", len(order.Items))
	}

	if got := uow.entry(entryID).Quantity; got != 90 {
		t.Errorf("expected entry 90, got %d", got)
	}
	if uow.orderStatus(1) != domain.OrderStatusFulfilled {
		t.Error("expected persisted status FULFILLED")
	}

	events := notifier.snapshot()
	wantTypes := []domain.EventType{domain.EventItemReserved, domain.EventOrderFulfilled}
	if !reflect.DeepEqual(notifier.types(), wantTypes) {
		t.Fatalf("expected events %v, got %v", wantTypes, notifier.types())
	}
	reserved := events[0].Details
	if reserved["quantity"] != 10 || reserved["fromStockId"] != entryID || reserved["orderId"] != int64(1) || reserved["itemId"] != int64(1) {
		t.Errorf("unexpected item_reserved payload: %v", reserved)
	}
	if events[1].Details["orderId"] != int64(1) {
		t.Errorf("unexpected order_fulfilled payload: %v", events[1].Details)
	}
}

func TestFulfill_FIFOAcrossEntries(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	first := uow.addStock(1, "A1", 20, baseTime)
	second := uow.addStock(1, "B1", 15, baseTime.Add(time.Hour))
	uow.addOrder(1, domain.OrderStatusPending, line(1, 25))

	if _, err := engine.Fulfill(context.Background(), 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := uow.entry(first).Quantity; got != 0 {
		t.Errorf("expected first entry 0, got %d", got)
	}
	if got := uow.entry(second).Quantity; got != 10 {
		t.Errorf("expected second entry 10, got %d", got)
	}

	events := notifier.snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %v", notifier.types())
	}
	if events[0].Details["fromStockId"] != first || events[0].Details["quantity"] != 20 {
		t.Errorf("unexpected first reservation: %v", events[0].Details)
	}
	if events[1].Details["fromStockId"] != second || events[1].Details["quantity"] != 5 {
		t.Errorf("unexpected second reservation: %v", events[1].Details)
	}
	if events[2].Type != domain.EventOrderFulfilled {
		t.Errorf("expected order_fulfilled last, got %s", events[2].Type)
	}
}

func TestFulfill_FIFOTieBrokenByID(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	low := uow.addStock(1, "A1", 5, baseTime)
	high := uow.addStock(1, "B1", 50, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 7))

	if _, err := engine.Fulfill(context.Background(), 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uow.entry(low).Quantity != 0 || uow.entry(high).Quantity != 48 {
		t.Errorf("expected lower id drained first, got %d and %d", uow.entry(low).Quantity, uow.entry(high).Quantity)
	}
}

func TestFulfill_InsufficientStock(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	entryID := uow.addStock(1, "A1", 5, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10))

	_, err := engine.Fulfill(context.Background(), 1, "")
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %T", err)
	}
	if *stockErr != (domain.InsufficientStockError{ItemID: 1, Needed: 10, Available: 5}) {
		t.Errorf("unexpected payload: %+v", stockErr)
	}

	if uow.decrements.Load() != 0 {
		t.Errorf("expected no decrements, got %d", uow.decrements.Load())
	}
	if uow.entry(entryID).Quantity != 5 {
		t.Error("expected stock unchanged")
	}
	if uow.orderStatus(1) != domain.OrderStatusPending {
		t.Error("expected order to stay PENDING")
	}
	if len(notifier.types()) != 0 {
		t.Errorf("expected no events, got %v", notifier.types())
	}
	if uow.rollbacks.Load() != 1 || uow.commits.Load() != 0 {
		t.Errorf("expected one rollback and no commit, got %d/%d", uow.rollbacks.Load(), uow.commits.Load())
	}
}

func TestFulfill_StockLowAfterReservation(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	uow.addStock(1, "A1", 8, baseTime)
	uow.addStock(1, "B1", 7, baseTime.Add(time.Minute))
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10))

	if _, err := engine.Fulfill(context.Background(), 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTypes := []domain.EventType{
		domain.EventItemReserved,
		domain.EventItemReserved,
		domain.EventStockLow,
		domain.EventOrderFulfilled,
	}
	if !reflect.DeepEqual(notifier.types(), wantTypes) {
		t.Fatalf("expected %v, got %v", wantTypes, notifier.types())
	}

	low := notifier.snapshot()[2].Details
	if low["itemId"] != int64(1) || low["remaining"] != 5 {
		t.Errorf("unexpected stock_low payload: %v", low)
	}
}

func TestFulfill_NoStockLowAtThreshold(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	uow.addStock(1, "A1", 20, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10))

	if _, err := engine.Fulfill(context.Background(), 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, typ := range notifier.types() {
		if typ == domain.EventStockLow {
			t.Error("did not expect stock_low when remaining equals the threshold")
		}
	}
}

func TestFulfill_StockLowIsItemWide(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	scoped := uow.addStock(1, "A1", 10, baseTime)
	uow.addStock(1, "B1", 50, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10))

	if _, err := engine.Fulfill(context.Background(), 1, "A1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uow.entry(scoped).Quantity != 0 {
		t.Errorf("expected A1 drained, got %d", uow.entry(scoped).Quantity)
	}
	// A1 is empty but 50 remain at B1.
	for _, typ := range notifier.types() {
		if typ == domain.EventStockLow {
			t.Error("did not expect stock_low with 50 remaining item-wide")
		}
	}
}

func TestFulfill_LocationScoped(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	older := uow.addStock(1, "A1", 100, baseTime)
	scoped := uow.addStock(1, "B1", 4, baseTime.Add(time.Hour))
	uow.addOrder(1, domain.OrderStatusPending, line(1, 5))

	_, err := engine.Fulfill(context.Background(), 1, "B1")
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Available != 4 {
		t.Fatalf("expected insufficient stock at B1 with 4 available, got: %v", err)
	}

	uow.addOrder(2, domain.OrderStatusPending, line(1, 3))
	if _, err := engine.Fulfill(context.Background(), 2, "B1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uow.entry(older).Quantity != 100 {
		t.Error("expected A1 untouched by a B1-scoped fulfillment")
	}
	if uow.entry(scoped).Quantity != 1 {
		t.Errorf("expected B1 at 1, got %d", uow.entry(scoped).Quantity)
	}
}

func TestFulfill_MultipleLinesInOrder(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	uow.addStock(1, "A1", 30, baseTime)
	uow.addStock(2, "A1", 12, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(2, 4), line(1, 5))

	if _, err := engine.Fulfill(context.Background(), 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := notifier.snapshot()
	wantTypes := []domain.EventType{
		domain.EventItemReserved,
		domain.EventStockLow,
		domain.EventItemReserved,
		domain.EventOrderFulfilled,
	}
	if !reflect.DeepEqual(notifier.types(), wantTypes) {
		t.Fatalf("expected %v, got %v", wantTypes, notifier.types())
	}
	if events[0].Details["itemId"] != int64(2) || events[2].Details["itemId"] != int64(1) {
		t.Error("expected lines processed in line order")
	}
	if events[1].Details["remaining"] != 8 {
		t.Errorf("expected remaining 8 for item 2, got %v", events[1].Details["remaining"])
	}
}

func TestFulfill_AggregatesDemandPerItem(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	entryID := uow.addStock(1, "A1", 15, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10), line(1, 10))

	_, err := engine.Fulfill(context.Background(), 1, "")
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.Needed != 20 || stockErr.Available != 15 {
		t.Errorf("expected needed 20 available 15, got %+v", stockErr)
	}
	if uow.entry(entryID).Quantity != 15 {
		t.Error("expected stock unchanged")
	}
}

func TestFulfill_ReportsFirstShortItemInLineOrder(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	uow.addStock(1, "A1", 1, baseTime)
	uow.addStock(2, "A1", 1, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(2, 5), line(1, 5))

	_, err := engine.Fulfill(context.Background(), 1, "")
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ItemID != 2 {
		t.Fatalf("expected item 2 reported first, got: %v", err)
	}
}

func TestFulfill_Preconditions(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	uow.addStock(1, "A1", 100, baseTime)
	uow.addOrder(2, domain.OrderStatusFulfilled, line(1, 1))
	uow.addOrder(3, domain.OrderStatusPending)

	cases := []struct {
		name    string
		orderID int64
		want    error
		kind    error
	}{
		{"missing order", 1, domain.ErrOrderNotFound, domain.ErrNotFound},
		{"already fulfilled", 2, domain.ErrOrderNotPending, domain.ErrInvalidState},
		{"no lines", 3, domain.ErrOrderHasNoItems, domain.ErrInvalidState},
	}

	for _, tc := range cases {
		_, err := engine.Fulfill(context.Background(), tc.orderID, "")
		if !errors.Is(err, tc.want) || !errors.Is(err, tc.kind) {
			t.Errorf("%s: expected %v, got: %v", tc.name, tc.want, err)
		}
	}

	if uow.decrements.Load() != 0 || len(notifier.types()) != 0 {
		t.Error("expected no side effects from failed preconditions")
	}
}

func TestFulfill_SecondAttemptFailsAndChangesNothing(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	entryID := uow.addStock(1, "A1", 100, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10))

	if _, err := engine.Fulfill(context.Background(), 1, ""); err != nil {
		t.Fatalf("first fulfill: %v", err)
	}
	eventsAfterFirst := len(notifier.types())

	_, err := engine.Fulfill(context.Background(), 1, "")
	if !errors.Is(err, domain.ErrOrderNotPending) {
		t.Errorf("expected ErrOrderNotPending, got: %v", err)
	}
	if uow.entry(entryID).Quantity != 90 {
		t.Errorf("expected 90 after second attempt, got %d", uow.entry(entryID).Quantity)
	}
	if len(notifier.types()) != eventsAfterFirst {
		t.Error("expected no events from the failed attempt")
	}
}

func TestFulfill_UnexpectedShortageRollsBack(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	first := uow.addStock(1, "A1", 6, baseTime)
	uow.addStock(1, "B1", 6, baseTime.Add(time.Minute))
	uow.addOrder(1, domain.OrderStatusPending, line(1, 10))

	// Phase B sees only the first entry, as if a concurrent writer drained the rest.
	uow.listHook = func(entries []domain.StockEntry) []domain.StockEntry {
		return entries[:1]
	}

	_, err := engine.Fulfill(context.Background(), 1, "")
	if !errors.Is(err, domain.ErrUnexpectedShortage) {
		t.Fatalf("expected ErrUnexpectedShortage, got: %v", err)
	}
	if uow.entry(first).Quantity != 6 {
		t.Errorf("expected partial decrement rolled back, got %d", uow.entry(first).Quantity)
	}
	if uow.orderStatus(1) != domain.OrderStatusPending {
		t.Error("expected order to stay PENDING")
	}
	if len(notifier.types()) != 0 {
		t.Errorf("expected staged events discarded, got %v", notifier.types())
	}
}

func TestFulfill_DecrementGuardPropagates(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	first := uow.addStock(1, "A1", 10, baseTime)
	uow.addStock(1, "B1", 10, baseTime.Add(time.Minute))
	uow.addOrder(1, domain.OrderStatusPending, line(1, 15))

	// A stale snapshot reports more than the first row holds.
	uow.listHook = func(entries []domain.StockEntry) []domain.StockEntry {
		entries[0].Quantity = 15
		return entries
	}

	_, err := engine.Fulfill(context.Background(), 1, "")
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got: %v", err)
	}
	if uow.commits.Load() != 0 {
		t.Error("expected no commit")
	}
	if uow.entry(first).Quantity != 10 {
		t.Errorf("expected first entry unchanged, got %d", uow.entry(first).Quantity)
	}
}

func TestFulfill_CommitFailureEmitsNothing(t *testing.T) {
	uow := newMockUnitOfWork()
	uow.commitErr = errors.New("connection reset")
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	uow.addStock(1, "A1", 10, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 1))

	_, err := engine.Fulfill(context.Background(), 1, "")
	if !errors.Is(err, uow.commitErr) {
		t.Fatalf("expected commit error, got: %v", err)
	}
	if len(notifier.types()) != 0 {
		t.Errorf("expected no events, got %v", notifier.types())
	}
}

func TestFulfill_NotifierFailureDoesNotFail(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{err: errors.New("log unavailable")}
	engine := newTestEngine(t, uow, notifier)

	uow.addStock(1, "A1", 10, baseTime)
	uow.addOrder(1, domain.OrderStatusPending, line(1, 1))

	order, err := engine.Fulfill(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusFulfilled {
		t.Errorf("expected FULFILLED, got %s", order.Status)
	}
}

func TestFulfill_BeginFailure(t *testing.T) {
	uow := newMockUnitOfWork()
	uow.beginErr = errors.New("pool exhausted")
	engine := newTestEngine(t, uow, &mockNotifier{})

	_, err := engine.Fulfill(context.Background(), 1, "")
	if !errors.Is(err, uow.beginErr) {
		t.Errorf("expected begin error, got: %v", err)
	}
}

func TestFulfill_ConcurrentNoOversell(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, uow, notifier)

	initialStock := 20
	totalOrders := 50

	uow.addStock(1, "A1", 12, baseTime)
	uow.addStock(1, "B1", initialStock-12, baseTime.Add(time.Minute))
	for i := 1; i <= totalOrders; i++ {
		uow.addOrder(int64(i), domain.OrderStatusPending, line(1, 1))
	}

	var successCount, shortCount atomic.Int32
	var wg sync.WaitGroup

	for i := 1; i <= totalOrders; i++ {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			_, err := engine.Fulfill(context.Background(), orderID, "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				shortCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if shortCount.Load() != int32(totalOrders-initialStock) {
		t.Errorf("expected %d shortages, got %d", totalOrders-initialStock, shortCount.Load())
	}
	if total := uow.itemTotal(1); total != 0 {
		t.Errorf("expected stock 0, got %d", total)
	}
}
