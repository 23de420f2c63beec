package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
)

// Mock UnitOfWork. A transaction holds the store mutex for its lifetime and
// works on a private copy that Commit writes back.
type memState struct {
	entries map[int64]domain.StockEntry
	orders  map[int64]domain.Order
	items   map[int64]domain.InventoryItem
}

func (s memState) clone() memState {
	c := memState{
		entries: make(map[int64]domain.StockEntry, len(s.entries)),
		orders:  make(map[int64]domain.Order, len(s.orders)),
		items:   make(map[int64]domain.InventoryItem, len(s.items)),
	}
	for id, e := range s.entries {
		c.entries[id] = e
	}
	for id, o := range s.orders {
		o.Items = append([]domain.OrderItem(nil), o.Items...)
		c.orders[id] = o
	}
	for id, it := range s.items {
		c.items[id] = it
	}
	return c
}

type mockUnitOfWork struct {
	mu     sync.Mutex
	state  memState
	nextID int64

	beginErr  error
	commitErr error
	// listHook rewrites the snapshot returned by ListOldestFirst.
	listHook func([]domain.StockEntry) []domain.StockEntry

	decrements atomic.Int32
	commits    atomic.Int32
	rollbacks  atomic.Int32
}

func newMockUnitOfWork() *mockUnitOfWork {
	return &mockUnitOfWork{
		state: memState{
			entries: make(map[int64]domain.StockEntry),
			orders:  make(map[int64]domain.Order),
			items:   make(map[int64]domain.InventoryItem),
		},
	}
}

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func (m *mockUnitOfWork) addStock(itemID int64, location string, qty int, created time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.state.entries[m.nextID] = domain.StockEntry{
		ID: m.nextID, ItemID: itemID, Location: location, Quantity: qty, CreatedAt: created,
	}
	return m.nextID
}

func (m *mockUnitOfWork) addOrder(id int64, status domain.OrderStatus, lines ...domain.OrderLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := domain.Order{ID: id, OrderNumber: fmt.Sprintf("SO-%d", id), Status: status}
	for i, l := range lines {
		order.Items = append(order.Items, domain.OrderItem{
			ID: int64(i + 1), OrderID: id, ItemID: l.ItemID, Quantity: l.Quantity,
		})
	}
	m.state.orders[id] = order
}

func (m *mockUnitOfWork) entry(id int64) domain.StockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.entries[id]
}

func (m *mockUnitOfWork) orderStatus(id int64) domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.orders[id].Status
}

func (m *mockUnitOfWork) itemTotal(itemID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sumEntries(m.state, itemID, "")
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (port.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	m.mu.Lock()
	return &mockTx{uow: m, state: m.state.clone()}, nil
}

func sumEntries(s memState, itemID int64, location string) int {
	total := 0
	for _, e := range s.entries {
		if e.ItemID == itemID && (location == "" || e.Location == location) {
			total += e.Quantity
		}
	}
	return total
}

type mockTx struct {
	uow   *mockUnitOfWork
	state memState
	done  bool
}

func (t *mockTx) Commit() error {
	if t.done {
		return errors.New("tx already closed")
	}
	t.done = true
	defer t.uow.mu.Unlock()
	if t.uow.commitErr != nil {
		t.uow.rollbacks.Add(1)
		return t.uow.commitErr
	}
	t.uow.state = t.state
	t.uow.commits.Add(1)
	return nil
}

func (t *mockTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.uow.rollbacks.Add(1)
	t.uow.mu.Unlock()
	return nil
}

func (t *mockTx) Receive(_ context.Context, itemID int64, location string, quantity int) (domain.StockEntry, error) {
	for id, e := range t.state.entries {
		if e.ItemID == itemID && e.Location == location {
			e.Quantity += quantity
			t.state.entries[id] = e
			return e, nil
		}
	}
	t.uow.nextID++
	e := domain.StockEntry{ID: t.uow.nextID, ItemID: itemID, Location: location, Quantity: quantity, CreatedAt: time.Now()}
	t.state.entries[e.ID] = e
	return e, nil
}

func (t *mockTx) AvailableTotal(_ context.Context, itemID int64, location string) (int, error) {
	return sumEntries(t.state, itemID, location), nil
}

func (t *mockTx) ListOldestFirst(_ context.Context, itemID int64, location string) ([]domain.StockEntry, error) {
	var entries []domain.StockEntry
	for _, e := range t.state.entries {
		if e.ItemID == itemID && (location == "" || e.Location == location) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	if t.uow.listHook != nil {
		entries = t.uow.listHook(entries)
	}
	return entries, nil
}

func (t *mockTx) Decrement(_ context.Context, stockEntryID int64, amount int) error {
	e, ok := t.state.entries[stockEntryID]
	if !ok || e.Quantity < amount {
		return domain.ErrInvariantViolation
	}
	e.Quantity -= amount
	t.state.entries[stockEntryID] = e
	t.uow.decrements.Add(1)
	return nil
}

func (t *mockTx) ItemTotal(_ context.Context, itemID int64) (int, error) {
	return sumEntries(t.state, itemID, ""), nil
}

func (t *mockTx) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, nil
	}
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return &o, nil
}

func (t *mockTx) SetStatus(_ context.Context, orderID int64, status domain.OrderStatus) error {
	o, ok := t.state.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending {
		return domain.ErrOrderNotPending
	}
	o.Status = status
	t.state.orders[orderID] = o
	return nil
}

func (t *mockTx) CreateOrder(_ context.Context, orderNumber string, lines []domain.OrderLine) (domain.Order, error) {
	t.uow.nextID++
	order := domain.Order{ID: t.uow.nextID, OrderNumber: orderNumber, Status: domain.OrderStatusPending}
	for _, l := range lines {
		order.Items = append(order.Items, domain.OrderItem{OrderID: order.ID, ItemID: l.ItemID, Quantity: l.Quantity})
	}
	t.state.orders[order.ID] = order
	return order, nil
}

// Mock EventNotifier
type mockNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *mockNotifier) Record(_ context.Context, eventType domain.EventType, details map[string]any) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Event{}, m.err
	}
	ev := domain.Event{ID: int64(len(m.events) + 1), Type: eventType, At: time.Now(), Details: details}
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *mockNotifier) List(_ context.Context, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Event, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		out = append(out, m.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockNotifier) types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.EventType, len(m.events))
	for i, ev := range m.events {
		types[i] = ev.Type
	}
	return types
}

func (m *mockNotifier) snapshot() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

// Mock IdempotencyStore
type mockIdempotencyStore struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func newMockIdempotencyStore() *mockIdempotencyStore {
	return &mockIdempotencyStore{claimed: make(map[string]bool)}
}

func (m *mockIdempotencyStore) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, key)
	return nil
}
