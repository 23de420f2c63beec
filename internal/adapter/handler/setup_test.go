package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stockkeeper/internal/adapter/eventlog"
	"github.com/rl1809/stockkeeper/internal/adapter/storage"
	"github.com/rl1809/stockkeeper/internal/core/service"
	"github.com/rl1809/stockkeeper/internal/port"
)

type testStack struct {
	store       *storage.SQLStore
	events      *eventlog.Ring
	inventory   *service.InventoryService
	orders      *service.OrderService
	fulfillment *service.FulfillmentService
}

// newTestStack wires the real services over in-memory SQLite.
func newTestStack(t *testing.T, idempotency port.IdempotencyStore) *testStack {
	t.Helper()

	ctx := context.Background()
	db, dialect, err := storage.Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := zaptest.NewLogger(t)
	store := storage.NewSQLStore(db, dialect)
	events := eventlog.NewRing(eventlog.DefaultCapacity)

	engine := service.NewEngine(store, events, logger, noop.NewTracerProvider().Tracer("test"))
	dispatcher := service.NewDispatcher(engine, 2, 16, 5*time.Second, logger)
	t.Cleanup(dispatcher.Close)

	return &testStack{
		store:       store,
		events:      events,
		inventory:   service.NewInventoryService(store, store, events, logger),
		orders:      service.NewOrderService(store, events, logger),
		fulfillment: service.NewFulfillmentService(dispatcher, idempotency, logger),
	}
}

// memClaims is an in-process idempotency store.
type memClaims struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (m *memClaims) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memClaims) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, key)
	return nil
}
