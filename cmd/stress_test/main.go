package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/adapter/eventlog"
	"github.com/rl1809/stockkeeper/internal/adapter/storage"
	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/core/service"
	"github.com/rl1809/stockkeeper/internal/platform/logging"
)

const (
	initialStock  = 20
	totalRequests = 50
	workerCount   = 8
	queueSize     = 100
)

func main() {
	logger, err := logging.New("warn", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, dialect, err := storage.Open(ctx, "sqlite", ":memory:")
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		logger.Fatal("failed to migrate", zap.Error(err))
	}

	store := storage.NewSQLStore(db, dialect)
	events := eventlog.NewRing(eventlog.DefaultCapacity)

	inventory := service.NewInventoryService(store, store, events, logger)
	orders := service.NewOrderService(store, events, logger)
	engine := service.NewEngine(store, events, logger, noop.NewTracerProvider().Tracer("stress"))
	dispatcher := service.NewDispatcher(engine, workerCount, queueSize, 5*time.Second, logger)
	defer dispatcher.Close()
	fulfillment := service.NewFulfillmentService(dispatcher, nil, logger)

	// Seed stock split across two receipts so reservations cross entries.
	item, err := inventory.CreateItem(ctx, "Stress widget", "STRESS-1", "part", "pcs")
	if err != nil {
		logger.Fatal("failed to create item", zap.Error(err))
	}
	if _, err := inventory.AddStock(ctx, item.ID, "WH-A", initialStock/2); err != nil {
		logger.Fatal("failed to add stock", zap.Error(err))
	}
	if _, err := inventory.AddStock(ctx, item.ID, "WH-B", initialStock-initialStock/2); err != nil {
		logger.Fatal("failed to add stock", zap.Error(err))
	}

	orderIDs := make([]int64, totalRequests)
	for i := range orderIDs {
		order, err := orders.CreateOrder(ctx, fmt.Sprintf("STRESS-%d", i), []domain.OrderLine{{ItemID: item.ID, Quantity: 1}})
		if err != nil {
			logger.Fatal("failed to create order", zap.Error(err))
		}
		orderIDs[i] = order.ID
	}

	// Counters
	var successCount, shortCount, errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()

			_, err := fulfillment.Fulfill(ctx, uuid.New().String(), orderID, "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				shortCount.Add(1)
			default:
				errorCount.Add(1)
				logger.Warn("fulfill failed", zap.Int64("order_id", orderID), zap.Error(err))
			}
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	short := shortCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Fulfilled:        %d\n", success)
	fmt.Printf("Short:            %d\n", short)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == int32(initialStock) && short == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders fulfilled, %d short\n", initialStock, totalRequests-initialStock)
	} else {
		failed = true
		fmt.Printf("FAIL: Expected %d fulfilled/%d short, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, short)
	}

	finalStock, err := inventory.Available(ctx, item.ID, "")
	if err != nil {
		logger.Fatal("failed to read stock", zap.Error(err))
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		failed = true
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}

	if failed {
		os.Exit(1)
	}
}
