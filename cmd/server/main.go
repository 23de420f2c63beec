package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stockkeeper/internal/adapter/eventlog"
	"github.com/rl1809/stockkeeper/internal/adapter/handler"
	"github.com/rl1809/stockkeeper/internal/adapter/storage"
	"github.com/rl1809/stockkeeper/internal/config"
	"github.com/rl1809/stockkeeper/internal/core/service"
	"github.com/rl1809/stockkeeper/internal/platform/logging"
	"github.com/rl1809/stockkeeper/internal/platform/observability"
	"github.com/rl1809/stockkeeper/internal/port"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// Logger settings come from the config, so fall back to a default logger.
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry
	logShutdown, err := observability.SetupLoggingSDK(ctx, cfg)
	if err != nil {
		logger.Error("failed to setup otel logging", zap.Error(err))
	}
	tp, traceShutdown, err := observability.SetupTracingSDK(ctx, cfg)
	if err != nil {
		logger.Error("failed to setup otel tracing", zap.Error(err))
	}
	if observability.Enabled(cfg) {
		logger = logging.WithOTel(logger, config.ServiceName)
	}
	defer logger.Sync()

	// Initialize database
	db, dialect, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	logger.Info("connected to database", zap.String("driver", dialect.Name))
	store := storage.NewSQLStore(db, dialect)

	// Initialize event log and idempotency store
	var (
		events      port.EventNotifier
		idempotency port.IdempotencyStore
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

		redisAdapter := storage.NewRedisAdapter(rdb, cfg.EventLogCapacity)
		events = redisAdapter
		idempotency = redisAdapter
	} else {
		events = eventlog.NewRing(cfg.EventLogCapacity)
		logger.Info("using in-memory event log", zap.Int("capacity", cfg.EventLogCapacity))
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := eventlog.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, tp, logger)
		if err != nil {
			return err
		}
		relay := eventlog.NewKafkaRelay(events, producer, logger)
		defer relay.Close()
		events = relay
		logger.Info("relaying events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Initialize services
	engine := service.NewEngine(store, events, logger, tp.Tracer(config.ServiceName))
	dispatcher := service.NewDispatcher(engine, cfg.WorkerCount, cfg.QueueSize, cfg.JobTimeout, logger)
	inventoryService := service.NewInventoryService(store, store, events, logger)
	orderService := service.NewOrderService(store, events, logger)
	fulfillmentService := service.NewFulfillmentService(dispatcher, idempotency, logger)
	logger.Info("started workers", zap.Int("count", cfg.WorkerCount))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterFulfillmentServer(grpcServer, handler.NewGRPCHandler(orderService, fulfillmentService, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(inventoryService, orderService, fulfillmentService, events, logger)
	app := handler.NewApp(httpHandler, logger, cfg.LogFormat == "console")
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	dispatcher.Close()
	logger.Info("workers stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := observability.Shutdown(shutdownCtx, traceShutdown, logShutdown); err != nil {
		logger.Error("otel shutdown error", zap.Error(err))
	}

	logger.Info("telemetry flushed")
	return nil
}
