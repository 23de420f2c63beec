package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "stockkeeper"
	ServiceVersion = "0.1.0"
)

// OpenTelemetry export settings.
const (
	LogsPath      = "/otlp/v1/logs"
	TracesPath    = "/otlp/v1/traces"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	DBDriver string
	DBDSN    string

	// RedisAddr empty keeps events in memory and disables request idempotency.
	RedisAddr string

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint   string
	OtelAuthHeader string

	WorkerCount      int
	QueueSize        int
	EventLogCapacity int
	JobTimeout       time.Duration

	LogLevel  string
	LogFormat string
}

// LoadConfig reads the environment, applying defaults for unset keys.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr:       getEnvOrDefault("GRPC_ADDR", ":50051"),
		DBDriver:       strings.ToLower(getEnvOrDefault("DB_DRIVER", "sqlite")),
		DBDSN:          getEnvOrDefault("DB_DSN", "stockkeeper.db"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnvOrDefault("KAFKA_TOPIC", "stock-events"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
		LogLevel:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
	}

	var err error
	if cfg.WorkerCount, err = positiveInt("WORKER_COUNT", 10); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = positiveInt("QUEUE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.EventLogCapacity, err = positiveInt("EVENT_LOG_CAPACITY", 500); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = positiveDuration("JOB_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	switch cfg.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be sqlite, mysql or postgres, got %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN cannot be empty")
	}
	if cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC cannot be empty")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func positiveInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func positiveDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
