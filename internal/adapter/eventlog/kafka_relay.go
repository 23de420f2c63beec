package eventlog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
)

// Producer is the subset of a Kafka writer the relay needs.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaRelay records events with the wrapped notifier and forwards each
// recorded event to a Kafka topic. Publishing failures are logged and never
// fail the Record call.
type KafkaRelay struct {
	inner    port.EventNotifier
	producer Producer
	logger   *zap.Logger
}

var _ port.EventNotifier = (*KafkaRelay)(nil)

func NewKafkaRelay(inner port.EventNotifier, producer Producer, logger *zap.Logger) *KafkaRelay {
	return &KafkaRelay{inner: inner, producer: producer, logger: logger}
}

func (k *KafkaRelay) Record(ctx context.Context, eventType domain.EventType, details map[string]any) (domain.Event, error) {
	ev, err := k.inner.Record(ctx, eventType, details)
	if err != nil {
		return ev, err
	}

	value, err := json.Marshal(ev)
	if err != nil {
		k.logger.Error("encode event for kafka", zap.Int64("event_id", ev.ID), zap.Error(err))
		return ev, nil
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.ID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := k.producer.WriteMessage(ctx, msg); err != nil {
		k.logger.Warn("publish event", zap.Int64("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.Error(err))
	}
	return ev, nil
}

func (k *KafkaRelay) List(ctx context.Context, limit int) ([]domain.Event, error) {
	return k.inner.List(ctx, limit)
}

func (k *KafkaRelay) Close() error {
	return k.producer.Close()
}

// NewKafkaWriter builds an async, trace-instrumented writer for topic.
func NewKafkaWriter(brokers []string, topic string, tp trace.TracerProvider, logger *zap.Logger) (Producer, error) {
	base := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka batch failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}

	writer, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", "stockkeeper"),
			},
		),
	)
	if err != nil {
		return nil, err
	}
	return writer, nil
}
