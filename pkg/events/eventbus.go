package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	AggregateID   string                 `json:"aggregateId"`
	AggregateType string                 `json:"aggregateType"`
	Timestamp     time.Time              `json:"timestamp"`
	Version       int                    `json:"version"`
	Payload       map[string]interface{} `json:"payload"`
	Metadata      EventMetadata          `json:"metadata"`
}

type EventMetadata struct {
	CorrelationID string `json:"correlationId"`
	TraceID       string `json:"traceId"`
	SpanID        string `json:"spanId"`
}

type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// messageWriter is the part of kafka.Writer the bus uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaEventBus struct {
	config KafkaConfig
	writer messageWriter
}

func NewKafkaEventBus(config KafkaConfig) (*KafkaEventBus, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka event bus needs at least one broker")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka event bus needs a topic")
	}

	// Messages are keyed by aggregate so events of one index stay ordered.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return newKafkaEventBus(config, writer), nil
}

func newKafkaEventBus(config KafkaConfig, writer messageWriter) *KafkaEventBus {
	return &KafkaEventBus{
		config: config,
		writer: writer,
	}
}

func (k *KafkaEventBus) Publish(ctx context.Context, event Event) error {
	// Ensure event has an ID
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "trace-id", Value: []byte(event.Metadata.TraceID)},
			{Key: "correlation-id", Value: []byte(event.Metadata.CorrelationID)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %s to %s: %w", event.Type, k.config.Topic, err)
	}
	return nil
}

func (k *KafkaEventBus) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Event builder helper
type EventBuilder struct {
	event Event
}

func NewEventBuilder(eventType string) *EventBuilder {
	return &EventBuilder{
		event: Event{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Version:   1,
			Payload:   make(map[string]interface{}),
		},
	}
}

func (b *EventBuilder) WithAggregateID(id string) *EventBuilder {
	b.event.AggregateID = id
	return b
}

func (b *EventBuilder) WithAggregateType(aggregateType string) *EventBuilder {
	b.event.AggregateType = aggregateType
	return b
}

func (b *EventBuilder) WithPayload(key string, value interface{}) *EventBuilder {
	b.event.Payload[key] = value
	return b
}

func (b *EventBuilder) WithCorrelationID(id string) *EventBuilder {
	b.event.Metadata.CorrelationID = id
	return b
}

func (b *EventBuilder) WithTraceID(id string) *EventBuilder {
	b.event.Metadata.TraceID = id
	return b
}

func (b *EventBuilder) WithSpanID(id string) *EventBuilder {
	b.event.Metadata.SpanID = id
	return b
}

func (b *EventBuilder) Build() Event {
	return b.event
}

// Index provisioning events
const (
	IndexCreated       = "index.created"
	IndexAlreadyExists = "index.already_exists"
	IndexFailed        = "index.failed"
)
