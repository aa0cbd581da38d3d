package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
	"github.com/arklim/customer-identity/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
// Messages are keyed by aggregate id so events of one account stay ordered.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     json.RawMessage  `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

type identifiedEvent interface {
	ID() string
}

// Publish wraps the event in the envelope and hands it to the async producer.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	if event == nil {
		return fmt.Errorf("publish: nil event")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.EventType(), err)
	}

	id := ""
	if identified, ok := event.(identifiedEvent); ok {
		id = identified.ID()
	}
	if id == "" {
		id = uuid.NewString()
	}

	ts := event.OccurredAt()
	if ts.IsZero() {
		ts = time.Now()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:     id,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(event.EventType()),
		Key:   sarama.StringEncoder(event.AggregateID()),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.EventPublisher = (*EventPublisher)(nil)
