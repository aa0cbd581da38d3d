package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when kafka.enabled is false.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// redactable events carry secrets that must not reach the logs.
type redactable interface {
	Redacted() domain.Event
}

func (p *StubPublisher) Publish(_ context.Context, event domain.Event) error {
	if r, ok := event.(redactable); ok {
		event = r.Redacted()
	}
	p.logger.Info("stub event published",
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_id", event.AggregateID()),
		zap.Time("occurred_at", event.OccurredAt()),
		zap.Any("payload", event),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
