package port

import (
	"context"

	"github.com/arklim/customer-identity/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
