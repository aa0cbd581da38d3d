package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/infra/config"
)

// HashedBlacklist accepts entries keyed by the token hash carried in revocation events.
type HashedBlacklist interface {
	SetHashed(hash string, expiresAt time.Time) error
}

// TokenRevocationConsumer keeps a local blacklist in step with revocations made by peer instances.
type TokenRevocationConsumer struct {
	blacklist HashedBlacklist
	logger    *zap.Logger
	now       func() time.Time
}

// NewTokenRevocationConsumer constructs a consumer feeding blacklist.
func NewTokenRevocationConsumer(blacklist HashedBlacklist, logger *zap.Logger) *TokenRevocationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenRevocationConsumer{
		blacklist: blacklist,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the consumer clock for deterministic testing.
func (c *TokenRevocationConsumer) WithClock(clock func() time.Time) *TokenRevocationConsumer {
	if clock != nil {
		c.now = clock
	}
	return c
}

// HandleMessage decodes the envelope and applies token revocations. Other event types are skipped.
func (c *TokenRevocationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	if envelope.EventType != domain.EventTokenRevoked {
		return nil
	}

	var event domain.TokenRevokedEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return fmt.Errorf("decode token revoked event: %w", err)
	}
	return c.HandleEvent(ctx, event)
}

// HandleEvent records the revocation until the token's own expiry.
func (c *TokenRevocationConsumer) HandleEvent(_ context.Context, event domain.TokenRevokedEvent) error {
	if c.blacklist == nil {
		return nil
	}
	if !event.ExpiresAt.After(c.now()) {
		c.logger.Debug("skip revocation of expired token", zap.String("jti", event.TokenID))
		return nil
	}

	if lag := c.now().Sub(event.OccurredAt()); lag > 0 {
		c.logger.Debug("applying token revocation", zap.String("jti", event.TokenID), zap.Duration("lag", lag))
	}

	if err := c.blacklist.SetHashed(event.TokenHash, event.ExpiresAt); err != nil {
		return fmt.Errorf("blacklist revoked token: %w", err)
	}
	return nil
}

// Setup is run at the beginning of a new consumer group session.
func (c *TokenRevocationConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is run at the end of a consumer group session.
func (c *TokenRevocationConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim applies every message of the claim. Undecodable messages are logged and skipped.
func (c *TokenRevocationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("token revocation message rejected",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Run joins the consumer group and consumes topic until ctx is cancelled.
// Each instance should use its own group so every instance sees every revocation.
func (c *TokenRevocationConsumer) Run(ctx context.Context, group sarama.ConsumerGroup, topic string) error {
	go func() {
		for err := range group.Errors() {
			c.logger.Warn("kafka consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := group.Consume(ctx, []string{topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume %s: %w", topic, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// NewConsumerGroup connects a consumer group using the shared Sarama settings.
func NewConsumerGroup(cfg config.KafkaSettings, groupID string) (sarama.ConsumerGroup, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return group, nil
}

var _ sarama.ConsumerGroupHandler = (*TokenRevocationConsumer)(nil)
