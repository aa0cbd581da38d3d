package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
)

const defaultRevocationPrefix = "revoked_before"

// RevocationCursorRepository stores the per-customer "not before" instant
// used to void every token issued up to a point in time.
type RevocationCursorRepository struct {
	client *red.Client
	prefix string
}

var _ port.RevocationCursorStore = (*RevocationCursorRepository)(nil)

// NewRevocationCursorRepository wires a Redis client into a cursor store.
func NewRevocationCursorRepository(client *red.Client, keyPrefix string) *RevocationCursorRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}
	return &RevocationCursorRepository{client: client, prefix: prefix}
}

// SetNotBefore replaces the cursor. The ttl should outlive every token it can affect.
func (r *RevocationCursorRepository) SetNotBefore(ctx context.Context, customerID domain.CustomerID, notBefore time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	if customerID <= 0 {
		return errors.New("customer id must be positive")
	}

	if err := r.client.Set(ctx, r.key(customerID), notBefore.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("redis set revocation cursor: %w", err)
	}
	return nil
}

// GetNotBefore returns the cursor when one is set.
func (r *RevocationCursorRepository) GetNotBefore(ctx context.Context, customerID domain.CustomerID) (time.Time, bool, error) {
	value, err := r.client.Get(ctx, r.key(customerID)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get revocation cursor: %w", err)
	}

	notBefore, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse revocation cursor: %w", err)
	}
	return notBefore, true, nil
}

func (r *RevocationCursorRepository) key(customerID domain.CustomerID) string {
	return fmt.Sprintf("%s:%d", r.prefix, customerID.Int64())
}
