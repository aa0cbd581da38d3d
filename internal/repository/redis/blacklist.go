package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/customer-identity/internal/core/port"
	"github.com/arklim/customer-identity/internal/infra/security"
)

const defaultBlacklistPrefix = "blacklist"

// BlacklistRepository is the shared token blacklist. Keys are hashes of the token,
// values hold the token expiry in unix nanoseconds and Redis TTL mirrors that expiry.
type BlacklistRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

var _ port.TokenBlacklist = (*BlacklistRepository)(nil)

// NewBlacklistRepository wires a Redis client into a blacklist store.
func NewBlacklistRepository(client *red.Client, keyPrefix string) *BlacklistRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultBlacklistPrefix
	}
	return &BlacklistRepository{client: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the internal clock, used in tests.
func (r *BlacklistRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Set blacklists token until expiresAt. Already expired tokens are not stored.
func (r *BlacklistRepository) Set(ctx context.Context, token string, expiresAt time.Time) error {
	key, err := r.key(token)
	if err != nil {
		return err
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, key, strconv.FormatInt(expiresAt.UnixNano(), 10), ttl).Err(); err != nil {
		return fmt.Errorf("redis set blacklist entry: %w", err)
	}
	return nil
}

// Get returns the stored expiry. Entries past their expiry are removed and reported absent.
func (r *BlacklistRepository) Get(ctx context.Context, token string) (time.Time, bool, error) {
	key, err := r.key(token)
	if err != nil {
		return time.Time{}, false, err
	}

	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get blacklist entry: %w", err)
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse blacklist expiry: %w", err)
	}
	expiresAt := time.Unix(0, nanos).UTC()

	if !expiresAt.After(r.now()) {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return time.Time{}, false, fmt.Errorf("redis evict blacklist entry: %w", err)
		}
		return time.Time{}, false, nil
	}
	return expiresAt, true, nil
}

func (r *BlacklistRepository) Exists(ctx context.Context, token string) (bool, error) {
	_, ok, err := r.Get(ctx, token)
	return ok, err
}

func (r *BlacklistRepository) Delete(ctx context.Context, token string) error {
	key, err := r.key(token)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete blacklist entry: %w", err)
	}
	return nil
}

func (r *BlacklistRepository) key(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token must not be empty")
	}
	return r.prefix + ":" + security.HashToken(token), nil
}
