package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
}

// RateLimitRepository persists rate-limit attempts in Redis sorted sets scored by unix nanoseconds.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Window drops attempts older than the window ending at reference and reports how many remain
// together with the oldest of them.
func (r *RateLimitRepository) Window(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, errors.New("window must be positive")
	}

	key := r.key(identifier)
	lower := strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	upper := strconv.FormatInt(reference.UnixNano(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+lower)
	count := pipe.ZCount(ctx, key, lower, upper)
	oldest := pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: lower, Max: upper, Count: 1})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit window: %w", err)
	}

	var first time.Time
	if entries := oldest.Val(); len(entries) > 0 {
		first = time.Unix(0, int64(entries[0].Score))
	}
	return int(count.Val()), first, nil
}

// RecordAttempt adds an attempt at the supplied instant and keeps the key alive for one window.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time, window time.Duration) error {
	key := r.key(identifier)
	member := redis.Z{
		Score:  float64(at.UnixNano()),
		Member: strconv.FormatInt(at.UnixNano(), 10) + "-" + uuid.NewString(),
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, member)
	if window > 0 {
		pipe.PExpire(ctx, key, window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}
