package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
	"github.com/arklim/customer-identity/internal/repository"
)

const (
	defaultActivationPrefix = "activation"

	fieldCode      = "code"
	fieldExpiresAt = "expires_at"
)

// ActivationCodeRepository keeps one pending activation code per account.
type ActivationCodeRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

var _ port.ActivationCodeStore = (*ActivationCodeRepository)(nil)

// NewActivationCodeRepository constructs the store with the provided Redis client and key prefix.
func NewActivationCodeRepository(client *red.Client, keyPrefix string) *ActivationCodeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultActivationPrefix
	}

	return &ActivationCodeRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *ActivationCodeRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Save replaces any previous code for the account. The key expires with the code.
func (r *ActivationCodeRepository) Save(ctx context.Context, accountID domain.AccountID, code domain.ActivationCode) error {
	if accountID <= 0 {
		return errors.New("account id must be positive")
	}
	ttl := code.ExpiresAt().Sub(r.now())
	if ttl <= 0 {
		return errors.New("activation code already expired")
	}

	key := r.key(accountID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:      code.Value(),
		fieldExpiresAt: strconv.FormatInt(code.ExpiresAt().Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store activation code: %w", err)
	}
	return nil
}

// Get returns the stored code or repository.ErrNotFound.
func (r *ActivationCodeRepository) Get(ctx context.Context, accountID domain.AccountID) (*domain.ActivationCode, error) {
	values, err := r.client.HGetAll(ctx, r.key(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall activation code: %w", err)
	}
	if len(values) == 0 || strings.TrimSpace(values[fieldCode]) == "" {
		return nil, repository.ErrNotFound
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	code, err := domain.RestoreActivationCode(values[fieldCode], expiresAt)
	if err != nil {
		return nil, fmt.Errorf("decode activation code: %w", err)
	}
	return &code, nil
}

// Delete removes the code, enforcing single use.
func (r *ActivationCodeRepository) Delete(ctx context.Context, accountID domain.AccountID) error {
	deleted, err := r.client.Del(ctx, r.key(accountID)).Result()
	if err != nil {
		return fmt.Errorf("redis delete activation code: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ActivationCodeRepository) key(accountID domain.AccountID) string {
	return fmt.Sprintf("%s:%d", r.prefix, accountID.Int64())
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}
