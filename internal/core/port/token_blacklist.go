package port

import (
	"context"
	"time"

	"github.com/arklim/customer-identity/internal/core/domain"
)

// TokenBlacklist stores revoked token strings until their natural expiry.
// Implementations must treat entries past expiresAt as absent and evict them on read.
type TokenBlacklist interface {
	Set(ctx context.Context, token string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (time.Time, bool, error)
	Exists(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
}

// RevocationCursorStore keeps the per-customer instant before which every issued token is void.
type RevocationCursorStore interface {
	SetNotBefore(ctx context.Context, customerID domain.CustomerID, notBefore time.Time, ttl time.Duration) error
	GetNotBefore(ctx context.Context, customerID domain.CustomerID) (time.Time, bool, error)
}

// ActivationCodeStore persists pending activation codes keyed by account.
type ActivationCodeStore interface {
	Save(ctx context.Context, accountID domain.AccountID, code domain.ActivationCode) error
	Get(ctx context.Context, accountID domain.AccountID) (*domain.ActivationCode, error)
	Delete(ctx context.Context, accountID domain.AccountID) error
}
