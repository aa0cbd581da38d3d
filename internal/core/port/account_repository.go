package port

import (
	"context"

	"github.com/arklim/customer-identity/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
// Save inserts accounts with version 0 and otherwise performs an optimistic update,
// failing with repository.ErrConflict when the stored version moved on.
type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	FindByID(ctx context.Context, id domain.AccountID) (*domain.Account, error)
	FindByEmail(ctx context.Context, email domain.Email) (*domain.Account, error)
	FindByCustomerID(ctx context.Context, customerID domain.CustomerID) (*domain.Account, error)
	FindActiveByID(ctx context.Context, id domain.AccountID) (*domain.Account, error)
	FindActiveByEmail(ctx context.Context, email domain.Email) (*domain.Account, error)
	FindActiveByCustomerID(ctx context.Context, customerID domain.CustomerID) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email domain.Email) (bool, error)
	ExistsByCustomerID(ctx context.Context, customerID domain.CustomerID) (bool, error)
	Delete(ctx context.Context, id domain.AccountID) error
}

// IDGenerator hands out identifiers for new aggregates.
type IDGenerator interface {
	NextAccountID(ctx context.Context) (domain.AccountID, error)
	NextCustomerID(ctx context.Context) (domain.CustomerID, error)
}
