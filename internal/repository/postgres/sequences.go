package postgres

import (
	"context"
	"fmt"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
)

const (
	accountIDSequence  = "identity.account_id_seq"
	customerIDSequence = "identity.customer_id_seq"
)

// SequenceGenerator hands out identifiers from database sequences.
type SequenceGenerator struct {
	exec pgExecutor
}

var _ port.IDGenerator = (*SequenceGenerator)(nil)

// NewSequenceGenerator constructs a generator backed by any pgExecutor.
func NewSequenceGenerator(exec pgExecutor) *SequenceGenerator {
	return &SequenceGenerator{exec: exec}
}

func (g *SequenceGenerator) NextAccountID(ctx context.Context) (domain.AccountID, error) {
	value, err := g.next(ctx, accountIDSequence)
	if err != nil {
		return 0, err
	}
	return domain.NewAccountID(value)
}

func (g *SequenceGenerator) NextCustomerID(ctx context.Context) (domain.CustomerID, error) {
	value, err := g.next(ctx, customerIDSequence)
	if err != nil {
		return 0, err
	}
	return domain.NewCustomerID(value)
}

func (g *SequenceGenerator) next(ctx context.Context, sequence string) (int64, error) {
	var value int64
	if err := g.exec.QueryRow(ctx, "SELECT nextval($1::regclass)", sequence).Scan(&value); err != nil {
		return 0, fmt.Errorf("nextval %s: %w", sequence, err)
	}
	return value, nil
}
