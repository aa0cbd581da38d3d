package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
	"github.com/arklim/customer-identity/internal/repository"
)

const (
	accountsTable = "identity.accounts"

	uniqueViolationCode = "23505"
)

var accountColumns = []string{
	"id",
	"customer_id",
	"email",
	"password_hash",
	"status",
	"login_fail_count",
	"locked_until",
	"created_at",
	"updated_at",
	"last_login_at",
	"version",
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements port.AccountRepository backed by PostgreSQL.
// Writes are guarded by the version column.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Save inserts the account when its version is zero, otherwise updates the row
// whose version matches. On success the aggregate carries the stored version.
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return fmt.Errorf("save account: nil account")
	}
	if account.Version() == 0 {
		return r.insert(ctx, account)
	}
	return r.update(ctx, account)
}

func (r *AccountRepository) insert(ctx context.Context, account *domain.Account) error {
	s := account.Snapshot()
	const version = int64(1)

	stmt, args, err := r.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			s.ID.Int64(),
			s.CustomerID.Int64(),
			s.Email.String(),
			s.Password.Encoded(),
			string(s.Status),
			s.LoginFailCount,
			s.LockedUntil,
			s.CreatedAt,
			s.UpdatedAt,
			s.LastLoginAt,
			version,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	account.SetVersion(version)
	return nil
}

func (r *AccountRepository) update(ctx context.Context, account *domain.Account) error {
	s := account.Snapshot()

	stmt, args, err := r.builder.Update(accountsTable).
		Set("password_hash", s.Password.Encoded()).
		Set("status", string(s.Status)).
		Set("login_fail_count", s.LoginFailCount).
		Set("locked_until", s.LockedUntil).
		Set("updated_at", s.UpdatedAt).
		Set("last_login_at", s.LastLoginAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": s.ID.Int64(), "version": s.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update account sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, squirrel.Eq{"id": s.ID.Int64()})
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}

	account.SetVersion(s.Version + 1)
	return nil
}

// FindByID loads an account regardless of status.
func (r *AccountRepository) FindByID(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	return r.findOne(ctx, squirrel.Eq{"id": id.Int64()})
}

// FindByEmail loads an account by its normalised email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.Account, error) {
	return r.findOne(ctx, squirrel.Eq{"email": email.String()})
}

// FindByCustomerID loads the account owned by customerID.
func (r *AccountRepository) FindByCustomerID(ctx context.Context, customerID domain.CustomerID) (*domain.Account, error) {
	return r.findOne(ctx, squirrel.Eq{"customer_id": customerID.Int64()})
}

func (r *AccountRepository) FindActiveByID(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	return r.findOne(ctx, activeOnly(squirrel.Eq{"id": id.Int64()}))
}

func (r *AccountRepository) FindActiveByEmail(ctx context.Context, email domain.Email) (*domain.Account, error) {
	return r.findOne(ctx, activeOnly(squirrel.Eq{"email": email.String()}))
}

func (r *AccountRepository) FindActiveByCustomerID(ctx context.Context, customerID domain.CustomerID) (*domain.Account, error) {
	return r.findOne(ctx, activeOnly(squirrel.Eq{"customer_id": customerID.Int64()}))
}

// ExistsByEmail reports whether any account, in any status, uses the email.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email domain.Email) (bool, error) {
	return r.exists(ctx, squirrel.Eq{"email": email.String()})
}

// ExistsByCustomerID reports whether the customer already owns an account.
func (r *AccountRepository) ExistsByCustomerID(ctx context.Context, customerID domain.CustomerID) (bool, error) {
	return r.exists(ctx, squirrel.Eq{"customer_id": customerID.Int64()})
}

// Delete removes the row. Status-level deletion goes through Save.
func (r *AccountRepository) Delete(ctx context.Context, id domain.AccountID) error {
	stmt, args, err := r.builder.Delete(accountsTable).
		Where(squirrel.Eq{"id": id.Int64()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, pred squirrel.Sqlizer) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	account, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) exists(ctx context.Context, pred squirrel.Sqlizer) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		Prefix("SELECT EXISTS (").
		From(accountsTable).
		Where(pred).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build account exists sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return exists, nil
}

func activeOnly(pred squirrel.Eq) squirrel.Eq {
	pred["status"] = string(domain.AccountStatusActive)
	return pred
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		id, customerID int64
		email          string
		passwordHash   string
		status         string
		failCount      int
		lockedUntil    *time.Time
		createdAt      time.Time
		updatedAt      time.Time
		lastLoginAt    *time.Time
		version        int64
	)

	if err := row.Scan(
		&id,
		&customerID,
		&email,
		&passwordHash,
		&status,
		&failCount,
		&lockedUntil,
		&createdAt,
		&updatedAt,
		&lastLoginAt,
		&version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	address, err := domain.NewEmail(email)
	if err != nil {
		return nil, fmt.Errorf("decode account %d email: %w", id, err)
	}
	password, err := domain.PasswordFromEncoded(passwordHash)
	if err != nil {
		return nil, fmt.Errorf("decode account %d password: %w", id, err)
	}
	accountStatus, err := domain.ParseAccountStatus(status)
	if err != nil {
		return nil, fmt.Errorf("decode account %d status: %w", id, err)
	}

	return domain.RestoreAccount(domain.AccountSnapshot{
		ID:             domain.AccountID(id),
		CustomerID:     domain.CustomerID(customerID),
		Email:          address,
		Password:       password,
		Status:         accountStatus,
		LoginFailCount: failCount,
		LockedUntil:    lockedUntil,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		LastLoginAt:    lastLoginAt,
		Version:        version,
	}), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
