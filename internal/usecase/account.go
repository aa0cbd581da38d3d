package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
	"github.com/arklim/customer-identity/internal/infra/logger"
	"github.com/arklim/customer-identity/internal/repository"
)

// Login outcomes reported to AuthMetrics.
const (
	loginOutcomeSuccess       = "success"
	loginOutcomeLocked        = "locked"
	loginOutcomeInvalidStatus = "invalid_status"
	loginOutcomeWrongPassword = "wrong_password"
)

// AccountService orchestrates the Account aggregate against its repository and password encoder.
type AccountService struct {
	accounts port.AccountRepository
	ids      port.IDGenerator
	encoder  port.PasswordEncoder
	events   port.EventPublisher
	metrics  port.AuthMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccountService constructs an AccountService. events and metrics may be nil.
func NewAccountService(
	accounts port.AccountRepository,
	ids port.IDGenerator,
	encoder port.PasswordEncoder,
	events port.EventPublisher,
	metrics port.AuthMetrics,
	logger *zap.Logger,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &AccountService{
		accounts: accounts,
		ids:      ids,
		encoder:  encoder,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *AccountService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateAccount registers a PENDING account for customerID.
func (s *AccountService) CreateAccount(ctx context.Context, customerID domain.CustomerID, email, rawPassword string) (*domain.Account, error) {
	if _, err := domain.NewCustomerID(customerID.Int64()); err != nil {
		return nil, err
	}
	address, err := domain.NewEmail(email)
	if err != nil {
		return nil, err
	}
	password, err := domain.NewPassword(rawPassword)
	if err != nil {
		return nil, err
	}

	exists, err := s.accounts.ExistsByEmail(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("check email uniqueness: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrDuplicateResource)
	}
	exists, err = s.accounts.ExistsByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("check customer uniqueness: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: customer already has an account", domain.ErrDuplicateResource)
	}

	encoded, err := s.encodePassword(password)
	if err != nil {
		return nil, err
	}
	id, err := s.ids.NextAccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate account id: %w", err)
	}

	account, err := domain.NewAccount(id, customerID, address, encoded, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.Int64("account_id", id.Int64()),
		zap.Int64("customer_id", customerID.Int64()),
		zap.String("email", logger.MaskEmail(address.String())),
	)
	return account, nil
}

// AttemptLogin checks credentials and returns the tagged outcome.
// Expected failures are reported in the result; only a missing account or
// infrastructure trouble is returned as an error.
func (s *AccountService) AttemptLogin(ctx context.Context, email, rawPassword string) (domain.LoginResult, error) {
	address, err := domain.NewEmail(email)
	if err != nil {
		return domain.LoginResult{}, err
	}
	account, err := s.accounts.FindByEmail(ctx, address)
	if err != nil {
		return domain.LoginResult{}, translateRepoError("find account by email", err)
	}

	now := s.now()
	log := s.logger.With(zap.Int64("account_id", account.ID().Int64()))

	if account.IsLocked(now) {
		s.metrics.ObserveLogin(loginOutcomeLocked)
		log.Info("login rejected: account locked", zap.Timep("locked_until", account.LockedUntil()))
		return domain.LoginFailed(account, domain.LoginFailureLocked), nil
	}
	if !account.CanLogin() {
		s.metrics.ObserveLogin(loginOutcomeInvalidStatus)
		log.Info("login rejected: status", zap.String("status", string(account.Status())))
		return domain.LoginFailed(account, domain.LoginFailureInvalidStatus), nil
	}

	ok, err := s.encoder.Matches(rawPassword, account.Password().Encoded())
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		account.RecordFailedLogin(now)
		if err := s.persist(ctx, account); err != nil {
			return domain.LoginResult{}, err
		}
		s.metrics.ObserveLogin(loginOutcomeWrongPassword)
		log.Info("login rejected: wrong password", zap.Int("login_fail_count", account.LoginFailCount()))
		return domain.LoginFailed(account, domain.LoginFailureWrongPassword), nil
	}

	if err := account.RecordSuccessfulLogin(now); err != nil {
		return domain.LoginResult{}, err
	}
	if err := s.persist(ctx, account); err != nil {
		return domain.LoginResult{}, err
	}
	s.metrics.ObserveLogin(loginOutcomeSuccess)
	log.Info("login succeeded")
	return domain.LoginSucceeded(account), nil
}

// ChangePassword re-verifies the current password before replacing it.
func (s *AccountService) ChangePassword(ctx context.Context, id domain.AccountID, currentPassword, newPassword string) (*domain.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.encoder.Matches(currentPassword, account.Password().Encoded())
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: current password does not match", domain.ErrInvalidArgument)
	}

	next, err := domain.NewPassword(newPassword)
	if err != nil {
		return nil, err
	}
	encoded, err := s.encodePassword(next)
	if err != nil {
		return nil, err
	}
	if err := account.ChangePassword(encoded, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("password changed", zap.Int64("account_id", id.Int64()))
	return account, nil
}

// Activate moves the account to ACTIVE.
func (s *AccountService) Activate(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	return s.transition(ctx, id, "activate", (*domain.Account).Activate)
}

// Deactivate soft-disables the account.
func (s *AccountService) Deactivate(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	return s.transition(ctx, id, "deactivate", (*domain.Account).Deactivate)
}

// Delete moves the account to DELETED. The row is kept for audit.
func (s *AccountService) Delete(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	return s.transition(ctx, id, "delete", (*domain.Account).Delete)
}

// Get loads an account by id.
func (s *AccountService) Get(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError("find account", err)
	}
	return account, nil
}

// GetByEmail loads an account by its login email.
func (s *AccountService) GetByEmail(ctx context.Context, raw string) (*domain.Account, error) {
	email, err := domain.NewEmail(raw)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, translateRepoError("find account by email", err)
	}
	return account, nil
}

func (s *AccountService) transition(ctx context.Context, id domain.AccountID, action string, apply func(*domain.Account, time.Time) error) (*domain.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(account, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account "+action,
		zap.Int64("account_id", id.Int64()),
		zap.String("status", string(account.Status())),
	)
	return account, nil
}

func (s *AccountService) encodePassword(password domain.Password) (domain.Password, error) {
	hash, err := s.encoder.Encode(password.Raw())
	if err != nil {
		return domain.Password{}, fmt.Errorf("encode password: %w", err)
	}
	return domain.PasswordFromEncoded(hash)
}

// persist saves the account and then publishes the events it accumulated.
func (s *AccountService) persist(ctx context.Context, account *domain.Account) error {
	if err := s.accounts.Save(ctx, account); err != nil {
		return translateRepoError("save account", err)
	}
	publishEvents(ctx, s.events, s.logger, account.PullEvents()...)
	return nil
}

func publishEvents(ctx context.Context, publisher port.EventPublisher, log *zap.Logger, events ...domain.Event) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		if err := publisher.Publish(ctx, event); err != nil {
			log.Warn("failed to publish event",
				zap.String("event_type", event.EventType()),
				zap.String("aggregate_id", event.AggregateID()),
				zap.Error(err),
			)
		}
	}
}

func translateRepoError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicateResource)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveLogin(string)     {}
func (nopMetrics) IncTokensIssued(string)  {}
func (nopMetrics) IncTokensRevoked(string) {}
func (nopMetrics) IncBlacklistHit()        {}
