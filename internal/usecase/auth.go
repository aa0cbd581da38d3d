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
	"github.com/arklim/customer-identity/internal/infra/security"
	"github.com/arklim/customer-identity/internal/repository"
)

var (
	// ErrInvalidActivationCode is returned when the code is unknown, expired or does not match.
	ErrInvalidActivationCode = fmt.Errorf("%w: invalid or expired activation code", domain.ErrInvalidArgument)
	// ErrUnauthenticated is returned when an access token is valid but revoked or of the wrong type.
	ErrUnauthenticated = fmt.Errorf("%w: not authenticated", domain.ErrInvalidToken)
)

// RegistrationResult carries the new account and its activation code.
// The code reaches the customer through ActivationCodeIssuedEvent.
type RegistrationResult struct {
	Account        *domain.Account
	ActivationCode domain.ActivationCode
}

// LoginOutcome is the login result plus the token pair on success.
type LoginOutcome struct {
	Result domain.LoginResult
	Tokens *domain.TokenPair
}

// AuthService composes account and token flows for the transport layer.
type AuthService struct {
	accounts *AccountService
	tokens   *TokenService
	codes    port.ActivationCodeStore
	ids      port.IDGenerator
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService. events may be nil.
func NewAuthService(accounts *AccountService, tokens *TokenService, codes port.ActivationCodeStore, ids port.IDGenerator, events port.EventPublisher, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts: accounts,
		tokens:   tokens,
		codes:    codes,
		ids:      ids,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register creates a PENDING account for a new customer and issues its activation code.
func (s *AuthService) Register(ctx context.Context, email, password string) (*RegistrationResult, error) {
	customerID, err := s.ids.NextCustomerID(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate customer id: %w", err)
	}

	account, err := s.accounts.CreateAccount(ctx, customerID, email, password)
	if err != nil {
		return nil, err
	}

	code, err := s.issueActivationCode(ctx, account)
	if err != nil {
		return nil, err
	}
	return &RegistrationResult{Account: account, ActivationCode: code}, nil
}

// ResendActivation replaces the activation code of the PENDING account registered under email.
func (s *AuthService) ResendActivation(ctx context.Context, email string) (domain.ActivationCode, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return domain.ActivationCode{}, err
	}
	if account.Status() != domain.AccountStatusPending {
		return domain.ActivationCode{}, fmt.Errorf("%w: account is not pending activation", domain.ErrInvalidState)
	}
	return s.issueActivationCode(ctx, account)
}

// Activate verifies the code and activates the account. Codes are single-use.
func (s *AuthService) Activate(ctx context.Context, accountID domain.AccountID, code string) (*domain.Account, error) {
	stored, err := s.codes.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidActivationCode
		}
		return nil, fmt.Errorf("load activation code: %w", err)
	}
	if stored.IsExpired(s.now()) {
		s.deleteActivationCode(ctx, accountID)
		return nil, ErrInvalidActivationCode
	}
	if !stored.Matches(code) {
		return nil, ErrInvalidActivationCode
	}

	account, err := s.accounts.Activate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.deleteActivationCode(ctx, accountID)
	return account, nil
}

// Login checks credentials and issues a token pair on success.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginOutcome, error) {
	result, err := s.accounts.AttemptLogin(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &LoginOutcome{Result: result}, nil
	}

	pair, err := s.tokens.GenerateTokenPair(ctx, result.CustomerID, result.AccountID, result.Email.String())
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return &LoginOutcome{Result: result, Tokens: &pair}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.JWTToken, error) {
	return s.tokens.RefreshAccessToken(ctx, refreshToken)
}

// Logout revokes the caller's access token and, when it belongs to the same
// customer, the supplied refresh token. Refresh tokens of other customers are ignored.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	caller, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := s.tokens.InvalidateToken(ctx, accessToken); err != nil {
		return err
	}

	if refreshToken == "" {
		return nil
	}
	refresh, ok := s.tokens.ParseToken(ctx, refreshToken)
	if !ok {
		return nil
	}
	if refresh.Subject != caller.Subject || refresh.TokenType != domain.TokenTypeRefresh {
		s.logger.Warn("ignoring foreign token on logout",
			zap.Int64("customer_id", caller.Subject.Int64()),
			zap.Int64("token_customer_id", refresh.Subject.Int64()),
			zap.String("token_type", refresh.TokenType.String()),
		)
		return nil
	}
	return s.tokens.InvalidateToken(ctx, refreshToken)
}

// Authenticate resolves an access token into its claims for request authorization.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.JWTClaims, error) {
	claims, err := s.tokens.ValidateToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		return nil, ErrUnauthenticated
	}
	if claims.TokenType != domain.TokenTypeAccess {
		return nil, fmt.Errorf("%w: expected %s token", ErrUnauthenticated, domain.TokenTypeAccess)
	}
	return claims, nil
}

// GetAccount loads the account behind an authenticated request.
func (s *AuthService) GetAccount(ctx context.Context, accountID domain.AccountID) (*domain.Account, error) {
	return s.accounts.Get(ctx, accountID)
}

// ChangePassword replaces the password and revokes every token issued so far.
func (s *AuthService) ChangePassword(ctx context.Context, accountID domain.AccountID, currentPassword, newPassword string) error {
	account, err := s.accounts.ChangePassword(ctx, accountID, currentPassword, newPassword)
	if err != nil {
		return err
	}
	return s.tokens.InvalidateAllUserTokens(ctx, account.CustomerID())
}

// Deactivate soft-disables the account and revokes its tokens.
func (s *AuthService) Deactivate(ctx context.Context, accountID domain.AccountID) error {
	account, err := s.accounts.Deactivate(ctx, accountID)
	if err != nil {
		return err
	}
	return s.tokens.InvalidateAllUserTokens(ctx, account.CustomerID())
}

// DeleteAccount deletes the account and revokes its tokens.
func (s *AuthService) DeleteAccount(ctx context.Context, accountID domain.AccountID) error {
	account, err := s.accounts.Delete(ctx, accountID)
	if err != nil {
		return err
	}
	s.deleteActivationCode(ctx, accountID)
	return s.tokens.InvalidateAllUserTokens(ctx, account.CustomerID())
}

// RevokeAllTokens signs the customer out everywhere.
func (s *AuthService) RevokeAllTokens(ctx context.Context, customerID domain.CustomerID) error {
	return s.tokens.InvalidateAllUserTokens(ctx, customerID)
}

func (s *AuthService) issueActivationCode(ctx context.Context, account *domain.Account) (domain.ActivationCode, error) {
	value, err := security.GenerateActivationCode()
	if err != nil {
		return domain.ActivationCode{}, err
	}
	now := s.now()
	code, err := domain.NewActivationCode(value, now)
	if err != nil {
		return domain.ActivationCode{}, err
	}
	if err := s.codes.Save(ctx, account.ID(), code); err != nil {
		return domain.ActivationCode{}, fmt.Errorf("store activation code: %w", err)
	}

	masked := logger.MaskEmail(account.Email().String())
	publishEvents(ctx, s.events, s.logger, domain.NewActivationCodeIssuedEvent(account, code, masked, now))
	s.logger.Info("activation code issued",
		zap.Int64("account_id", account.ID().Int64()),
		zap.String("email", masked),
		zap.Time("expires_at", code.ExpiresAt()),
	)
	return code, nil
}

func (s *AuthService) deleteActivationCode(ctx context.Context, accountID domain.AccountID) {
	if err := s.codes.Delete(ctx, accountID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to delete activation code", zap.Int64("account_id", accountID.Int64()), zap.Error(err))
	}
}
