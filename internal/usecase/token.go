package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
	"github.com/arklim/customer-identity/internal/infra/config"
	"github.com/arklim/customer-identity/internal/infra/security"
)

const bearerPrefix = "Bearer "

// ErrRevocationUnavailable means a revocation could not be recorded, e.g. no cursor store is wired or the blacklist refused the entry.
var ErrRevocationUnavailable = errors.New("customer token revocation unavailable")

// Revocation scopes reported to AuthMetrics.
const (
	revocationScopeToken    = "token"
	revocationScopeCustomer = "customer"
)

// TokenService issues, verifies and revokes JWTs.
type TokenService struct {
	jwt        *security.JWTManager
	blacklist  port.TokenBlacklist
	cursors    port.RevocationCursorStore
	events     port.EventPublisher
	metrics    port.AuthMetrics
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewTokenService constructs a TokenService. cursors, events and metrics may be nil.
func NewTokenService(
	cfg *config.AppConfig,
	jwtManager *security.JWTManager,
	blacklist port.TokenBlacklist,
	cursors port.RevocationCursorStore,
	events port.EventPublisher,
	metrics port.AuthMetrics,
	logger *zap.Logger,
) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &TokenService{
		jwt:        jwtManager,
		blacklist:  blacklist,
		cursors:    cursors,
		events:     events,
		metrics:    metrics,
		accessTTL:  cfg.JWT.AccessTokenTTL,
		refreshTTL: cfg.JWT.RefreshTokenTTL,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// GenerateTokenPair issues an ACCESS and a REFRESH token for the same identity.
func (s *TokenService) GenerateTokenPair(ctx context.Context, customerID domain.CustomerID, accountID domain.AccountID, email string) (domain.TokenPair, error) {
	issuedAt := s.now()

	access, err := s.issue(customerID, accountID, email, domain.TokenTypeAccess, issuedAt)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.issue(customerID, accountID, email, domain.TokenTypeRefresh, issuedAt)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair, err := domain.NewTokenPair(access, refresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	publishEvents(ctx, s.events, s.logger, domain.NewTokenPairIssuedEvent(accountID, customerID, pair))
	return pair, nil
}

// ParseToken verifies an untrusted token and returns its claims.
// Any failure yields (nil, false); the blacklist is not consulted.
func (s *TokenService) ParseToken(_ context.Context, raw string) (*domain.JWTClaims, bool) {
	claims, err := s.verify(stripBearer(raw))
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return nil, false
	}
	return claims, true
}

// ValidateToken verifies the token and checks revocation.
// Expired tokens fail with domain.ErrExpiredToken and other verification failures with
// domain.ErrInvalidToken. Revoked tokens return (nil, nil).
func (s *TokenService) ValidateToken(ctx context.Context, raw string) (*domain.JWTClaims, error) {
	token := stripBearer(raw)
	claims, err := s.verify(token)
	if err != nil {
		return nil, err
	}

	blacklisted, err := s.IsTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		s.metrics.IncBlacklistHit()
		return nil, nil
	}

	revoked, err := s.revokedByCursor(ctx, claims)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, nil
	}
	return claims, nil
}

// RefreshAccessToken exchanges a valid REFRESH token for a new ACCESS token.
// Every failure, including an expired refresh token or an ACCESS token, is domain.ErrInvalidToken.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string) (domain.JWTToken, error) {
	claims, err := s.ValidateToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrExpiredToken) || errors.Is(err, domain.ErrInvalidToken) {
			return domain.JWTToken{}, fmt.Errorf("%w: refresh token rejected: %v", domain.ErrInvalidToken, err)
		}
		return domain.JWTToken{}, err
	}
	if claims == nil {
		return domain.JWTToken{}, fmt.Errorf("%w: refresh token revoked", domain.ErrInvalidToken)
	}
	if claims.TokenType != domain.TokenTypeRefresh {
		return domain.JWTToken{}, fmt.Errorf("%w: expected %s token, got %s", domain.ErrInvalidToken, domain.TokenTypeRefresh, claims.TokenType)
	}

	return s.issue(claims.Subject, claims.AccountID, claims.Email, domain.TokenTypeAccess, s.now())
}

// InvalidateToken blacklists the token until its own expiry.
// Tokens that no longer verify are ignored since they are already unusable.
func (s *TokenService) InvalidateToken(ctx context.Context, raw string) error {
	token := stripBearer(raw)
	claims, err := s.verify(token)
	if err != nil {
		s.logger.Debug("skipping revocation of unverifiable token", zap.Error(err))
		return nil
	}

	if err := s.blacklist.Set(ctx, token, claims.ExpiresAt); err != nil {
		return fmt.Errorf("%w: blacklist token: %w", ErrRevocationUnavailable, err)
	}
	s.metrics.IncTokensRevoked(revocationScopeToken)
	s.logger.Info("token revoked",
		zap.String("jti", claims.TokenID),
		zap.String("token_type", claims.TokenType.String()),
		zap.Int64("customer_id", claims.Subject.Int64()),
	)

	publishEvents(ctx, s.events, s.logger, domain.NewTokenRevokedEvent(security.HashToken(token), *claims, s.now()))
	return nil
}

// IsTokenBlacklisted reports blacklist membership. Expired entries are evicted by the store on read.
func (s *TokenService) IsTokenBlacklisted(ctx context.Context, raw string) (bool, error) {
	token := stripBearer(raw)
	if token == "" {
		return false, nil
	}
	blacklisted, err := s.blacklist.Exists(ctx, token)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return blacklisted, nil
}

// InvalidateAllUserTokens voids every token issued to customerID before now.
// The cursor has millisecond precision, matching the iat_ms claim, so a login
// right after the revocation yields a usable token.
// It outlives every token it can affect by keeping it for the refresh token lifetime.
func (s *TokenService) InvalidateAllUserTokens(ctx context.Context, customerID domain.CustomerID) error {
	if s.cursors == nil {
		return ErrRevocationUnavailable
	}

	notBefore := s.now().UTC().Truncate(time.Millisecond)
	if err := s.cursors.SetNotBefore(ctx, customerID, notBefore, s.refreshTTL); err != nil {
		return fmt.Errorf("store revocation cursor: %w", err)
	}
	s.metrics.IncTokensRevoked(revocationScopeCustomer)
	s.logger.Info("all customer tokens revoked",
		zap.Int64("customer_id", customerID.Int64()),
		zap.Time("not_before", notBefore),
	)

	publishEvents(ctx, s.events, s.logger, domain.NewCustomerTokensRevokedEvent(customerID, notBefore))
	return nil
}

func (s *TokenService) issue(customerID domain.CustomerID, accountID domain.AccountID, email string, tokenType domain.TokenType, issuedAt time.Time) (domain.JWTToken, error) {
	ttl := s.accessTTL
	if tokenType == domain.TokenTypeRefresh {
		ttl = s.refreshTTL
	}

	claims, err := security.NewIdentityClaims(security.IdentityClaimsOptions{
		CustomerID: customerID,
		AccountID:  accountID,
		Email:      email,
		TokenType:  tokenType,
		Issuer:     s.jwt.Issuer(),
		Audience:   s.jwt.Audience(),
		IssuedAt:   issuedAt,
		TTL:        ttl,
	})
	if err != nil {
		return domain.JWTToken{}, fmt.Errorf("build %s claims: %w", tokenType, err)
	}

	signed, err := s.jwt.Sign(claims)
	if err != nil {
		return domain.JWTToken{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	issued, err := claims.IssuedAtTime()
	if err != nil {
		return domain.JWTToken{}, err
	}
	token, err := domain.NewJWTToken(signed, tokenType, issued, claims.ExpiresAt.Time)
	if err != nil {
		return domain.JWTToken{}, err
	}
	s.metrics.IncTokensIssued(strings.ToLower(tokenType.String()))
	return token, nil
}

func (s *TokenService) verify(token string) (*domain.JWTClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}
	parsed, err := s.jwt.Parse(token, s.now())
	if err != nil {
		return nil, err
	}
	claims, err := parsed.ToDomain()
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

func (s *TokenService) revokedByCursor(ctx context.Context, claims *domain.JWTClaims) (bool, error) {
	if s.cursors == nil {
		return false, nil
	}
	notBefore, ok, err := s.cursors.GetNotBefore(ctx, claims.Subject)
	if err != nil {
		return false, fmt.Errorf("load revocation cursor: %w", err)
	}
	return ok && claims.IssuedAt.Before(notBefore), nil
}

func stripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		raw = strings.TrimSpace(raw[len(bearerPrefix):])
	}
	return raw
}
