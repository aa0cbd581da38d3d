package domain

import (
	"fmt"
	"strings"
	"time"
)

// TokenType distinguishes short-lived access tokens from long-lived refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

// ParseTokenType round-trips the string claim into one of the two token types.
func ParseTokenType(value string) (TokenType, error) {
	switch TokenType(strings.ToUpper(strings.TrimSpace(value))) {
	case TokenTypeAccess:
		return TokenTypeAccess, nil
	case TokenTypeRefresh:
		return TokenTypeRefresh, nil
	default:
		return "", fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, value)
	}
}

func (t TokenType) String() string { return string(t) }

// JWTToken is a signed token string together with its declared type and validity window.
type JWTToken struct {
	value     string
	tokenType TokenType
	issuedAt  time.Time
	expiresAt time.Time
}

// NewJWTToken validates and builds an immutable token value.
func NewJWTToken(value string, tokenType TokenType, issuedAt, expiresAt time.Time) (JWTToken, error) {
	if strings.TrimSpace(value) == "" {
		return JWTToken{}, fmt.Errorf("%w: token value is required", ErrInvalidArgument)
	}
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return JWTToken{}, fmt.Errorf("%w: token type is required", ErrInvalidArgument)
	}
	if issuedAt.IsZero() || expiresAt.IsZero() {
		return JWTToken{}, fmt.Errorf("%w: token timestamps are required", ErrInvalidArgument)
	}
	if !expiresAt.After(issuedAt) {
		return JWTToken{}, fmt.Errorf("%w: token must expire after it is issued", ErrInvalidArgument)
	}
	return JWTToken{value: value, tokenType: tokenType, issuedAt: issuedAt.UTC(), expiresAt: expiresAt.UTC()}, nil
}

func (t JWTToken) Value() string        { return t.value }
func (t JWTToken) Type() TokenType      { return t.tokenType }
func (t JWTToken) IssuedAt() time.Time  { return t.issuedAt }
func (t JWTToken) ExpiresAt() time.Time { return t.expiresAt }

// IsExpired reports whether the token has elapsed its validity window.
func (t JWTToken) IsExpired(at time.Time) bool {
	return !t.expiresAt.After(at)
}

// JWTClaims is the decoded payload of a verified token.
type JWTClaims struct {
	Subject   CustomerID
	AccountID AccountID
	Email     string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenType TokenType
	TokenID   string
}

// TokenPair is one access and one refresh token issued for the same session.
type TokenPair struct {
	access  JWTToken
	refresh JWTToken
}

// NewTokenPair checks that the tokens carry the expected types.
func NewTokenPair(access, refresh JWTToken) (TokenPair, error) {
	if access.Type() != TokenTypeAccess {
		return TokenPair{}, fmt.Errorf("%w: first token must be %s, got %s", ErrInvalidArgument, TokenTypeAccess, access.Type())
	}
	if refresh.Type() != TokenTypeRefresh {
		return TokenPair{}, fmt.Errorf("%w: second token must be %s, got %s", ErrInvalidArgument, TokenTypeRefresh, refresh.Type())
	}
	return TokenPair{access: access, refresh: refresh}, nil
}

func (p TokenPair) Access() JWTToken  { return p.access }
func (p TokenPair) Refresh() JWTToken { return p.refresh }
