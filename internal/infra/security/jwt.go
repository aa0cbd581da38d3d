package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/customer-identity/internal/core/domain"
)

// ErrKeyIDMissing indicates no kid header is present on the token.
var ErrKeyIDMissing = errors.New("jwt: missing key identifier")

// IdentityClaims are the claims carried by both access and refresh tokens.
// iat is whole seconds per RFC 7519; iat_ms carries the same instant in milliseconds
// so revocation cursors can tell apart tokens minted within one second.
type IdentityClaims struct {
	AccountID      int64  `json:"aid"`
	Email          string `json:"email"`
	TokenType      string `json:"typ"`
	IssuedAtMillis int64  `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// IdentityClaimsOptions configures creation of identity claims.
type IdentityClaimsOptions struct {
	CustomerID domain.CustomerID
	AccountID  domain.AccountID
	Email      string
	TokenType  domain.TokenType
	Issuer     string
	Audience   []string
	IssuedAt   time.Time
	TTL        time.Duration
	JTI        string
}

// NewIdentityClaims builds claims with a millisecond issue time and a random jti.
func NewIdentityClaims(opts IdentityClaimsOptions) (*IdentityClaims, error) {
	if opts.CustomerID <= 0 {
		return nil, fmt.Errorf("jwt: customer id is required")
	}
	if opts.AccountID <= 0 {
		return nil, fmt.Errorf("jwt: account id is required")
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("jwt: ttl must be positive")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Millisecond)
	seconds := now.Truncate(time.Second)

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	return &IdentityClaims{
		AccountID:      opts.AccountID.Int64(),
		Email:          opts.Email,
		TokenType:      opts.TokenType.String(),
		IssuedAtMillis: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   opts.CustomerID.String(),
			Issuer:    issuer,
			Audience:  opts.Audience,
			IssuedAt:  jwt.NewNumericDate(seconds),
			NotBefore: jwt.NewNumericDate(seconds),
			ExpiresAt: jwt.NewNumericDate(seconds.Add(opts.TTL)),
			ID:        jti,
		},
	}, nil
}

// ToDomain converts verified claims into the domain representation.
func (c *IdentityClaims) ToDomain() (domain.JWTClaims, error) {
	subject, err := domain.ParseCustomerID(c.Subject)
	if err != nil {
		return domain.JWTClaims{}, fmt.Errorf("%w: subject: %v", domain.ErrInvalidToken, err)
	}
	accountID, err := domain.NewAccountID(c.AccountID)
	if err != nil {
		return domain.JWTClaims{}, fmt.Errorf("%w: aid: %v", domain.ErrInvalidToken, err)
	}
	tokenType, err := domain.ParseTokenType(c.TokenType)
	if err != nil {
		return domain.JWTClaims{}, err
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return domain.JWTClaims{}, fmt.Errorf("%w: iat and exp are required", domain.ErrInvalidToken)
	}
	issuedAt, err := c.IssuedAtTime()
	if err != nil {
		return domain.JWTClaims{}, err
	}

	return domain.JWTClaims{
		Subject:   subject,
		AccountID: accountID,
		Email:     c.Email,
		Issuer:    c.Issuer,
		Audience:  append([]string(nil), c.Audience...),
		IssuedAt:  issuedAt,
		ExpiresAt: c.ExpiresAt.Time.UTC(),
		TokenType: tokenType,
		TokenID:   c.ID,
	}, nil
}

// IssuedAtTime returns the issue instant at millisecond precision when iat_ms is present.
// Tokens without iat_ms fall back to iat. An iat_ms outside the iat second is rejected.
func (c *IdentityClaims) IssuedAtTime() (time.Time, error) {
	if c.IssuedAt == nil {
		return time.Time{}, fmt.Errorf("%w: iat is required", domain.ErrInvalidToken)
	}
	iat := c.IssuedAt.Time.UTC()
	if c.IssuedAtMillis == 0 {
		return iat, nil
	}
	precise := time.UnixMilli(c.IssuedAtMillis).UTC()
	if !precise.Truncate(time.Second).Equal(iat.Truncate(time.Second)) {
		return time.Time{}, fmt.Errorf("%w: iat_ms does not match iat", domain.ErrInvalidToken)
	}
	return precise, nil
}

// JWTManager signs and verifies RS256 tokens and publishes the JWKS.
type JWTManager struct {
	keys     KeyProvider
	issuer   string
	audience string
}

// NewJWTManager constructs a JWTManager enforcing the supplied issuer and audience.
func NewJWTManager(provider KeyProvider, issuer, audience string) *JWTManager {
	return &JWTManager{
		keys:     provider,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

func (m *JWTManager) Issuer() string     { return m.issuer }
func (m *JWTManager) Audience() []string { return []string{m.audience} }

// Sign signs claims with the active signing key and stamps its kid header.
func (m *JWTManager) Sign(claims *IdentityClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: claims required")
	}
	kid, signingKey, err := m.keys.SigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience and validity window as of at.
// Expired tokens fail with domain.ErrExpiredToken, anything else with domain.ErrInvalidToken.
func (m *JWTManager) Parse(raw string, at time.Time) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return at }),
	)

	_, err := parser.ParseWithClaims(raw, claims, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", domain.ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	return claims, nil
}

func (m *JWTManager) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if strings.TrimSpace(kid) == "" {
		return nil, ErrKeyIDMissing
	}
	return m.keys.VerificationKey(kid)
}

// JWKS produces the JSON Web Key Set for every verification key.
func (m *JWTManager) JWKS() ([]byte, error) {
	published := m.keys.VerificationKeys()
	kids := make([]string, 0, len(published))
	for kid := range published {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	keys := make([]map[string]string, 0, len(kids))
	for _, kid := range kids {
		if key := published[kid]; key != nil {
			keys = append(keys, buildJWK(kid, key))
		}
	}
	return json.Marshal(map[string]any{"keys": keys})
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
