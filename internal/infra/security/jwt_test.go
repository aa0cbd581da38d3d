package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/customer-identity/internal/core/domain"
)

const (
	testIssuer   = "customer-identity"
	testAudience = "customer-api"
)

func newTestManager(t *testing.T) (*JWTManager, *EphemeralKeyProvider) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}
	provider := NewStaticKeyProvider(key)
	return NewJWTManager(provider, testIssuer, testAudience), provider
}

func signTestClaims(t *testing.T, mgr *JWTManager, typ domain.TokenType, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	claims, err := NewIdentityClaims(IdentityClaimsOptions{
		CustomerID: 42,
		AccountID:  7,
		Email:      "customer@example.com",
		TokenType:  typ,
		Issuer:     mgr.Issuer(),
		Audience:   mgr.Audience(),
		IssuedAt:   issuedAt,
		TTL:        ttl,
	})
	if err != nil {
		t.Fatalf("NewIdentityClaims failed: %v", err)
	}
	signed, err := mgr.Sign(claims)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return signed
}

func TestJWTManagerSignAndParse(t *testing.T) {
	mgr, provider := newTestManager(t)
	issued := time.Date(2025, 1, 1, 12, 0, 0, 250*int(time.Millisecond)+500, time.UTC)
	raw := signTestClaims(t, mgr, domain.TokenTypeAccess, issued, 15*time.Minute)

	parsed, err := jwt.ParseWithClaims(raw, &IdentityClaims{}, func(*jwt.Token) (any, error) {
		_, key, _ := provider.SigningKey()
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return issued }))
	if err != nil {
		t.Fatalf("raw parse failed: %v", err)
	}
	if parsed.Header["kid"] != provider.kid {
		t.Fatalf("expected kid header %q, got %v", provider.kid, parsed.Header["kid"])
	}

	claims, err := mgr.Parse(raw, issued.Add(time.Minute))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	converted, err := claims.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain failed: %v", err)
	}
	if converted.Subject != 42 || converted.AccountID != 7 || converted.Email != "customer@example.com" {
		t.Fatalf("identity claims mismatch: %+v", converted)
	}
	if converted.TokenType != domain.TokenTypeAccess {
		t.Fatalf("expected ACCESS token type, got %s", converted.TokenType)
	}
	if !converted.IssuedAt.Equal(issued.Truncate(time.Millisecond)) {
		t.Fatalf("expected issue time at millisecond precision, got %s", converted.IssuedAt)
	}
	if !claims.IssuedAt.Time.Equal(issued.Truncate(time.Second)) {
		t.Fatalf("expected registered iat in whole seconds, got %s", claims.IssuedAt.Time)
	}
	if converted.TokenID == "" {
		t.Fatalf("expected jti to be populated")
	}
}

func TestJWTManagerParseDistinguishesExpiry(t *testing.T) {
	mgr, _ := newTestManager(t)
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	raw := signTestClaims(t, mgr, domain.TokenTypeAccess, issued, 15*time.Minute)

	_, err := mgr.Parse(raw, issued.Add(16*time.Minute))
	if !errors.Is(err, domain.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	_, err = mgr.Parse(raw+"tampered", issued)
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestJWTManagerRejectsForeignIssuerAndKey(t *testing.T) {
	mgr, provider := newTestManager(t)
	issued := time.Now()

	other := NewJWTManager(provider, "someone-else", testAudience)
	raw := signTestClaims(t, other, domain.TokenTypeAccess, issued, time.Hour)
	if _, err := mgr.Parse(raw, issued); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign issuer, got %v", err)
	}

	foreign, _ := newTestManager(t)
	raw = signTestClaims(t, foreign, domain.TokenTypeAccess, issued, time.Hour)
	if _, err := mgr.Parse(raw, issued); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown key, got %v", err)
	}
}

func TestJWTManagerJWKS(t *testing.T) {
	mgr, provider := newTestManager(t)
	payload, err := mgr.JWKS()
	if err != nil {
		t.Fatalf("JWKS failed: %v", err)
	}

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("failed to decode jwks: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0]["kid"] != provider.kid || doc.Keys[0]["alg"] != "RS256" {
		t.Fatalf("unexpected jwks payload: %s", payload)
	}
}

func TestFileKeyProviderLoadsPEMDirectory(t *testing.T) {
	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(dir, "current.pem"), privPEM, 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	retired, _ := rsa.GenerateKey(rand.Reader, 2048)
	pubDER, _ := x509.MarshalPKIXPublicKey(&retired.PublicKey)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(filepath.Join(dir, "retired.pem"), pubPEM, 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	provider, err := NewKeyProvider(dir)
	if err != nil {
		t.Fatalf("NewKeyProvider failed: %v", err)
	}
	kid, signing, err := provider.SigningKey()
	if err != nil || kid != "current" || signing == nil {
		t.Fatalf("unexpected signing key kid=%q err=%v", kid, err)
	}
	if _, err := provider.VerificationKey("retired"); err != nil {
		t.Fatalf("expected retired public key to verify: %v", err)
	}
	if _, err := provider.VerificationKey("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if len(provider.VerificationKeys()) != 2 {
		t.Fatalf("expected two verification keys")
	}
}

func TestIdentityClaimsIssuedAtTime(t *testing.T) {
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	claims := &IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(issued)}}

	got, err := claims.IssuedAtTime()
	if err != nil || !got.Equal(issued) {
		t.Fatalf("expected fallback to iat, got %s (%v)", got, err)
	}

	claims.IssuedAtMillis = issued.Add(999 * time.Millisecond).UnixMilli()
	got, err = claims.IssuedAtTime()
	if err != nil || !got.Equal(issued.Add(999*time.Millisecond)) {
		t.Fatalf("expected iat_ms to be used, got %s (%v)", got, err)
	}

	claims.IssuedAtMillis = issued.Add(time.Second).UnixMilli()
	if _, err := claims.IssuedAtTime(); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for iat_ms outside the iat second, got %v", err)
	}
}
