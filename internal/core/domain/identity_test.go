package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewEmailNormalizesInput(t *testing.T) {
	email, err := NewEmail("  Alice.Smith@Example.COM ")
	if err != nil {
		t.Fatalf("NewEmail returned error: %v", err)
	}
	if email.String() != "alice.smith@example.com" {
		t.Fatalf("expected normalized email, got %q", email.String())
	}
}

func TestNewEmailRejectsMalformedInput(t *testing.T) {
	cases := []string{"", "   ", "no-at-sign", "a@b", "a..b@example.com", "user@exa..mple.com", "user@example.c"}
	for _, raw := range cases {
		if _, err := NewEmail(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for %q, got %v", raw, err)
		}
	}
}

func TestNewPasswordPolicy(t *testing.T) {
	if _, err := NewPassword("Passw0rd!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}

	invalid := map[string]string{
		"short":     "Pa0!",
		"no digit":  "Password!",
		"no letter": "12345678!",
		"no symbol": "Password1",
	}
	for name, raw := range invalid {
		if _, err := NewPassword(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestPasswordModesAreNeverConfused(t *testing.T) {
	raw, err := NewPassword("Passw0rd!")
	if err != nil {
		t.Fatalf("NewPassword returned error: %v", err)
	}
	if raw.IsEncoded() || raw.Encoded() != "" || raw.Raw() != "Passw0rd!" {
		t.Fatalf("raw password exposed unexpected state")
	}

	encoded, err := PasswordFromEncoded("argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA")
	if err != nil {
		t.Fatalf("PasswordFromEncoded returned error: %v", err)
	}
	if !encoded.IsEncoded() || encoded.Raw() != "" {
		t.Fatalf("encoded password exposed raw value")
	}
	if strings.Contains(encoded.String(), "argon2id") || strings.Contains(raw.String(), "Passw0rd") {
		t.Fatalf("String must mask the password")
	}
}

func TestIDsRejectNonPositiveValues(t *testing.T) {
	if _, err := NewAccountID(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero account id, got %v", err)
	}
	if _, err := NewCustomerID(-4); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative customer id, got %v", err)
	}
	id, err := ParseCustomerID("42")
	if err != nil || id != 42 {
		t.Fatalf("expected customer id 42, got %d (%v)", id, err)
	}
	if _, err := ParseAccountID("abc"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for non-numeric id, got %v", err)
	}
}

func TestActivationCodeExpiryAndMatching(t *testing.T) {
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	value := strings.Repeat("a", MinActivationCodeLength)

	code, err := NewActivationCode(value, issued)
	if err != nil {
		t.Fatalf("NewActivationCode returned error: %v", err)
	}
	if !code.ExpiresAt().Equal(issued.Add(ActivationCodeTTL)) {
		t.Fatalf("expected expiry after %s, got %s", ActivationCodeTTL, code.ExpiresAt())
	}
	if code.IsExpired(issued.Add(time.Hour)) {
		t.Fatalf("code should be valid one hour after issue")
	}
	if !code.IsExpired(issued.Add(ActivationCodeTTL)) {
		t.Fatalf("code should be expired at its expiry instant")
	}
	if !code.Matches(value) {
		t.Fatalf("expected code to match its own value")
	}
	if code.Matches(strings.Repeat("b", MinActivationCodeLength)) || code.Matches("") {
		t.Fatalf("unexpected match")
	}

	if _, err := NewActivationCode("too-short", issued); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for short code, got %v", err)
	}
}
