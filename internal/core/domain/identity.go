package domain

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// MinPasswordLength is the minimum length accepted for raw passwords.
	MinPasswordLength = 8
	// MinActivationCodeLength is the minimum length of an activation code value.
	MinActivationCodeLength = 32
	// ActivationCodeTTL is the validity window of an activation code.
	ActivationCodeTTL = 24 * time.Hour
)

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// AccountID identifies an Account aggregate.
type AccountID int64

// NewAccountID validates the supplied value and returns an AccountID.
func NewAccountID(value int64) (AccountID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: account id must be positive, got %d", ErrInvalidArgument, value)
	}
	return AccountID(value), nil
}

// Int64 returns the raw identifier.
func (id AccountID) Int64() int64 { return int64(id) }

func (id AccountID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseAccountID parses a decimal account identifier.
func ParseAccountID(value string) (AccountID, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: account id %q is not a number", ErrInvalidArgument, value)
	}
	return NewAccountID(parsed)
}

// CustomerID identifies the external customer an account belongs to.
type CustomerID int64

// NewCustomerID validates the supplied value and returns a CustomerID.
func NewCustomerID(value int64) (CustomerID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: customer id must be positive, got %d", ErrInvalidArgument, value)
	}
	return CustomerID(value), nil
}

// Int64 returns the raw identifier.
func (id CustomerID) Int64() int64 { return int64(id) }

func (id CustomerID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseCustomerID parses a decimal customer identifier, as carried in the JWT subject.
func ParseCustomerID(value string) (CustomerID, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: customer id %q is not a number", ErrInvalidArgument, value)
	}
	return NewCustomerID(parsed)
}

// Email is a normalized, validated email address.
type Email struct {
	value string
}

// NewEmail trims and lower-cases the input before validating it.
func NewEmail(raw string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return Email{}, fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	if strings.Contains(normalized, "..") {
		return Email{}, fmt.Errorf("%w: email must not contain consecutive dots", ErrInvalidArgument)
	}
	if !emailPattern.MatchString(normalized) {
		return Email{}, fmt.Errorf("%w: malformed email", ErrInvalidArgument)
	}
	return Email{value: normalized}, nil
}

func (e Email) String() string { return e.value }

// IsZero reports whether the email was never constructed.
func (e Email) IsZero() bool { return e.value == "" }

// Password holds either a raw, policy-checked secret or an already encoded hash.
// The two are never interchangeable: only encoded values are persisted or compared.
type Password struct {
	value   string
	encoded bool
}

// NewPassword validates a user-supplied raw password against the policy:
// at least MinPasswordLength characters with one letter, one digit and one symbol.
func NewPassword(raw string) (Password, error) {
	if len([]rune(raw)) < MinPasswordLength {
		return Password{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidArgument, MinPasswordLength)
	}

	var hasLetter, hasDigit, hasSymbol bool
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsSpace(r):
		default:
			hasSymbol = true
		}
	}
	if !hasLetter || !hasDigit || !hasSymbol {
		return Password{}, fmt.Errorf("%w: password must contain a letter, a digit and a symbol", ErrInvalidArgument)
	}

	return Password{value: raw}, nil
}

// PasswordFromEncoded wraps an already hashed value. No policy check is applied.
func PasswordFromEncoded(hash string) (Password, error) {
	if strings.TrimSpace(hash) == "" {
		return Password{}, fmt.Errorf("%w: encoded password is required", ErrInvalidArgument)
	}
	return Password{value: hash, encoded: true}, nil
}

// IsEncoded reports whether the password holds a hash.
func (p Password) IsEncoded() bool { return p.encoded }

// Raw returns the plaintext for hashing. Empty for encoded passwords.
func (p Password) Raw() string {
	if p.encoded {
		return ""
	}
	return p.value
}

// Encoded returns the hash. Empty for raw passwords.
func (p Password) Encoded() string {
	if !p.encoded {
		return ""
	}
	return p.value
}

// String never reveals the underlying value.
func (p Password) String() string { return "********" }

// ActivationCode is a random opaque token used to activate a pending account.
type ActivationCode struct {
	value     string
	expiresAt time.Time
}

// NewActivationCode builds a code issued at the supplied instant, valid for ActivationCodeTTL.
func NewActivationCode(value string, issuedAt time.Time) (ActivationCode, error) {
	return RestoreActivationCode(value, issuedAt.UTC().Add(ActivationCodeTTL))
}

// RestoreActivationCode rebuilds a stored code with its original expiry.
func RestoreActivationCode(value string, expiresAt time.Time) (ActivationCode, error) {
	value = strings.TrimSpace(value)
	if len(value) < MinActivationCodeLength {
		return ActivationCode{}, fmt.Errorf("%w: activation code must be at least %d characters", ErrInvalidArgument, MinActivationCodeLength)
	}
	if expiresAt.IsZero() {
		return ActivationCode{}, fmt.Errorf("%w: activation code expiry is required", ErrInvalidArgument)
	}
	return ActivationCode{value: value, expiresAt: expiresAt.UTC()}, nil
}

func (c ActivationCode) Value() string { return c.value }

func (c ActivationCode) ExpiresAt() time.Time { return c.expiresAt }

// IsExpired reports whether the code has elapsed its validity window.
func (c ActivationCode) IsExpired(at time.Time) bool {
	return !c.expiresAt.After(at)
}

// Matches compares user input against the code in constant time.
func (c ActivationCode) Matches(input string) bool {
	input = strings.TrimSpace(input)
	if c.value == "" || input == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.value), []byte(input)) == 1
}
