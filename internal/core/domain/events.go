package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type names used as message topics downstream.
const (
	EventAccountCreated        = "identity.account.created"
	EventAccountActivated      = "identity.account.activated"
	EventAccountDeactivated    = "identity.account.deactivated"
	EventAccountDeleted        = "identity.account.deleted"
	EventAccountLocked         = "identity.account.locked"
	EventPasswordChanged       = "identity.account.password.changed"
	EventLoginSucceeded        = "identity.login.succeeded"
	EventLoginFailed           = "identity.login.failed"
	EventTokenPairIssued       = "identity.token.issued"
	EventTokenRevoked          = "identity.token.revoked"
	EventCustomerTokensRevoked = "identity.token.customer_revoked"
	EventActivationCodeIssued  = "identity.account.activation_code.issued"
)

// Activation code delivery channels.
const DeliveryMethodEmail = "email"

// Event is an immutable record of something that happened to an aggregate.
type Event interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// EventMeta carries the fields shared by every event.
type EventMeta struct {
	EventID  string    `json:"event_id"`
	Occurred time.Time `json:"occurred_at"`
}

func newEventMeta(at time.Time) EventMeta {
	if at.IsZero() {
		at = time.Now()
	}
	return EventMeta{EventID: uuid.NewString(), Occurred: at.UTC()}
}

// OccurredAt returns the auto-stamped occurrence time.
func (m EventMeta) OccurredAt() time.Time { return m.Occurred }

func (m EventMeta) ID() string { return m.EventID }

// AccountCreatedEvent is emitted when a new account is registered.
type AccountCreatedEvent struct {
	EventMeta
	AccountID  AccountID  `json:"account_id"`
	CustomerID CustomerID `json:"customer_id"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
}

func (e AccountCreatedEvent) EventType() string   { return EventAccountCreated }
func (e AccountCreatedEvent) AggregateID() string { return e.AccountID.String() }

// AccountActivatedEvent is emitted when an account moves to ACTIVE.
type AccountActivatedEvent struct {
	EventMeta
	AccountID      AccountID     `json:"account_id"`
	CustomerID     CustomerID    `json:"customer_id"`
	PreviousStatus AccountStatus `json:"previous_status"`
}

func (e AccountActivatedEvent) EventType() string   { return EventAccountActivated }
func (e AccountActivatedEvent) AggregateID() string { return e.AccountID.String() }

// AccountDeactivatedEvent is emitted when an account is soft-disabled.
type AccountDeactivatedEvent struct {
	EventMeta
	AccountID  AccountID  `json:"account_id"`
	CustomerID CustomerID `json:"customer_id"`
}

func (e AccountDeactivatedEvent) EventType() string   { return EventAccountDeactivated }
func (e AccountDeactivatedEvent) AggregateID() string { return e.AccountID.String() }

// AccountDeletedEvent is emitted when an account reaches the terminal DELETED state.
type AccountDeletedEvent struct {
	EventMeta
	AccountID      AccountID     `json:"account_id"`
	CustomerID     CustomerID    `json:"customer_id"`
	PreviousStatus AccountStatus `json:"previous_status"`
}

func (e AccountDeletedEvent) EventType() string   { return EventAccountDeleted }
func (e AccountDeletedEvent) AggregateID() string { return e.AccountID.String() }

// AccountLockedEvent is emitted whenever a failed login (re)applies the lockout.
type AccountLockedEvent struct {
	EventMeta
	AccountID      AccountID  `json:"account_id"`
	CustomerID     CustomerID `json:"customer_id"`
	LockedUntil    time.Time  `json:"locked_until"`
	LoginFailCount int        `json:"login_fail_count"`
}

func (e AccountLockedEvent) EventType() string   { return EventAccountLocked }
func (e AccountLockedEvent) AggregateID() string { return e.AccountID.String() }

// PasswordChangedEvent is emitted after the password is replaced.
type PasswordChangedEvent struct {
	EventMeta
	AccountID  AccountID  `json:"account_id"`
	CustomerID CustomerID `json:"customer_id"`
}

func (e PasswordChangedEvent) EventType() string   { return EventPasswordChanged }
func (e PasswordChangedEvent) AggregateID() string { return e.AccountID.String() }

// LoginSucceededEvent is emitted on a successful login.
type LoginSucceededEvent struct {
	EventMeta
	AccountID  AccountID  `json:"account_id"`
	CustomerID CustomerID `json:"customer_id"`
}

func (e LoginSucceededEvent) EventType() string   { return EventLoginSucceeded }
func (e LoginSucceededEvent) AggregateID() string { return e.AccountID.String() }

// LoginFailedEvent is emitted on a wrong-password attempt.
type LoginFailedEvent struct {
	EventMeta
	AccountID      AccountID  `json:"account_id"`
	CustomerID     CustomerID `json:"customer_id"`
	LoginFailCount int        `json:"login_fail_count"`
}

func (e LoginFailedEvent) EventType() string   { return EventLoginFailed }
func (e LoginFailedEvent) AggregateID() string { return e.AccountID.String() }

// TokenPairIssuedEvent is emitted when a session's token pair is issued.
type TokenPairIssuedEvent struct {
	EventMeta
	AccountID        AccountID  `json:"account_id"`
	CustomerID       CustomerID `json:"customer_id"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
}

func NewTokenPairIssuedEvent(accountID AccountID, customerID CustomerID, pair TokenPair) TokenPairIssuedEvent {
	return TokenPairIssuedEvent{
		EventMeta:        newEventMeta(pair.Access().IssuedAt()),
		AccountID:        accountID,
		CustomerID:       customerID,
		AccessExpiresAt:  pair.Access().ExpiresAt(),
		RefreshExpiresAt: pair.Refresh().ExpiresAt(),
	}
}

func (e TokenPairIssuedEvent) EventType() string   { return EventTokenPairIssued }
func (e TokenPairIssuedEvent) AggregateID() string { return e.AccountID.String() }

// TokenRevokedEvent is emitted when a single token is blacklisted.
// TokenHash is the blacklist key, so peer instances can hydrate their local blacklist
// without the raw token ever leaving the process.
type TokenRevokedEvent struct {
	EventMeta
	TokenHash  string     `json:"token_hash"`
	TokenID    string     `json:"token_id"`
	TokenType  TokenType  `json:"token_type"`
	CustomerID CustomerID `json:"customer_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

func NewTokenRevokedEvent(tokenHash string, claims JWTClaims, at time.Time) TokenRevokedEvent {
	return TokenRevokedEvent{
		EventMeta:  newEventMeta(at),
		TokenHash:  tokenHash,
		TokenID:    claims.TokenID,
		TokenType:  claims.TokenType,
		CustomerID: claims.Subject,
		ExpiresAt:  claims.ExpiresAt,
	}
}

func (e TokenRevokedEvent) EventType() string   { return EventTokenRevoked }
func (e TokenRevokedEvent) AggregateID() string { return e.CustomerID.String() }

// CustomerTokensRevokedEvent is emitted when every token of a customer issued before NotBefore is revoked.
type CustomerTokensRevokedEvent struct {
	EventMeta
	CustomerID CustomerID `json:"customer_id"`
	NotBefore  time.Time  `json:"not_before"`
}

func NewCustomerTokensRevokedEvent(customerID CustomerID, notBefore time.Time) CustomerTokensRevokedEvent {
	return CustomerTokensRevokedEvent{
		EventMeta:  newEventMeta(notBefore),
		CustomerID: customerID,
		NotBefore:  notBefore.UTC(),
	}
}

func (e CustomerTokensRevokedEvent) EventType() string   { return EventCustomerTokensRevoked }
func (e CustomerTokensRevokedEvent) AggregateID() string { return e.CustomerID.String() }

// ActivationCodeIssuedEvent asks the notification pipeline to deliver an activation code.
// It carries the code itself, so consumers must treat the payload as secret.
type ActivationCodeIssuedEvent struct {
	EventMeta
	AccountID         AccountID  `json:"account_id"`
	CustomerID        CustomerID `json:"customer_id"`
	DeliveryMethod    string     `json:"delivery_method"`
	Destination       string     `json:"destination"`
	MaskedDestination string     `json:"masked_destination"`
	Code              string     `json:"code"`
	ExpiresAt         time.Time  `json:"expires_at"`
}

// NewActivationCodeIssuedEvent builds the delivery request for code. maskedEmail is what logs may show.
func NewActivationCodeIssuedEvent(account *Account, code ActivationCode, maskedEmail string, at time.Time) ActivationCodeIssuedEvent {
	return ActivationCodeIssuedEvent{
		EventMeta:         newEventMeta(at),
		AccountID:         account.ID(),
		CustomerID:        account.CustomerID(),
		DeliveryMethod:    DeliveryMethodEmail,
		Destination:       account.Email().String(),
		MaskedDestination: maskedEmail,
		Code:              code.Value(),
		ExpiresAt:         code.ExpiresAt(),
	}
}

func (e ActivationCodeIssuedEvent) EventType() string   { return EventActivationCodeIssued }
func (e ActivationCodeIssuedEvent) AggregateID() string { return e.AccountID.String() }

// Redacted drops the code and the plain destination for logging.
func (e ActivationCodeIssuedEvent) Redacted() Event {
	e.Code = ""
	e.Destination = ""
	return e
}
