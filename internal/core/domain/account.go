package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxLoginFailures is the number of consecutive failures that triggers a lockout.
	MaxLoginFailures = 3
	// LockoutDuration is how long an account stays locked after the latest qualifying failure.
	LockoutDuration = 30 * time.Minute
)

// AccountStatus enumerates account lifecycle states.
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "PENDING"
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusInactive  AccountStatus = "INACTIVE"
	AccountStatusDormant   AccountStatus = "DORMANT"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusDeleted   AccountStatus = "DELETED"
)

// ParseAccountStatus normalises textual input into a known status.
func ParseAccountStatus(value string) (AccountStatus, error) {
	status := AccountStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case AccountStatusPending, AccountStatusActive, AccountStatusInactive,
		AccountStatusDormant, AccountStatusSuspended, AccountStatusDeleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown account status %q", ErrInvalidArgument, value)
	}
}

// CanLogin reports whether accounts in this status may authenticate.
func (s AccountStatus) CanLogin() bool {
	return s == AccountStatusActive
}

// Account is the aggregate root for customer credentials and login state.
// It is mutated only through its methods; every mutation records an event.
type Account struct {
	id             AccountID
	customerID     CustomerID
	email          Email
	password       Password
	status         AccountStatus
	loginFailCount int
	lockedUntil    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
	lastLoginAt    *time.Time
	version        int64

	events []Event
}

// AccountSnapshot is the persisted representation used to rehydrate an Account.
type AccountSnapshot struct {
	ID             AccountID
	CustomerID     CustomerID
	Email          Email
	Password       Password
	Status         AccountStatus
	LoginFailCount int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
	Version        int64
}

// NewAccount registers a new account in PENDING state. The password must already be encoded.
func NewAccount(id AccountID, customerID CustomerID, email Email, password Password, at time.Time) (*Account, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidArgument)
	}
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidArgument)
	}
	if email.IsZero() {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	if !password.IsEncoded() {
		return nil, fmt.Errorf("%w: account password must be encoded", ErrInvalidArgument)
	}

	now := at.UTC()
	account := &Account{
		id:         id,
		customerID: customerID,
		email:      email,
		password:   password,
		status:     AccountStatusPending,
		createdAt:  now,
		updatedAt:  now,
	}
	account.record(AccountCreatedEvent{
		EventMeta:  newEventMeta(now),
		AccountID:  id,
		CustomerID: customerID,
		Email:      email.String(),
		Status:     string(AccountStatusPending),
	})
	return account, nil
}

// RestoreAccount rehydrates an account from storage without applying creation rules.
func RestoreAccount(s AccountSnapshot) *Account {
	failCount := s.LoginFailCount
	if failCount < 0 {
		failCount = 0
	}
	return &Account{
		id:             s.ID,
		customerID:     s.CustomerID,
		email:          s.Email,
		password:       s.Password,
		status:         s.Status,
		loginFailCount: failCount,
		lockedUntil:    copyTime(s.LockedUntil),
		createdAt:      s.CreatedAt.UTC(),
		updatedAt:      s.UpdatedAt.UTC(),
		lastLoginAt:    copyTime(s.LastLoginAt),
		version:        s.Version,
	}
}

// Snapshot exports the current state for persistence.
func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:             a.id,
		CustomerID:     a.customerID,
		Email:          a.email,
		Password:       a.password,
		Status:         a.status,
		LoginFailCount: a.loginFailCount,
		LockedUntil:    copyTime(a.lockedUntil),
		CreatedAt:      a.createdAt,
		UpdatedAt:      a.updatedAt,
		LastLoginAt:    copyTime(a.lastLoginAt),
		Version:        a.version,
	}
}

func (a *Account) ID() AccountID           { return a.id }
func (a *Account) CustomerID() CustomerID  { return a.customerID }
func (a *Account) Email() Email            { return a.email }
func (a *Account) Password() Password      { return a.password }
func (a *Account) Status() AccountStatus   { return a.status }
func (a *Account) LoginFailCount() int     { return a.loginFailCount }
func (a *Account) LockedUntil() *time.Time { return copyTime(a.lockedUntil) }
func (a *Account) CreatedAt() time.Time    { return a.createdAt }
func (a *Account) UpdatedAt() time.Time    { return a.updatedAt }
func (a *Account) LastLoginAt() *time.Time { return copyTime(a.lastLoginAt) }
func (a *Account) Version() int64          { return a.version }
func (a *Account) CanLogin() bool          { return a.status.CanLogin() }
func (a *Account) IsDeleted() bool         { return a.status == AccountStatusDeleted }
func (a *Account) PendingEvents() []Event  { return append([]Event(nil), a.events...) }

// SetVersion is called by the repository after a successful write.
func (a *Account) SetVersion(version int64) { a.version = version }

// IsLocked reports whether the lockout window is still open at the supplied instant.
func (a *Account) IsLocked(at time.Time) bool {
	return a.lockedUntil != nil && at.Before(*a.lockedUntil)
}

// Activate moves the account to ACTIVE from PENDING, INACTIVE or DORMANT.
func (a *Account) Activate(at time.Time) error {
	switch a.status {
	case AccountStatusPending, AccountStatusInactive, AccountStatusDormant:
	default:
		return fmt.Errorf("%w: cannot activate account in status %s", ErrInvalidState, a.status)
	}

	previous := a.status
	a.status = AccountStatusActive
	a.touch(at)
	a.record(AccountActivatedEvent{
		EventMeta:      newEventMeta(at),
		AccountID:      a.id,
		CustomerID:     a.customerID,
		PreviousStatus: previous,
	})
	return nil
}

// Deactivate soft-disables an ACTIVE account.
func (a *Account) Deactivate(at time.Time) error {
	if a.status != AccountStatusActive {
		return fmt.Errorf("%w: cannot deactivate account in status %s", ErrInvalidState, a.status)
	}

	a.status = AccountStatusInactive
	a.touch(at)
	a.record(AccountDeactivatedEvent{
		EventMeta:  newEventMeta(at),
		AccountID:  a.id,
		CustomerID: a.customerID,
	})
	return nil
}

// ChangePassword replaces the password wholesale. Only ACTIVE accounts may change passwords.
func (a *Account) ChangePassword(password Password, at time.Time) error {
	if a.status != AccountStatusActive {
		return fmt.Errorf("%w: cannot change password in status %s", ErrInvalidState, a.status)
	}
	if !password.IsEncoded() {
		return fmt.Errorf("%w: account password must be encoded", ErrInvalidArgument)
	}

	a.password = password
	a.touch(at)
	a.record(PasswordChangedEvent{
		EventMeta:  newEventMeta(at),
		AccountID:  a.id,
		CustomerID: a.customerID,
	})
	return nil
}

// RecordSuccessfulLogin stamps the login and clears the failure counter and lock.
func (a *Account) RecordSuccessfulLogin(at time.Time) error {
	if !a.CanLogin() {
		return fmt.Errorf("%w: account in status %s cannot login", ErrInvalidState, a.status)
	}

	now := at.UTC()
	a.lastLoginAt = &now
	a.loginFailCount = 0
	a.lockedUntil = nil
	a.touch(now)
	a.record(LoginSucceededEvent{
		EventMeta:  newEventMeta(now),
		AccountID:  a.id,
		CustomerID: a.customerID,
	})
	return nil
}

// RecordFailedLogin increments the failure counter. Once it reaches MaxLoginFailures
// every further failure pushes lockedUntil to at+LockoutDuration.
// The counter survives status changes and is reset only by a successful login.
func (a *Account) RecordFailedLogin(at time.Time) {
	now := at.UTC()
	a.loginFailCount++
	a.touch(now)
	a.record(LoginFailedEvent{
		EventMeta:      newEventMeta(now),
		AccountID:      a.id,
		CustomerID:     a.customerID,
		LoginFailCount: a.loginFailCount,
	})

	if a.loginFailCount >= MaxLoginFailures {
		until := now.Add(LockoutDuration)
		a.lockedUntil = &until
		a.record(AccountLockedEvent{
			EventMeta:      newEventMeta(now),
			AccountID:      a.id,
			CustomerID:     a.customerID,
			LockedUntil:    until,
			LoginFailCount: a.loginFailCount,
		})
	}
}

// Delete moves the account to the terminal DELETED state.
func (a *Account) Delete(at time.Time) error {
	if a.status == AccountStatusDeleted {
		return fmt.Errorf("%w: account already deleted", ErrInvalidState)
	}

	previous := a.status
	a.status = AccountStatusDeleted
	a.touch(at)
	a.record(AccountDeletedEvent{
		EventMeta:      newEventMeta(at),
		AccountID:      a.id,
		CustomerID:     a.customerID,
		PreviousStatus: previous,
	})
	return nil
}

// PullEvents returns and clears the events recorded since the last pull.
func (a *Account) PullEvents() []Event {
	events := a.events
	a.events = nil
	return events
}

func (a *Account) touch(at time.Time) {
	a.updatedAt = at.UTC()
}

func (a *Account) record(event Event) {
	a.events = append(a.events, event)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := t.UTC()
	return &c
}
