package domain

import "time"

// LoginFailureReason tags an expected, non-exceptional login failure.
type LoginFailureReason string

const (
	LoginFailureLocked        LoginFailureReason = "LOCKED"
	LoginFailureInvalidStatus LoginFailureReason = "INVALID_STATUS"
	LoginFailureWrongPassword LoginFailureReason = "WRONG_PASSWORD"
)

// LoginResult is the tagged outcome of a login attempt.
type LoginResult struct {
	Success     bool
	Reason      LoginFailureReason
	Status      AccountStatus
	AccountID   AccountID
	CustomerID  CustomerID
	Email       Email
	LockedUntil *time.Time
}

// LoginSucceeded builds a successful result for the supplied account.
func LoginSucceeded(account *Account) LoginResult {
	return LoginResult{
		Success:    true,
		Status:     account.Status(),
		AccountID:  account.ID(),
		CustomerID: account.CustomerID(),
		Email:      account.Email(),
	}
}

// LoginFailed builds a failed result carrying the account's current state.
func LoginFailed(account *Account, reason LoginFailureReason) LoginResult {
	return LoginResult{
		Reason:      reason,
		Status:      account.Status(),
		AccountID:   account.ID(),
		CustomerID:  account.CustomerID(),
		Email:       account.Email(),
		LockedUntil: account.LockedUntil(),
	}
}
