package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/repository"
)

func TestCreateAccountStartsPendingAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.accounts.CreateAccount(ctx, 500, " A@B.com ", "Passw0rd!")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if account.Status() != domain.AccountStatusPending || account.LoginFailCount() != 0 {
		t.Fatalf("unexpected new account state: %+v", account.Snapshot())
	}
	if account.Email().String() != "a@b.com" {
		t.Fatalf("expected normalized email, got %q", account.Email())
	}
	if account.Password().Encoded() != "enc:Passw0rd!" {
		t.Fatalf("expected encoded password to be stored")
	}
	if account.Version() != 1 {
		t.Fatalf("expected version 1 after insert, got %d", account.Version())
	}
	if !f.events.has(domain.EventAccountCreated) {
		t.Fatalf("expected AccountCreated to be published, got %v", f.events.types())
	}
	if len(account.PendingEvents()) != 0 {
		t.Fatalf("events must be drained after publish")
	}
}

func TestCreateAccountRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.accounts.CreateAccount(ctx, 500, "a@b.com", "Passw0rd!"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if _, err := f.accounts.CreateAccount(ctx, 501, "A@B.COM", "Passw0rd!"); !errors.Is(err, domain.ErrDuplicateResource) {
		t.Fatalf("expected ErrDuplicateResource for email, got %v", err)
	}
	if _, err := f.accounts.CreateAccount(ctx, 500, "other@b.com", "Passw0rd!"); !errors.Is(err, domain.ErrDuplicateResource) {
		t.Fatalf("expected ErrDuplicateResource for customer, got %v", err)
	}
}

func TestCreateAccountValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.accounts.CreateAccount(ctx, 500, "not-an-email", "Passw0rd!"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for email, got %v", err)
	}
	if _, err := f.accounts.CreateAccount(ctx, 500, "a@b.com", "weak"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for password, got %v", err)
	}
	if _, err := f.accounts.CreateAccount(ctx, 0, "a@b.com", "Passw0rd!"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for customer id, got %v", err)
	}
	if f.repo.saves != 0 {
		t.Fatalf("nothing should be persisted on invalid input")
	}
}

func TestAttemptLoginUnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.AttemptLogin(context.Background(), "ghost@b.com", "Passw0rd!")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptLoginLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.accounts.CreateAccount(ctx, 500, "a@b.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	result, err := f.accounts.AttemptLogin(ctx, "a@b.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("AttemptLogin failed: %v", err)
	}
	if result.Success || result.Reason != domain.LoginFailureInvalidStatus || result.Status != domain.AccountStatusPending {
		t.Fatalf("expected INVALID_STATUS with PENDING, got %+v", result)
	}

	if _, err := f.accounts.Activate(ctx, account.ID()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	result, err = f.accounts.AttemptLogin(ctx, "a@b.com", "Passw0rd!")
	if err != nil || !result.Success {
		t.Fatalf("expected successful login, got %+v (%v)", result, err)
	}
	if result.AccountID != account.ID() || result.CustomerID != 500 {
		t.Fatalf("unexpected identity in result: %+v", result)
	}
	stored, _ := f.accounts.Get(ctx, account.ID())
	if last := stored.LastLoginAt(); last == nil || !last.Equal(f.clock.Now()) {
		t.Fatalf("expected lastLoginAt to be stamped, got %v", last)
	}

	for i := 1; i <= domain.MaxLoginFailures; i++ {
		result, err = f.accounts.AttemptLogin(ctx, "a@b.com", "Wrong-pass1")
		if err != nil {
			t.Fatalf("AttemptLogin failed: %v", err)
		}
		if result.Reason != domain.LoginFailureWrongPassword {
			t.Fatalf("attempt %d: expected WRONG_PASSWORD, got %+v", i, result)
		}
	}
	if result.LockedUntil == nil {
		t.Fatalf("expected lock after %d failures", domain.MaxLoginFailures)
	}

	saves := f.repo.saves
	result, err = f.accounts.AttemptLogin(ctx, "a@b.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("AttemptLogin failed: %v", err)
	}
	if result.Success || result.Reason != domain.LoginFailureLocked {
		t.Fatalf("expected LOCKED even with correct password, got %+v", result)
	}
	if f.repo.saves != saves {
		t.Fatalf("locked login must not touch the account")
	}
	if !f.events.has(domain.EventAccountLocked) {
		t.Fatalf("expected AccountLocked to be published, got %v", f.events.types())
	}
	if f.metrics.logins[loginOutcomeLocked] != 1 || f.metrics.logins[loginOutcomeWrongPassword] != 3 {
		t.Fatalf("unexpected login metrics: %+v", f.metrics.logins)
	}

	f.clock.Advance(domain.LockoutDuration)
	result, err = f.accounts.AttemptLogin(ctx, "a@b.com", "Passw0rd!")
	if err != nil || !result.Success {
		t.Fatalf("expected login to succeed once the lock elapsed, got %+v (%v)", result, err)
	}
	stored, _ = f.accounts.Get(ctx, account.ID())
	if stored.LoginFailCount() != 0 || stored.LockedUntil() != nil {
		t.Fatalf("successful login must reset failure state")
	}
}

func TestAttemptLoginEscalatesLockWhileFailing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeAccount(t, "a@b.com", "Passw0rd!")

	for i := 0; i < domain.MaxLoginFailures; i++ {
		_, _ = f.accounts.AttemptLogin(ctx, "a@b.com", "Wrong-pass1")
	}

	// Locked attempts are rejected before the password is checked, so the lock is
	// only pushed further by failures after it elapses.
	f.clock.Advance(domain.LockoutDuration)
	result, err := f.accounts.AttemptLogin(ctx, "a@b.com", "Wrong-pass1")
	if err != nil {
		t.Fatalf("AttemptLogin failed: %v", err)
	}
	want := f.clock.Now().Add(domain.LockoutDuration)
	if result.LockedUntil == nil || !result.LockedUntil.Equal(want) {
		t.Fatalf("expected lock extended to %s, got %v", want, result.LockedUntil)
	}
}

func TestAttemptLoginSurfacesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeAccount(t, "a@b.com", "Passw0rd!")

	f.repo.saveErr = repository.ErrConflict
	_, err := f.accounts.AttemptLogin(ctx, "a@b.com", "Wrong-pass1")
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict to surface, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.activeAccount(t, "a@b.com", "Passw0rd!")

	if _, err := f.accounts.ChangePassword(ctx, account.ID(), "Nope-pass1", "N3w-passw0rd"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for wrong current password, got %v", err)
	}
	if _, err := f.accounts.ChangePassword(ctx, account.ID(), "Passw0rd!", "weak"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for weak new password, got %v", err)
	}
	if _, err := f.accounts.ChangePassword(ctx, account.ID(), "Passw0rd!", "N3w-passw0rd"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	result, err := f.accounts.AttemptLogin(ctx, "a@b.com", "N3w-passw0rd")
	if err != nil || !result.Success {
		t.Fatalf("expected login with the new password, got %+v (%v)", result, err)
	}
	if !f.events.has(domain.EventPasswordChanged) {
		t.Fatalf("expected PasswordChanged to be published")
	}
}

func TestDeactivateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.activeAccount(t, "a@b.com", "Passw0rd!")

	if _, err := f.accounts.Deactivate(ctx, account.ID()); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if _, err := f.accounts.Deactivate(ctx, account.ID()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	deleted, err := f.accounts.Delete(ctx, account.ID())
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted.IsDeleted() {
		t.Fatalf("expected DELETED status, got %s", deleted.Status())
	}

	result, err := f.accounts.AttemptLogin(ctx, "a@b.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("AttemptLogin failed: %v", err)
	}
	if result.Reason != domain.LoginFailureInvalidStatus || result.Status != domain.AccountStatusDeleted {
		t.Fatalf("expected INVALID_STATUS with DELETED, got %+v", result)
	}

	if _, err := f.accounts.Get(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	if _, err := f.accounts.CreateAccount(context.Background(), 500, "a@b.com", "Passw0rd!"); err != nil {
		t.Fatalf("publishing is fire-and-forget, got %v", err)
	}
	if f.repo.saves != 1 {
		t.Fatalf("expected account to be persisted")
	}
}
