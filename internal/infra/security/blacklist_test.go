package security

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBlacklistSetAndLazyEviction(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	blacklist := NewMemoryBlacklist(BlacklistOptions{})
	blacklist.WithClock(func() time.Time { return base })

	if err := blacklist.Set(ctx, "token-a", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	exists, err := blacklist.Exists(ctx, "token-a")
	if err != nil || !exists {
		t.Fatalf("expected token to be blacklisted, exists=%v err=%v", exists, err)
	}
	expiresAt, ok, _ := blacklist.Get(ctx, "token-a")
	if !ok || !expiresAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	blacklist.WithClock(func() time.Time { return base.Add(3 * time.Minute) })
	exists, err = blacklist.Exists(ctx, "token-a")
	if err != nil || exists {
		t.Fatalf("expected expired token to be absent, exists=%v err=%v", exists, err)
	}
	if blacklist.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted on read")
	}
}

func TestMemoryBlacklistIgnoresExpiredTokens(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	blacklist := NewMemoryBlacklist(BlacklistOptions{}).WithClock(func() time.Time { return base })

	if err := blacklist.Set(ctx, "stale", base.Add(-time.Second)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if blacklist.Len() != 0 {
		t.Fatalf("expired token must not be stored")
	}
	if err := blacklist.Set(ctx, " ", base.Add(time.Minute)); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestMemoryBlacklistDeleteAndPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	blacklist := NewMemoryBlacklist(BlacklistOptions{}).WithClock(func() time.Time { return base })

	_ = blacklist.Set(ctx, "short", base.Add(time.Minute))
	_ = blacklist.Set(ctx, "long", base.Add(time.Hour))
	_ = blacklist.Set(ctx, "gone", base.Add(time.Hour))

	if err := blacklist.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if removed := blacklist.Prune(base.Add(2 * time.Minute)); removed != 1 {
		t.Fatalf("expected one pruned entry, got %d", removed)
	}
	if blacklist.Len() != 1 {
		t.Fatalf("expected only the long-lived entry to remain, got %d", blacklist.Len())
	}
}

func TestMemoryBlacklistNeverDropsLiveEntriesWhenFull(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	blacklist := NewMemoryBlacklist(BlacklistOptions{MaxEntries: 2}).WithClock(func() time.Time { return now })

	if err := blacklist.Set(ctx, "first", base.Add(time.Minute)); err != nil {
		t.Fatalf("Set first: %v", err)
	}
	if err := blacklist.Set(ctx, "second", base.Add(time.Hour)); err != nil {
		t.Fatalf("Set second: %v", err)
	}
	if err := blacklist.Set(ctx, "third", base.Add(2*time.Hour)); !errors.Is(err, ErrBlacklistFull) {
		t.Fatalf("expected ErrBlacklistFull, got %v", err)
	}
	for _, token := range []string{"first", "second"} {
		if ok, _ := blacklist.Exists(ctx, token); !ok {
			t.Fatalf("live entry %q must stay blacklisted", token)
		}
	}
	if err := blacklist.SetHashed(HashToken("third"), base.Add(2*time.Hour)); !errors.Is(err, ErrBlacklistFull) {
		t.Fatalf("expected ErrBlacklistFull for hashed entries, got %v", err)
	}

	// Re-recording a present entry needs no room.
	if err := blacklist.Set(ctx, "second", base.Add(3*time.Hour)); err != nil {
		t.Fatalf("re-Set present entry: %v", err)
	}

	now = base.Add(2 * time.Minute)
	if err := blacklist.Set(ctx, "third", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("expected expired entry to make room, got %v", err)
	}
	if ok, _ := blacklist.Exists(ctx, "third"); !ok {
		t.Fatalf("expected third to be blacklisted")
	}
	if ok, _ := blacklist.Exists(ctx, "second"); !ok {
		t.Fatalf("expected second to stay blacklisted")
	}
}
