package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/infra/security"
	"github.com/arklim/customer-identity/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestBlacklistRepository_SetAndExists(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewBlacklistRepository(client, "identity:blacklist")

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return now })

	ctx := context.Background()
	expiresAt := now.Add(15 * time.Minute)

	if err := repo.Set(ctx, "token-a", expiresAt); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	key := "identity:blacklist:" + security.HashToken("token-a")
	if !server.Exists(key) {
		t.Fatalf("expected hashed key %s to be stored", key)
	}
	if ttl := server.TTL(key); ttl != 15*time.Minute {
		t.Fatalf("expected ttl 15m, got %v", ttl)
	}

	got, ok, err := repo.Get(ctx, "token-a")
	if err != nil || !ok {
		t.Fatalf("expected entry, got ok=%v err=%v", ok, err)
	}
	if !got.Equal(expiresAt) {
		t.Fatalf("expected expiry %s, got %s", expiresAt, got)
	}

	if exists, _ := repo.Exists(ctx, "token-b"); exists {
		t.Fatalf("unexpected entry for token-b")
	}

	if err := repo.Delete(ctx, "token-a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if exists, _ := repo.Exists(ctx, "token-a"); exists {
		t.Fatalf("expected entry to be removed")
	}
}

func TestBlacklistRepository_LazyEviction(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewBlacklistRepository(client, "bl")

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return now })

	ctx := context.Background()
	if err := repo.Set(ctx, "token-a", now.Add(time.Minute)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	// Redis has not expired the key yet but the entry is past its expiry.
	now = now.Add(time.Minute)
	if exists, err := repo.Exists(ctx, "token-a"); err != nil || exists {
		t.Fatalf("expected expired entry to be reported absent, got %v (%v)", exists, err)
	}
	if server.Exists("bl:" + security.HashToken("token-a")) {
		t.Fatalf("expected expired entry to be evicted")
	}

	if err := repo.Set(ctx, "token-b", now.Add(-time.Second)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if len(server.Keys()) != 0 {
		t.Fatalf("expired tokens must not be stored, got keys %v", server.Keys())
	}

	if err := repo.Set(ctx, " ", now.Add(time.Minute)); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestRevocationCursorRepository(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRevocationCursorRepository(client, "identity:revoked_before")

	ctx := context.Background()
	if _, ok, err := repo.GetNotBefore(ctx, 1001); err != nil || ok {
		t.Fatalf("expected no cursor, got ok=%v err=%v", ok, err)
	}

	notBefore := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := repo.SetNotBefore(ctx, 1001, notBefore, 7*24*time.Hour); err != nil {
		t.Fatalf("SetNotBefore returned error: %v", err)
	}
	if ttl := server.TTL("identity:revoked_before:1001"); ttl != 7*24*time.Hour {
		t.Fatalf("expected ttl 168h, got %v", ttl)
	}

	got, ok, err := repo.GetNotBefore(ctx, 1001)
	if err != nil || !ok || !got.Equal(notBefore) {
		t.Fatalf("expected cursor %s, got %s ok=%v err=%v", notBefore, got, ok, err)
	}

	if err := repo.SetNotBefore(ctx, 1001, notBefore, 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}

func TestActivationCodeRepository(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewActivationCodeRepository(client, "identity:activation")

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return now })

	ctx := context.Background()
	code, err := domain.NewActivationCode("0123456789abcdef0123456789abcdef-xyz", now)
	if err != nil {
		t.Fatalf("NewActivationCode: %v", err)
	}

	if err := repo.Save(ctx, 7, code); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if ttl := server.TTL("identity:activation:7"); ttl != domain.ActivationCodeTTL {
		t.Fatalf("expected ttl %v, got %v", domain.ActivationCodeTTL, ttl)
	}

	stored, err := repo.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !stored.Matches(code.Value()) || !stored.ExpiresAt().Equal(code.ExpiresAt()) {
		t.Fatalf("unexpected stored code: %+v", stored)
	}

	if err := repo.Delete(ctx, 7); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.Get(ctx, 7); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, 7); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRateLimitRepository_Window(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "identity:ratelimit"})

	ctx := context.Background()
	window := time.Minute
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{0, 10 * time.Second, 10 * time.Second, 50 * time.Second} {
		if err := repo.RecordAttempt(ctx, "login:10.0.0.1", base.Add(offset), window); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}
	if ttl := server.TTL("identity:ratelimit:login:10.0.0.1"); ttl != window {
		t.Fatalf("expected key ttl %v, got %v", window, ttl)
	}

	count, oldest, err := repo.Window(ctx, "login:10.0.0.1", window, base.Add(50*time.Second))
	if err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if count != 4 || !oldest.Equal(base) {
		t.Fatalf("expected 4 attempts from %s, got %d from %s", base, count, oldest)
	}

	count, oldest, err = repo.Window(ctx, "login:10.0.0.1", window, base.Add(65*time.Second))
	if err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if count != 3 || !oldest.Equal(base.Add(10*time.Second)) {
		t.Fatalf("expected 3 attempts after trimming, got %d from %s", count, oldest)
	}

	if _, _, err := repo.Window(ctx, "x", 0, base); err == nil {
		t.Fatalf("expected error for non-positive window")
	}
}
