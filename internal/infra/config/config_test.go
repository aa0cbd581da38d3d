package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWT.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected 15m access ttl, got %s", cfg.JWT.AccessTokenTTL)
	}
	if cfg.JWT.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7d refresh ttl, got %s", cfg.JWT.RefreshTokenTTL)
	}
	if cfg.Blacklist.Backend != BlacklistBackendRedis {
		t.Fatalf("expected redis blacklist by default, got %q", cfg.Blacklist.Backend)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env by default")
	}
}

func TestLoadReadsPrefixedEnv(t *testing.T) {
	t.Setenv("IDENTITY_JWT_ISSUER", "identity.example.com")
	t.Setenv("IDENTITY_JWT_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("IDENTITY_BLACKLIST_BACKEND", "memory")
	t.Setenv("IDENTITY_APP_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWT.Issuer != "identity.example.com" {
		t.Fatalf("expected issuer from env, got %q", cfg.JWT.Issuer)
	}
	if cfg.JWT.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("expected 5m access ttl, got %s", cfg.JWT.AccessTokenTTL)
	}
	if cfg.Blacklist.Backend != BlacklistBackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Blacklist.Backend)
	}
	if cfg.App.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.App.Port)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("IDENTITY_BLACKLIST_BACKEND", "etcd")
	t.Setenv("IDENTITY_JWT_REFRESH_TOKEN_TTL", "1m")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "blacklist.backend") || !strings.Contains(err.Error(), "refresh_token_ttl") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}
