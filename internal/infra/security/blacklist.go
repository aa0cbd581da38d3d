package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arklim/customer-identity/internal/core/port"
)

// ErrBlacklistFull is returned when the blacklist is at capacity with live entries.
var ErrBlacklistFull = errors.New("blacklist: capacity reached")

// BlacklistOptions controls in-memory blacklist behaviour.
type BlacklistOptions struct {
	// MaxEntries caps the map size. Only expired entries are reclaimed to make room;
	// a full set of live entries rejects new ones. Zero disables the cap.
	MaxEntries int
}

// MemoryBlacklist is a process-local port.TokenBlacklist.
// Entries are keyed by the SHA-256 of the token and expire lazily on read.
type MemoryBlacklist struct {
	mu         sync.RWMutex
	entries    map[string]time.Time
	maxEntries int
	now        func() time.Time
}

// NewMemoryBlacklist constructs an empty in-memory blacklist.
func NewMemoryBlacklist(opts BlacklistOptions) *MemoryBlacklist {
	return &MemoryBlacklist{
		entries:    make(map[string]time.Time),
		maxEntries: opts.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (b *MemoryBlacklist) WithClock(clock func() time.Time) *MemoryBlacklist {
	if clock != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.now = clock
	}
	return b
}

// Set records token until expiresAt. Already expired tokens are ignored.
func (b *MemoryBlacklist) Set(_ context.Context, token string, expiresAt time.Time) error {
	key, err := blacklistKey(token)
	if err != nil {
		return err
	}
	return b.store(key, expiresAt)
}

// SetHashed records an entry by its precomputed HashToken key, as carried by revocation events.
func (b *MemoryBlacklist) SetHashed(hash string, expiresAt time.Time) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return fmt.Errorf("token hash is required")
	}
	return b.store(hash, expiresAt)
}

func (b *MemoryBlacklist) store(key string, expiresAt time.Time) error {
	expiresAt = expiresAt.UTC()
	now := b.currentTime()
	if !expiresAt.After(now) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if current, exists := b.entries[key]; exists {
		if expiresAt.After(current) {
			b.entries[key] = expiresAt
		}
		return nil
	}
	if b.maxEntries > 0 && len(b.entries) >= b.maxEntries {
		b.pruneLocked(now)
		if len(b.entries) >= b.maxEntries {
			return fmt.Errorf("%w: %d live entries", ErrBlacklistFull, len(b.entries))
		}
	}
	b.entries[key] = expiresAt
	return nil
}

// Get returns the recorded expiry, evicting the entry when it has elapsed.
func (b *MemoryBlacklist) Get(_ context.Context, token string) (time.Time, bool, error) {
	key, err := blacklistKey(token)
	if err != nil {
		return time.Time{}, false, err
	}

	now := b.currentTime()
	b.mu.RLock()
	expiresAt, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return time.Time{}, false, nil
	}
	if !expiresAt.After(now) {
		b.mu.Lock()
		if current, still := b.entries[key]; still && current.Equal(expiresAt) {
			delete(b.entries, key)
		}
		b.mu.Unlock()
		return time.Time{}, false, nil
	}
	return expiresAt, true, nil
}

// Exists reports whether token is blacklisted and not yet expired.
func (b *MemoryBlacklist) Exists(ctx context.Context, token string) (bool, error) {
	_, ok, err := b.Get(ctx, token)
	return ok, err
}

// Delete removes token from the blacklist.
func (b *MemoryBlacklist) Delete(_ context.Context, token string) error {
	key, err := blacklistKey(token)
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (b *MemoryBlacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Prune removes every entry expired as of now.
func (b *MemoryBlacklist) Prune(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pruneLocked(now.UTC())
}

func (b *MemoryBlacklist) pruneLocked(cutoff time.Time) int {
	removed := 0
	for key, expiresAt := range b.entries {
		if !expiresAt.After(cutoff) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

func (b *MemoryBlacklist) currentTime() time.Time {
	b.mu.RLock()
	nowFn := b.now
	b.mu.RUnlock()
	return nowFn().UTC()
}

func blacklistKey(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("token is required")
	}
	return HashToken(token), nil
}

var _ port.TokenBlacklist = (*MemoryBlacklist)(nil)
