package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/infra/config"
	"github.com/arklim/customer-identity/internal/infra/security"
	"github.com/arklim/customer-identity/internal/repository"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("failed to generate RSA key: %v", err)
		}
		testKey = key
	})
	return testKey
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		JWT: config.JWTSettings{
			Issuer:          "customer-identity",
			Audience:        "customer-api",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
	}
}

// memAccountRepo mimics the optimistic locking of the Postgres repository.
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[domain.AccountID]domain.AccountSnapshot
	saveErr  error
	saves    int
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[domain.AccountID]domain.AccountSnapshot)}
}

func (r *memAccountRepo) Save(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}

	stored, exists := r.accounts[account.ID()]
	switch {
	case account.Version() == 0 && exists:
		return repository.ErrDuplicate
	case account.Version() != 0 && !exists:
		return repository.ErrNotFound
	case exists && stored.Version != account.Version():
		return repository.ErrConflict
	}

	account.SetVersion(account.Version() + 1)
	r.accounts[account.ID()] = account.Snapshot()
	r.saves++
	return nil
}

func (r *memAccountRepo) find(match func(domain.AccountSnapshot) bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snapshot := range r.accounts {
		if match(snapshot) {
			return domain.RestoreAccount(snapshot), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memAccountRepo) FindByID(_ context.Context, id domain.AccountID) (*domain.Account, error) {
	return r.find(func(s domain.AccountSnapshot) bool { return s.ID == id })
}

func (r *memAccountRepo) FindByEmail(_ context.Context, email domain.Email) (*domain.Account, error) {
	return r.find(func(s domain.AccountSnapshot) bool { return s.Email == email })
}

func (r *memAccountRepo) FindByCustomerID(_ context.Context, customerID domain.CustomerID) (*domain.Account, error) {
	return r.find(func(s domain.AccountSnapshot) bool { return s.CustomerID == customerID })
}

func (r *memAccountRepo) FindActiveByID(_ context.Context, id domain.AccountID) (*domain.Account, error) {
	return r.find(func(s domain.AccountSnapshot) bool { return s.ID == id && s.Status == domain.AccountStatusActive })
}

func (r *memAccountRepo) FindActiveByEmail(_ context.Context, email domain.Email) (*domain.Account, error) {
	return r.find(func(s domain.AccountSnapshot) bool { return s.Email == email && s.Status == domain.AccountStatusActive })
}

func (r *memAccountRepo) FindActiveByCustomerID(_ context.Context, customerID domain.CustomerID) (*domain.Account, error) {
	return r.find(func(s domain.AccountSnapshot) bool {
		return s.CustomerID == customerID && s.Status == domain.AccountStatusActive
	})
}

func (r *memAccountRepo) ExistsByEmail(ctx context.Context, email domain.Email) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	return err == nil, nil
}

func (r *memAccountRepo) ExistsByCustomerID(ctx context.Context, customerID domain.CustomerID) (bool, error) {
	_, err := r.FindByCustomerID(ctx, customerID)
	return err == nil, nil
}

func (r *memAccountRepo) Delete(_ context.Context, id domain.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

type seqIDs struct {
	mu       sync.Mutex
	account  int64
	customer int64
}

func (g *seqIDs) NextAccountID(context.Context) (domain.AccountID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account++
	return domain.AccountID(g.account), nil
}

func (g *seqIDs) NextCustomerID(context.Context) (domain.CustomerID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customer++
	return domain.CustomerID(1000 + g.customer), nil
}

// prefixEncoder keeps tests fast; it is not a real hash.
type prefixEncoder struct{}

func (prefixEncoder) Encode(raw string) (string, error) { return "enc:" + raw, nil }

func (prefixEncoder) Matches(raw, encoded string) (bool, error) {
	return strings.TrimPrefix(encoded, "enc:") == raw && strings.HasPrefix(encoded, "enc:"), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) has(eventType string) bool {
	for _, t := range p.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type memCursorStore struct {
	mu      sync.Mutex
	cursors map[domain.CustomerID]time.Time
	ttls    map[domain.CustomerID]time.Duration
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{
		cursors: make(map[domain.CustomerID]time.Time),
		ttls:    make(map[domain.CustomerID]time.Duration),
	}
}

func (s *memCursorStore) SetNotBefore(_ context.Context, customerID domain.CustomerID, notBefore time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[customerID] = notBefore
	s.ttls[customerID] = ttl
	return nil
}

func (s *memCursorStore) GetNotBefore(_ context.Context, customerID domain.CustomerID) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.cursors[customerID]
	return at, ok, nil
}

type memCodeStore struct {
	mu    sync.Mutex
	codes map[domain.AccountID]domain.ActivationCode
}

func newMemCodeStore() *memCodeStore {
	return &memCodeStore{codes: make(map[domain.AccountID]domain.ActivationCode)}
}

func (s *memCodeStore) Save(_ context.Context, accountID domain.AccountID, code domain.ActivationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[accountID] = code
	return nil
}

func (s *memCodeStore) Get(_ context.Context, accountID domain.AccountID) (*domain.ActivationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[accountID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &code, nil
}

func (s *memCodeStore) Delete(_ context.Context, accountID domain.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, accountID)
	return nil
}

type countingMetrics struct {
	mu            sync.Mutex
	logins        map[string]int
	issued        map[string]int
	revoked       map[string]int
	blacklistHits int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{logins: map[string]int{}, issued: map[string]int{}, revoked: map[string]int{}}
}

func (m *countingMetrics) ObserveLogin(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *countingMetrics) IncTokensIssued(tokenType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued[tokenType]++
}

func (m *countingMetrics) IncTokensRevoked(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[scope]++
}

func (m *countingMetrics) IncBlacklistHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklistHits++
}

// clock is a settable time source shared by the services under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	cfg       *config.AppConfig
	jwt       *security.JWTManager
	clock     *clock
	repo      *memAccountRepo
	ids       *seqIDs
	events    *recordingPublisher
	metrics   *countingMetrics
	blacklist *security.MemoryBlacklist
	cursors   *memCursorStore
	codes     *memCodeStore
	accounts  *AccountService
	tokens    *TokenService
	auth      *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:   &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		repo:    newMemAccountRepo(),
		ids:     &seqIDs{},
		events:  &recordingPublisher{},
		metrics: newCountingMetrics(),
		cursors: newMemCursorStore(),
		codes:   newMemCodeStore(),
	}
	f.blacklist = security.NewMemoryBlacklist(security.BlacklistOptions{}).WithClock(f.clock.Now)

	cfg := testConfig()
	manager := security.NewJWTManager(security.NewStaticKeyProvider(testSigningKey(t)), cfg.JWT.Issuer, cfg.JWT.Audience)
	f.cfg, f.jwt = cfg, manager

	f.accounts = NewAccountService(f.repo, f.ids, prefixEncoder{}, f.events, f.metrics, nil)
	f.accounts.WithClock(f.clock.Now)
	f.tokens = NewTokenService(cfg, manager, f.blacklist, f.cursors, f.events, f.metrics, nil)
	f.tokens.WithClock(f.clock.Now)
	f.auth = NewAuthService(f.accounts, f.tokens, f.codes, f.ids, f.events, nil)
	f.auth.WithClock(f.clock.Now)
	return f
}

// activeAccount registers and activates an account directly through the account service.
func (f *fixture) activeAccount(t *testing.T, email, password string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	customerID, _ := f.ids.NextCustomerID(ctx)
	account, err := f.accounts.CreateAccount(ctx, customerID, email, password)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	activated, err := f.accounts.Activate(ctx, account.ID())
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return activated
}
