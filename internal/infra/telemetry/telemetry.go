package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/customer-identity/internal/core/port"
)

const defaultNamespace = "identity"

// AuthMetricsOptions configures the authentication collectors.
type AuthMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// AuthMetrics implements port.AuthMetrics with Prometheus counters.
type AuthMetrics struct {
	Logins        *prometheus.CounterVec
	TokensIssued  *prometheus.CounterVec
	TokensRevoked *prometheus.CounterVec
	BlacklistHits prometheus.Counter
}

var _ port.AuthMetrics = (*AuthMetrics)(nil)

// NewAuthMetrics builds the collectors and registers them, reusing collectors that are already registered.
func NewAuthMetrics(opts AuthMetricsOptions) (*AuthMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	issued, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "tokens_issued_total",
		Help:      "JWTs issued partitioned by token type.",
	}, []string{"type"}))
	if err != nil {
		return nil, err
	}

	revoked, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "tokens_revoked_total",
		Help:      "Token revocations partitioned by scope (token or customer).",
	}, []string{"scope"}))
	if err != nil {
		return nil, err
	}

	hits, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "blacklist_hits_total",
		Help:      "Blacklisted tokens presented for validation.",
	}))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		Logins:        logins,
		TokensIssued:  issued,
		TokensRevoked: revoked,
		BlacklistHits: hits,
	}, nil
}

func (m *AuthMetrics) ObserveLogin(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) IncTokensIssued(tokenType string) {
	m.TokensIssued.WithLabelValues(tokenType).Inc()
}

func (m *AuthMetrics) IncTokensRevoked(scope string) {
	m.TokensRevoked.WithLabelValues(scope).Inc()
}

func (m *AuthMetrics) IncBlacklistHit() {
	m.BlacklistHits.Inc()
}

// Register registers c, returning the already registered collector of the same type when there is one.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}
