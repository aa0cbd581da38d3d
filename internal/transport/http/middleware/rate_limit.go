package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://identity.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// RateLimitStore is the sliding-window storage behind the limiter.
type RateLimitStore interface {
	// Window trims expired attempts and returns the live count and the oldest live attempt (zero when none).
	Window(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, time.Time, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time, window time.Duration) error
}

// IdentifierFunc extracts the identifier used to scope a limit, e.g. the client IP.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is a sliding-window limit for one identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter enforces RateLimitRules against a RateLimitStore. Store failures let the request through.
type RateLimiter struct {
	store  RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type decision struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// ProblemDetails is an RFC 9457 error payload.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

func NewRateLimiter(store RateLimitStore, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// WithClock overrides the limiter clock for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier scopes a rule to the caller's IP address.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a middleware enforcing every rule. The tightest allowed rule sets the headers.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *decision

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			d, err := rl.evaluate(c.Request.Context(), rule, rule.Name+":"+identifier, now)
			if err != nil {
				logger.WithContext(c.Request.Context(), rl.logger).Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("client_ip", logger.MaskIP(identifier)),
					zap.Error(err),
				)
				continue
			}

			if !d.allowed {
				writeRateLimitHeaders(c, d)
				respondRateLimited(c, d)
				return
			}
			if tightest == nil || d.remaining < tightest.remaining ||
				(d.remaining == tightest.remaining && d.reset.Before(tightest.reset)) {
				snapshot := d
				tightest = &snapshot
			}
		}

		if tightest != nil {
			writeRateLimitHeaders(c, *tightest)
		}
		c.Next()
	}
}

func (rl *RateLimiter) evaluate(ctx context.Context, rule RateLimitRule, key string, now time.Time) (decision, error) {
	count, oldest, err := rl.store.Window(ctx, key, rule.Window, now)
	if err != nil {
		return decision{}, err
	}

	d := decision{limit: rule.Limit, reset: now.Add(rule.Window)}
	if !oldest.IsZero() {
		d.reset = oldest.Add(rule.Window)
	}
	d.retryAfter = d.reset.Sub(now)
	if d.retryAfter < 0 {
		d.retryAfter = 0
	}

	if count >= rule.Limit {
		return d, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now, rule.Window); err != nil {
		return decision{}, err
	}
	d.allowed = true
	d.remaining = rule.Limit - count - 1
	return d, nil
}

func retrySeconds(d decision) int {
	return int(math.Ceil(d.retryAfter.Seconds()))
}

func writeRateLimitHeaders(c *gin.Context, d decision) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(d.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))
	if !d.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(d)))
	}
}

func respondRateLimited(c *gin.Context, d decision) {
	seconds := retrySeconds(d)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
