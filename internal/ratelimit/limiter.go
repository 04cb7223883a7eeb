// Package ratelimit provides the sliding-window rate limiter that gates tool
// requests per client and tier.
//
// The limiter fails open: when the counter store cannot be reached the request
// is admitted, the decision is flagged FailOpen and the error is logged and
// counted. A limiter outage must never take the tools offline.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// ErrRateLimitExceeded is returned when the rate limit is exceeded.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// anonymousClient buckets requests whose client could not be identified.
const anonymousClient = "anonymous"

// Window is the state of one client's window after a hit.
type Window struct {
	Count    int       // Requests in the window, including this one if admitted
	Oldest   time.Time // Oldest request still inside the window
	Admitted bool      // Whether this hit was recorded
}

// Store records hits in per-client sliding windows.
// Hit must prune, check and record atomically for a given key.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Window, error)
	Reset(ctx context.Context, key string) error
	Close() error
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Tier       models.Tier
	FailOpen   bool
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, at least 1.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Config holds rate limiter configuration.
type Config struct {
	Window time.Duration       // Sliding window size
	Limits map[models.Tier]int // Per-tier overrides; zero falls back to the tier default
}

// DefaultConfig returns the production tier configuration.
func DefaultConfig() Config {
	return Config{
		Window: models.Window,
		Limits: map[models.Tier]int{
			models.TierFree: models.FreeTierLimit,
			models.TierPro:  models.ProTierLimit,
		},
	}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter applies per-tier quotas over a Store.
type Limiter struct {
	store  Store
	config Config
	log    *logger.Logger
	now    func() time.Time
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store, cfg Config, log *logger.Logger, opts ...Option) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = models.Window
	}
	if log == nil {
		log = logger.Nop()
	}

	l := &Limiter{
		store:  store,
		config: cfg,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LimitFor returns the request quota for a tier.
func (l *Limiter) LimitFor(tier models.Tier) int {
	if n, ok := l.config.Limits[tier]; ok && n > 0 {
		return n
	}
	return tier.Limit()
}

// Window returns the configured window size.
func (l *Limiter) Window() time.Duration {
	return l.config.Window
}

// Check records a request for clientID if it fits the tier's quota.
// It never returns an error; store failures produce a FailOpen decision.
func (l *Limiter) Check(ctx context.Context, clientID string, tier models.Tier) Decision {
	if clientID == "" {
		clientID = anonymousClient
	}

	now := l.now()
	limit := l.LimitFor(tier)

	w, err := l.store.Hit(ctx, clientID, now, l.config.Window, limit)
	if err != nil {
		l.log.Warn("rate limit store unavailable, admitting request",
			"client_ip", clientID,
			"tier", tier.String(),
			"error", err,
		)
		metrics.RecordRateLimitStoreError()
		metrics.RecordRateLimitDecision(tier.String(), true)
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - 1,
			ResetAt:   now.Add(l.config.Window),
			Tier:      tier,
			FailOpen:  true,
		}
	}

	d := Decision{
		Allowed: w.Admitted,
		Limit:   limit,
		Tier:    tier,
	}

	resetAt := now.Add(l.config.Window)
	if !w.Oldest.IsZero() {
		resetAt = w.Oldest.Add(l.config.Window)
	}
	d.ResetAt = resetAt

	if w.Admitted {
		d.Remaining = limit - w.Count
		if d.Remaining < 0 {
			d.Remaining = 0
		}
	} else {
		d.Remaining = 0
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}

	metrics.RecordRateLimitDecision(tier.String(), d.Allowed)
	return d
}

// Reset clears the window for clientID.
func (l *Limiter) Reset(ctx context.Context, clientID string) error {
	return l.store.Reset(ctx, clientID)
}

// Close releases the store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
