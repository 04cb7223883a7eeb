package license

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// errUpstream marks a result that should count as a breaker failure.
var errUpstream = errors.New("licensing service unavailable")

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32        // Consecutive upstream failures that open the circuit
	OpenTimeout time.Duration // Time spent open before a half-open probe
	MaxRequests uint32        // Probes allowed while half-open
}

// Breaker stops calling a failing licensing service for a while.
// An open circuit fails closed.
type Breaker struct {
	next Verifier
	cb   *gobreaker.CircuitBreaker
	log  *logger.Logger
	now  func() time.Time
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Verifier, cfg BreakerConfig, log *logger.Logger) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "licensing"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if log == nil {
		log = logger.Nop()
	}

	b := &Breaker{next: next, log: log, now: time.Now}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.SetCircuitBreakerState(name, stateValue(to))
		},
	})
	metrics.SetCircuitBreakerState(cfg.Name, 0)

	return b
}

// Verify calls the wrapped verifier unless the circuit is open.
func (b *Breaker) Verify(ctx context.Context, key string) Result {
	out, err := b.cb.Execute(func() (any, error) {
		res := b.next.Verify(ctx, key)
		if res.Reason == ReasonUpstreamError {
			return res, errUpstream
		}
		return res, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordLicenseVerification(false, string(ReasonCircuitOpen))
		return invalid(ReasonCircuitOpen, SourceBreaker, b.now())
	}

	res, ok := out.(Result)
	if !ok {
		return invalid(ReasonUpstreamError, SourceBreaker, b.now())
	}
	return res
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
