// Package license verifies license keys against the licensing service.
//
// Verification fails closed: any doubt about a key (network failure,
// unexpected response, open circuit) yields an invalid result and the caller
// stays on the free tier. Verifiers never return errors.
package license

import (
	"context"
	"time"

	"github.com/devtoolspro/gateway/internal/models"
)

// DevTestKey is accepted without a network call outside production.
const DevTestKey = "DEV-TEST-2024"

// Reason explains why a key is not valid.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonEmptyKey              Reason = "empty_key"
	ReasonInvalid               Reason = "invalid"
	ReasonRefunded              Reason = "refunded"
	ReasonChargebacked          Reason = "chargebacked"
	ReasonSubscriptionEnded     Reason = "subscription_ended"
	ReasonSubscriptionCancelled Reason = "subscription_cancelled"
	ReasonUpstreamError         Reason = "upstream_error"
	ReasonCircuitOpen           Reason = "circuit_open"
)

// Transient reports whether the reason reflects an outage rather than the key.
func (r Reason) Transient() bool {
	return r == ReasonUpstreamError || r == ReasonCircuitOpen
}

// Message is the client-facing explanation for an invalid key.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonEmptyKey:
		return "License key is required"
	case ReasonInvalid:
		return "Invalid license key"
	case ReasonUpstreamError, ReasonCircuitOpen:
		return "License could not be verified, try again later"
	default:
		return "License key is inactive or expired"
	}
}

// Sources of a verification result.
const (
	SourceDevKey   = "dev_key"
	SourceUpstream = "upstream"
	SourceCache    = "cache"
	SourceBreaker  = "breaker"
	SourceInput    = "input"
)

// Result is the outcome of verifying one key.
type Result struct {
	Valid     bool            `json:"valid"`
	License   *models.License `json:"license,omitempty"`
	Reason    Reason          `json:"reason,omitempty"`
	Source    string          `json:"source"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Tier returns the tier the result grants.
func (r Result) Tier() models.Tier {
	return models.TierFor(r.Valid)
}

// State converts the result into the caller-facing license state.
func (r Result) State(key string) models.LicenseState {
	return models.LicenseState{
		Key:           key,
		IsValid:       r.Valid,
		Tier:          r.Tier(),
		LastCheckedAt: r.CheckedAt,
		Error:         r.Reason.Message(),
	}
}

// Verifier checks whether a license key grants the pro tier.
type Verifier interface {
	Verify(ctx context.Context, key string) Result
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, key string) Result

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, key string) Result {
	return f(ctx, key)
}

func invalid(reason Reason, source string, now time.Time) Result {
	return Result{Valid: false, Reason: reason, Source: source, CheckedAt: now}
}
