// Package models contains domain models and entities.
package models

import (
	"errors"
	"strings"
	"time"
)

// Tier is the access level of a caller.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Rate limiting constants shared by every tier.
const (
	// Window is the fixed rate-limit accounting interval.
	Window = 60 * time.Second

	FreeTierLimit = 10
	ProTierLimit  = 60
)

// ErrUnknownTier is returned when a tier name cannot be parsed.
var ErrUnknownTier = errors.New("unknown tier")

// Limit returns the number of requests the tier may make per Window.
// Unknown tiers get the free limit.
func (t Tier) Limit() int {
	if t == TierPro {
		return ProTierLimit
	}
	return FreeTierLimit
}

// IsPro reports whether the tier unlocks pro-only tools.
func (t Tier) IsPro() bool {
	return t == TierPro
}

// String returns the tier name.
func (t Tier) String() string {
	return string(t)
}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree, nil
	case "pro":
		return TierPro, nil
	default:
		return "", ErrUnknownTier
	}
}

// TierFor returns the tier granted by a license check outcome.
func TierFor(licenseValid bool) Tier {
	if licenseValid {
		return TierPro
	}
	return TierFree
}

// Tiers lists every tier in ascending order of quota.
func Tiers() []Tier {
	return []Tier{TierFree, TierPro}
}
