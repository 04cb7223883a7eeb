package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// License types reported by the validation endpoint.
const (
	LicenseTypePro         = "pro"
	LicenseTypeDevelopment = "development"
)

// License describes a verified license key.
type License struct {
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LicenseCheck is an audit record of a single license verification.
type LicenseCheck struct {
	ID        int64     `json:"id"`
	KeyHash   string    `json:"key_hash"`
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source"`
	ClientIP  string    `json:"client_ip,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// LicenseState is the server-side view of a caller's license.
type LicenseState struct {
	Key           string    `json:"key,omitempty"`
	IsValid       bool      `json:"is_valid"`
	Tier          Tier      `json:"tier"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Error         string    `json:"error,omitempty"`
}

// HashKey returns the SHA-256 hex digest of a license key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, log-safe identifier for a license key.
func Fingerprint(key string) string {
	if key == "" {
		return ""
	}
	return HashKey(key)[:12]
}
