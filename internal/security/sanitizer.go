// Package security validates tool input and sets response security headers.
package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sanitization errors
var (
	ErrEmptyInput      = errors.New("input cannot be empty")
	ErrInputTooLarge   = errors.New("input exceeds maximum size")
	ErrInvalidEncoding = errors.New("input must be valid UTF-8")
	ErrDangerousInput  = errors.New("input contains potentially malicious content")
	ErrMalformedJSON   = errors.New("input is not valid JSON")
)

// DefaultMaxInputBytes caps tool input at 1 MiB.
const DefaultMaxInputBytes = 1 << 20

// defaultBlocked lists substrings rejected per tool, matched case-insensitively.
var defaultBlocked = map[string][]string{
	"csv": {"javascript", "script", "onload"},
}

// Config holds sanitizer configuration.
type Config struct {
	MaxInputBytes int                 // Maximum allowed input size in bytes
	Blocked       map[string][]string // Per-tool blocked substrings
}

// DefaultConfig returns the default sanitizer configuration.
func DefaultConfig() Config {
	return Config{
		MaxInputBytes: DefaultMaxInputBytes,
		Blocked:       defaultBlocked,
	}
}

// Sanitizer validates tool input before it reaches a formatter.
type Sanitizer struct {
	config  Config
	blocked map[string][]string
}

// NewSanitizer creates a new input sanitizer.
func NewSanitizer(cfg Config) *Sanitizer {
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = DefaultMaxInputBytes
	}

	blocked := make(map[string][]string, len(cfg.Blocked))
	for tool, patterns := range cfg.Blocked {
		for _, p := range patterns {
			blocked[tool] = append(blocked[tool], strings.ToLower(p))
		}
	}

	return &Sanitizer{
		config:  cfg,
		blocked: blocked,
	}
}

// MaxInputBytes returns the configured size limit.
func (s *Sanitizer) MaxInputBytes() int {
	return s.config.MaxInputBytes
}

// Validate checks input destined for the given tool.
func (s *Sanitizer) Validate(tool, input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}

	if len(input) > s.config.MaxInputBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrInputTooLarge, len(input), s.config.MaxInputBytes)
	}

	if !utf8.ValidString(input) {
		return ErrInvalidEncoding
	}

	if patterns := s.blocked[tool]; len(patterns) > 0 {
		lower := strings.ToLower(input)
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				return ErrDangerousInput
			}
		}
	}

	switch tool {
	case "json", "json-minify":
		if !json.Valid([]byte(input)) {
			return ErrMalformedJSON
		}
	}

	return nil
}
