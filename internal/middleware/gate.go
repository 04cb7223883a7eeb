package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/devtoolspro/gateway/internal/license"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/internal/ratelimit"
	"github.com/devtoolspro/gateway/pkg/logger"
)

const (
	// HeaderLicenseKey carries the caller's license key.
	HeaderLicenseKey = "X-License-Key"
	// HeaderTier reports the tier the request was served under.
	HeaderTier = "X-Tier"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// DefaultBypassPaths are forwarded without rate limiting.
var DefaultBypassPaths = []string{
	"/api/v1/license/validate",
	"/api/v1/webhooks/stripe",
	"/health",
	"/ready",
	"/metrics",
}

// RateLimiter decides whether a client may make another request.
type RateLimiter interface {
	Check(ctx context.Context, clientID string, tier models.Tier) ratelimit.Decision
}

// GateConfig holds configuration for the request gate.
type GateConfig struct {
	BypassPaths []string // Exact paths forwarded without limiting
}

// RateLimitResponse is the JSON response for rate limited requests.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after"`
}

// Gate returns a middleware that resolves the caller's tier and enforces its
// rate limit. Preflight requests are answered with 204 and bypass paths are
// forwarded untouched.
func Gate(limiter RateLimiter, verifier license.Verifier, cfg GateConfig, log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}

	bypass := cfg.BypassPaths
	if bypass == nil {
		bypass = DefaultBypassPaths
	}
	bypassSet := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		bypassSet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if bypassSet[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			clientID := GetClientIP(r.Context())
			if clientID == "" {
				clientID = extractIPFromAddr(r.RemoteAddr)
			}

			tier := resolveTier(r, verifier)

			decision := limiter.Check(r.Context(), clientID, tier)
			setRateLimitHeaders(w, decision)

			if !decision.Allowed {
				log.Info("rate limit exceeded",
					"request_id", GetRequestID(r.Context()),
					"client_ip", clientID,
					"tier", tier.String(),
				)
				writeRateLimitResponse(w, decision)
				return
			}

			w.Header().Set(HeaderTier, tier.String())
			next.ServeHTTP(w, r.WithContext(WithTier(r.Context(), tier)))
		})
	}
}

// resolveTier returns pro only for a request carrying a valid license key.
func resolveTier(r *http.Request, verifier license.Verifier) models.Tier {
	key := strings.TrimSpace(r.Header.Get(HeaderLicenseKey))
	if key == "" || verifier == nil {
		return models.TierFree
	}
	return verifier.Verify(r.Context(), key).Tier()
}

// setRateLimitHeaders sets the rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

	if !d.Allowed {
		w.Header().Set(HeaderRetryAfter, strconv.Itoa(d.RetryAfterSeconds()))
	}
}

// writeRateLimitResponse writes the 429 response.
func writeRateLimitResponse(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	resp := RateLimitResponse{
		Error:      "Rate limit exceeded. Please try again later.",
		Code:       "RATE_LIMIT_EXCEEDED",
		RetryAfter: d.RetryAfterSeconds(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}
