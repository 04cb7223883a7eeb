package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	DefaultOrigin  string   // Returned when the request has no Origin
	AllowedOrigins []string // When non-empty, only these origins are echoed
	MaxAge         int      // Preflight cache lifetime in seconds
}

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-License-Key"
	corsMaxAge       = 86400
)

// CORS returns a middleware that attaches CORS headers to every response.
// The request Origin is echoed back; an origin outside AllowedOrigins gets
// the default origin instead.
func CORS(cfg CORSConfig) Middleware {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = corsMaxAge
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || (len(allowed) > 0 && !allowed[origin]) {
				origin = cfg.DefaultOrigin
			}

			h := w.Header()
			if origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			h.Add("Vary", "Origin")

			next.ServeHTTP(w, r)
		})
	}
}
