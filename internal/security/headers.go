package security

import "net/http"

// Headers holds the values written by the Headers middleware.
type Headers struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
	PermissionsPolicy     string
	StrictTransport       string
}

// DefaultHeaders returns the production header set.
func DefaultHeaders() Headers {
	return Headers{
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline' https://js.stripe.com https://gumroad.com; " +
			"style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; " +
			"connect-src 'self' https://api.stripe.com https://api.gumroad.com; " +
			"frame-src https://js.stripe.com https://gumroad.com; frame-ancestors 'self'",
		FrameOptions:      "SAMEORIGIN",
		ReferrerPolicy:    "strict-origin-when-cross-origin",
		PermissionsPolicy: "camera=(), microphone=(), geolocation=()",
		StrictTransport:   "max-age=63072000; includeSubDomains; preload",
	}
}

// Middleware sets the security headers on every response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		if h.ContentSecurityPolicy != "" {
			header.Set("Content-Security-Policy", h.ContentSecurityPolicy)
		}
		if h.FrameOptions != "" {
			header.Set("X-Frame-Options", h.FrameOptions)
		}
		header.Set("X-Content-Type-Options", "nosniff")
		if h.ReferrerPolicy != "" {
			header.Set("Referrer-Policy", h.ReferrerPolicy)
		}
		if h.PermissionsPolicy != "" {
			header.Set("Permissions-Policy", h.PermissionsPolicy)
		}
		if h.StrictTransport != "" {
			header.Set("Strict-Transport-Security", h.StrictTransport)
		}
		next.ServeHTTP(w, r)
	})
}
