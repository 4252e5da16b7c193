package http

import (
	"net/http"
	"strings"
)

// SecurityHeaders decorates every response with the console's fixed header
// set. The headers depend only on the deployment mode, never on the request.
func SecurityHeaders(production bool) func(http.Handler) http.Handler {
	csp := contentSecurityPolicy(production)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), interest-cohort=()")
			if production {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// contentSecurityPolicy builds the static CSP. Development keeps the looser
// script-src the dashboard's dev tooling needs; production drops it.
func contentSecurityPolicy(production bool) string {
	scriptSrc := "script-src 'self' 'unsafe-eval' 'unsafe-inline'"
	if production {
		scriptSrc = "script-src 'self'"
	}

	directives := []string{
		"default-src 'self'",
		scriptSrc,
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' blob: data:",
		"font-src 'self'",
		"connect-src 'self' ws: wss:",
		"object-src 'none'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}
	return strings.Join(directives, "; ")
}
