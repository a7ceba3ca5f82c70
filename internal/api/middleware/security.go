package middleware

import (
	"net/http"

	"github.com/mobilille/mobilille/internal/api/models"
)

// APIContentSecurityPolicy is served with JSON responses, which never load
// sub-resources.
const APIContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders adds standard security headers to all HTTP responses.
// Headers set:
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: strict-origin-when-cross-origin
//   - Permissions-Policy: camera=(), microphone=()
//
// Pages embed third-party maps and widgets, so the Content-Security-Policy
// is set per route group with ContentSecurityPolicy.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// Geolocation stays allowed: the pages locate the nearest stop.
		w.Header().Set("Permissions-Policy", "camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// ContentSecurityPolicy sets the Content-Security-Policy header.
func ContentSecurityPolicy(policy string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", policy)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTLS returns middleware that rejects plain HTTP requests when
// enabled. It checks the X-Forwarded-Proto header set by the load balancer;
// requests without the header are direct connections and pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto != "" && proto != "https" {
				problem := models.NewProblem(
					models.ProblemTypeTLSRequired,
					"TLS required",
					http.StatusForbidden,
					GetRequestID(r.Context()),
				)
				problem.Detail = "This endpoint requires HTTPS"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
