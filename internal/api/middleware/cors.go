package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows cross-origin reads of the data endpoints from origins.
// An empty list or "*" allows any origin without credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	for _, o := range opts.AllowedOrigins {
		if o != "*" {
			opts.AllowCredentials = true
			break
		}
	}
	return cors.Handler(opts)
}
