package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/mobilille/mobilille/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// AdminRateLimit applies to admin endpoints (10 req/min).
	AdminRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}

	// DataRateLimit applies to the data endpoints polled by the pages (300 req/min).
	DataRateLimit = RateLimitConfig{
		RequestLimit: 300,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Round(time.Second) / time.Second))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			rateLimitExceeded(w, r, retryAfter)
		}),
	)
}

// rateLimitExceeded writes an RFC7807 Problem response when rate limit is exceeded.
// httprate doesn't expose the exact reset time, so Retry-After is the window length.
func rateLimitExceeded(w http.ResponseWriter, r *http.Request, retryAfter string) {
	problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
	problem.Instance = r.URL.Path

	w.Header().Set("Retry-After", retryAfter)
	problem.Write(w)
}
