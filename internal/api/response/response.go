// Package response provides utilities for HTTP response handling.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mobilille/mobilille/internal/api/middleware"
	"github.com/mobilille/mobilille/internal/api/models"
	"github.com/mobilille/mobilille/internal/views"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation. HTML characters are not
// escaped so upstream text is served unchanged.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// Unauthorized writes a 401 Unauthorized error response.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnauthorized(middleware.GetRequestID(r.Context()), detail))
}

// Forbidden writes a 403 Forbidden error response.
func Forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewForbidden(middleware.GetRequestID(r.Context()), detail))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// RateLimitInfo contains rate limit information for 429 responses.
type RateLimitInfo struct {
	// Limit is the maximum number of requests allowed in the window.
	Limit int
	// Remaining is the number of requests remaining in the current window.
	Remaining int
	// ResetAt is the Unix timestamp when the rate limit window resets.
	ResetAt int64
	// RetryAfter is the number of seconds until the client should retry.
	RetryAfter int
}

// TooManyRequests writes a 429 Too Many Requests error response.
func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string) {
	TooManyRequestsWithInfo(w, r, detail, nil)
}

// TooManyRequestsWithInfo writes a 429 Too Many Requests error response with rate limit headers.
func TooManyRequestsWithInfo(w http.ResponseWriter, r *http.Request, detail string, info *RateLimitInfo) {
	if info != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt, 10))
		if info.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(info.RetryAfter))
		}
	}
	Error(w, r, models.NewTooManyRequests(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}

// NotReady writes the 503 served while views wait for their first data.
func NotReady(w http.ResponseWriter, r *http.Request, pending ...string) {
	problem := models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), views.ErrNotReady.Error()).
		WithPending(pending)
	w.Header().Set("Retry-After", "5")
	Error(w, r, problem)
}

// ViewError maps a view read error to a problem response.
func ViewError(w http.ResponseWriter, r *http.Request, view string, err error) {
	switch {
	case errors.Is(err, views.ErrNotReady):
		NotReady(w, r, view)
		return
	case errors.Is(err, views.ErrUnknownView):
		NotFound(w, r, "view "+view+" is not served")
		return
	}
	InternalError(w, r, "view "+view+" could not be read")
}

// Accepted writes a 202 Accepted response with Location header.
// Includes X-Request-Id header for correlation.
func Accepted(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusAccepted, data)
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
}
