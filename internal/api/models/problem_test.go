package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilille/mobilille/internal/api/models"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeUnavailable,
		"Service unavailable",
		http.StatusServiceUnavailable,
		"req_test123",
	)

	assert.Equal(t, models.ProblemTypeUnavailable, p.Type)
	assert.Equal(t, "Service unavailable", p.Title)
	assert.Equal(t, http.StatusServiceUnavailable, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Pending)
}

func TestProblem_Builders(t *testing.T) {
	p := models.NewServiceUnavailable("req_test123", "data is being retrieved").
		WithInstance("/api/matched_stops").
		WithPending([]string{"matched_stops"})

	assert.Equal(t, "data is being retrieved", p.Detail)
	assert.Equal(t, "/api/matched_stops", p.Instance)
	assert.Equal(t, []string{"matched_stops"}, p.Pending)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewServiceUnavailable("req_test123", "data is being retrieved").
		WithInstance("/api/gtfs").
		WithPending([]string{"gtfs"})

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeUnavailable, result.Type)
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
	assert.Equal(t, "data is being retrieved", result.Detail)
	assert.Equal(t, "/api/gtfs", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
	assert.Equal(t, []string{"gtfs"}, result.Pending)
}

func TestProblem_WriteOmitsEmptyFields(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewProblem(models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, "req_1").Write(w)

	assert.NotContains(t, w.Body.String(), "detail")
	assert.NotContains(t, w.Body.String(), "pending")
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name     string
		problem  *models.Problem
		wantType string
		title    string
		status   int
	}{
		{"unauthorized", models.NewUnauthorized("req_123", "d"), models.ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized},
		{"forbidden", models.NewForbidden("req_123", "d"), models.ProblemTypeForbidden, "Forbidden", http.StatusForbidden},
		{"not found", models.NewNotFound("req_123", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"too many requests", models.NewTooManyRequests("req_123", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_123", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req_123", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "req_123", tt.problem.TraceID)
		})
	}
}
