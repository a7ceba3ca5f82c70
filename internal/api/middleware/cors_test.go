package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobilille/mobilille/internal/api/middleware"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{"any origin by default", nil, "https://example.org", "*"},
		{"wildcard", []string{"*"}, "https://example.org", "*"},
		{"listed origin", []string{"https://mobilille.fr"}, "https://mobilille.fr", "https://mobilille.fr"},
		{"unlisted origin", []string{"https://mobilille.fr"}, "https://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.CORS(tt.origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/matched_stops", http.NoBody)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantHeader, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	handler := middleware.CORS([]string{"https://mobilille.fr"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/sources/realtime/refresh", http.NoBody)
	req.Header.Set("Origin", "https://mobilille.fr")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://mobilille.fr", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
