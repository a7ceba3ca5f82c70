package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mobilille/mobilille/internal/api/models"
	"github.com/mobilille/mobilille/internal/auth"
)

// subjectKey is the context key for the authenticated token subject.
type subjectKey struct{}

// TokenAuthorizer validates a bearer token for a scope.
type TokenAuthorizer interface {
	Authorize(token, scope string) (*auth.Claims, error)
}

// AdminAuth creates middleware that requires a bearer token granting scope.
func AdminAuth(authorizer TokenAuthorizer, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Check for Bearer prefix (case-insensitive)
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := authorizer.Authorize(tokenString, scope)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "admin token has expired")
				case errors.Is(err, auth.ErrInsufficientScope):
					writeForbidden(w, r, "token does not grant "+scope)
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid admin token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	w.Header().Set("WWW-Authenticate", `Bearer realm="mobilille-admin"`)
	problem.Write(w)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewForbidden(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetSubject retrieves the authenticated token subject from the context.
// Returns an empty string if not authenticated.
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey{}).(string); ok {
		return sub
	}
	return ""
}
