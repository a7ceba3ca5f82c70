package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilille/mobilille/internal/auth"
)

func TestJWTService_GenerateAndValidateToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: "test-secret-key-for-testing-only"})

	token, expiresAt, err := svc.GenerateToken("ops@mobilille", auth.ScopeRefresh)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@mobilille", claims.Subject)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
	assert.True(t, claims.HasScope(auth.ScopeRefresh))
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: "test-secret-key-for-testing-only"})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := auth.NewJWTService(auth.JWTConfig{SigningKey: "key-one"}).
		GenerateToken("ops", auth.ScopeRefresh)
	require.NoError(t, err)

	_, err = auth.NewJWTService(auth.JWTConfig{SigningKey: "key-two"}).ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_WrongAudience(t *testing.T) {
	token, _, err := auth.NewJWTService(auth.JWTConfig{SigningKey: "test-key", Audience: "audience-one"}).
		GenerateToken("ops", auth.ScopeRefresh)
	require.NoError(t, err)

	_, err = auth.NewJWTService(auth.JWTConfig{SigningKey: "test-key", Audience: "audience-two"}).ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issued

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-key",
		Expiry:     time.Minute,
		Now:        func() time.Time { return now },
	})

	token, _, err := svc.GenerateToken("ops", auth.ScopeRefresh)
	require.NoError(t, err)

	now = issued.Add(2 * time.Minute)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestJWTService_Authorize(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: "test-key"})

	scoped, _, err := svc.GenerateToken("ops", auth.ScopeRefresh)
	require.NoError(t, err)
	unscoped, _, err := svc.GenerateToken("viewer")
	require.NoError(t, err)

	_, err = svc.Authorize(scoped, auth.ScopeRefresh)
	assert.NoError(t, err)

	_, err = svc.Authorize(unscoped, auth.ScopeRefresh)
	assert.ErrorIs(t, err, auth.ErrInsufficientScope)
}

func TestJWTService_MissingSigningKey(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{})

	_, _, err := svc.GenerateToken("ops")
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)

	_, err = svc.ValidateToken("a.b.c")
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
}
