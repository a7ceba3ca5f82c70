// Package auth issues and validates the bearer tokens that guard the admin
// endpoints.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Admin tokens are HS256 JWTs signed with ADMIN_JWT_KEY. They carry a
// subject naming the operator and a scope listing what the bearer may do.
// There is no refresh flow: operators mint a new token when one expires.

// Token defaults.
const (
	// DefaultTokenExpiry is how long admin tokens are valid.
	DefaultTokenExpiry = 1 * time.Hour

	// DefaultIssuer is the issuer claim when none is configured.
	DefaultIssuer = "mobilille"

	// DefaultAudience is the audience claim when none is configured.
	DefaultAudience = "mobilille-admin"

	// ScopeRefresh allows triggering source refreshes.
	ScopeRefresh = "sources:refresh"
)

// Predefined JWT errors.
var (
	ErrInvalidToken      = errors.New("invalid admin token")
	ErrTokenExpired      = errors.New("admin token has expired")
	ErrInsufficientScope = errors.New("admin token lacks the required scope")
	ErrMissingSigningKey = errors.New("admin signing key is not configured")
)

// Claims represents the claims in an admin token.
type Claims struct {
	jwt.RegisteredClaims

	// Scopes lists the operations the bearer may perform.
	Scopes []string `json:"scp"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to sign JWTs.
	SigningKey string

	// Issuer is the issuer claim for tokens. Default: DefaultIssuer
	Issuer string

	// Audience is the audience claim for tokens. Default: DefaultAudience
	Audience string

	// Expiry is the lifetime of generated tokens. Default: DefaultTokenExpiry
	Expiry time.Duration

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// JWTService handles admin token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		now:        cfg.Now,
	}
}

// GenerateToken creates a token for subject carrying scopes.
func (s *JWTService) GenerateToken(subject string, scopes ...string) (string, time.Time, error) {
	if len(s.signingKey) == 0 {
		return "", time.Time{}, ErrMissingSigningKey
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing admin token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Authorize validates a token and checks it grants scope.
func (s *JWTService) Authorize(tokenString, scope string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.HasScope(scope) {
		return nil, ErrInsufficientScope
	}
	return claims, nil
}

func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
