// Package auth issues and validates the bearer tokens that guard mutating
// registry operations, and models the statically configured admin principal.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role the registry issues today. The role claim is
// still carried explicitly so future roles only change the lookup, not the
// authorization contract.
const RoleAdmin = "admin"

var (
	// ErrInvalidToken covers malformed, tampered, and expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrForbidden is returned when a valid token lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Claims is the decoded token payload: subject, role, and expiry.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RequireRole fails with ErrForbidden unless the claims carry the role.
func (c Claims) RequireRole(role string) error {
	if c.Role != role {
		return ErrForbidden
	}
	return nil
}

// TokenService mints and verifies HMAC-signed, time-limited credentials.
// The signing secret is process-wide configuration set once at startup and
// never rotated at runtime; tokens are opaque to every other component.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenService instance.
type TokenOption func(*TokenService)

// WithClock overrides the time source, used by tests to control expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService constructs a service signing with secret and issuing
// tokens valid for ttl. A non-positive ttl falls back to one hour.
func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	service := &TokenService{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// Issue signs a token for subject carrying role, expiring after the
// configured TTL. The expiry instant is returned alongside the token.
func (s *TokenService) Issue(subject, role string) (string, time.Time, error) {
	expiresAt := s.now().Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies raw, returning its claims. Any failure mode
// (bad signature, malformed token, past expiry) reports ErrInvalidToken.
func (s *TokenService) Validate(raw string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// TTL reports the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
