package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any login failure. The message is
// deliberately identical for unknown email and wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Principal is the single privileged identity permitted to mutate vehicle
// records. The password is hashed once at startup; the plaintext is never
// retained.
type Principal struct {
	email        string
	passwordHash []byte
}

// NewPrincipal derives the admin principal from configured credentials.
func NewPrincipal(email, password string) (Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Principal{}, fmt.Errorf("admin email is required")
	}
	if password == "" {
		return Principal{}, fmt.Errorf("admin password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Principal{}, fmt.Errorf("hash admin password: %w", err)
	}
	return Principal{email: email, passwordHash: hash}, nil
}

// Email exposes the configured admin email, used as the token subject.
func (p Principal) Email() string {
	return p.email
}

// Authenticate verifies submitted credentials against the principal. Email
// comparison is case-insensitive; the password is checked against the hash.
func (p Principal) Authenticate(email, password string) error {
	if !strings.EqualFold(strings.TrimSpace(email), p.email) {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(p.passwordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
