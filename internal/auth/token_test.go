package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	service := NewTokenService([]byte("super-secret"), 45*time.Minute)

	token, expiresAt, err := service.Issue("admin@vr.local", RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@vr.local", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.WithinDuration(t, time.Now().Add(45*time.Minute), expiresAt, 5*time.Second)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt.Time, time.Second)
}

func TestTokenExpired(t *testing.T) {
	t.Parallel()

	current := time.Now()
	service := NewTokenService([]byte("secret"), 30*time.Minute, WithClock(func() time.Time { return current }))

	token, _, err := service.Issue("admin@vr.local", RoleAdmin)
	require.NoError(t, err)

	current = current.Add(31 * time.Minute)
	_, err = service.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWrongSecret(t *testing.T) {
	t.Parallel()

	issuer := NewTokenService([]byte("right-secret"), time.Hour)
	verifier := NewTokenService([]byte("wrong-secret"), time.Hour)

	token, _, err := issuer.Issue("admin@vr.local", RoleAdmin)
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenMalformed(t *testing.T) {
	t.Parallel()

	service := NewTokenService([]byte("secret"), time.Hour)
	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := service.Validate(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "raw=%q", raw)
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	service := NewTokenService([]byte("secret"), time.Hour)
	token, _, err := service.Issue("viewer@vr.local", "viewer")
	require.NoError(t, err)

	claims, err := service.Validate(token)
	require.NoError(t, err)
	assert.ErrorIs(t, claims.RequireRole(RoleAdmin), ErrForbidden)
	assert.NoError(t, claims.RequireRole("viewer"))
}
