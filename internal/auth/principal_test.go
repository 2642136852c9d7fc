package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalAuthenticate(t *testing.T) {
	t.Parallel()

	principal, err := NewPrincipal("admin@vr.local", "admin123")
	require.NoError(t, err)

	assert.NoError(t, principal.Authenticate("admin@vr.local", "admin123"))
	assert.NoError(t, principal.Authenticate("ADMIN@VR.LOCAL", "admin123"), "email compare is case-insensitive")
	assert.NoError(t, principal.Authenticate("  admin@vr.local ", "admin123"))

	assert.ErrorIs(t, principal.Authenticate("admin@vr.local", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, principal.Authenticate("other@vr.local", "admin123"), ErrInvalidCredentials)
	assert.ErrorIs(t, principal.Authenticate("", ""), ErrInvalidCredentials)
}

func TestNewPrincipalRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewPrincipal("", "password")
	assert.Error(t, err)

	_, err = NewPrincipal("admin@vr.local", "")
	assert.Error(t, err)
}
