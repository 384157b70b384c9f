package auth

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vallemarketing/valle360-teste-sub009/config"
)

func newAuthenticator() *Authenticator {
	return NewAuthenticator(config.AuthConfig{
		Tokens: []config.TokenConfig{
			{Token: "admin-token", UserID: "u-admin", Role: "super_admin"},
			{Token: "finance-token", UserID: "u-fin", Role: "finance"},
			{Token: " ", UserID: "u-blank", Role: "admin"},
		},
		AdminRoles: []string{"super_admin", "admin"},
	})
}

func TestAuthenticate(t *testing.T) {
	a := newAuthenticator()

	p, err := a.Authenticate("Bearer admin-token")
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u-admin", Role: "super_admin"}, p)

	p, err = a.Authenticate("bearer finance-token")
	require.NoError(t, err)
	assert.Equal(t, "u-fin", p.UserID)

	for _, header := range []string{"", "admin-token", "Basic admin-token", "Bearer wrong", "Bearer  ", "Bearer a b"} {
		_, err := a.Authenticate(header)
		assert.True(t, errors.Is(err, ErrUnauthenticated), header)
	}
}

func TestAuthorize(t *testing.T) {
	a := newAuthenticator()
	assert.NoError(t, a.Authorize(Principal{Role: "admin"}))
	assert.NoError(t, a.Authorize(Principal{Role: "super_admin"}))
	assert.True(t, errors.Is(a.Authorize(Principal{Role: "finance"}), ErrForbidden))
	assert.True(t, errors.Is(a.Authorize(Principal{}), ErrForbidden))
}
