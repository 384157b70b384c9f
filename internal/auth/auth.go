// Package auth resolves bearer tokens to principals and decides who may
// operate workflow transitions.
package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/pkg/errors"

	"github.com/vallemarketing/valle360-teste-sub009/config"
)

// Auth errors
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("administrator role required")
)

// Principal is the caller behind a token
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type credential struct {
	token     []byte
	principal Principal
}

// Authenticator checks static bearer tokens from config
type Authenticator struct {
	creds      []credential
	adminRoles map[string]bool
}

// NewAuthenticator creates an authenticator. Tokens without a value are
// ignored.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	a := &Authenticator{adminRoles: make(map[string]bool, len(cfg.AdminRoles))}
	for _, t := range cfg.Tokens {
		if strings.TrimSpace(t.Token) == "" {
			continue
		}
		a.creds = append(a.creds, credential{
			token:     []byte(t.Token),
			principal: Principal{UserID: t.UserID, Role: t.Role},
		})
	}
	for _, r := range cfg.AdminRoles {
		a.adminRoles[r] = true
	}
	return a
}

// Authenticate parses an Authorization header of the form "Bearer <token>"
func (a *Authenticator) Authenticate(header string) (Principal, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Principal{}, ErrUnauthenticated
	}
	token := []byte(parts[1])
	for _, c := range a.creds {
		if subtle.ConstantTimeCompare(c.token, token) == 1 {
			return c.principal, nil
		}
	}
	return Principal{}, ErrUnauthenticated
}

// IsAdmin reports whether the principal holds an administrator role
func (a *Authenticator) IsAdmin(p Principal) bool {
	return a.adminRoles[p.Role]
}

// Authorize returns ErrForbidden for non-administrators
func (a *Authenticator) Authorize(p Principal) error {
	if !a.IsAdmin(p) {
		return ErrForbidden
	}
	return nil
}
