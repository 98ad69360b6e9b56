// Package auth validates bearer credentials against the configured identity
// provider. It knows nothing about profiles or roles.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidCredential covers every reason a credential is rejected.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrProviderUnavailable means the credential could not be checked.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Identity is what the provider vouches for.
type Identity struct {
	Subject   string    `json:"id"`
	Email     string    `json:"email"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Provider validates an opaque bearer credential.
type Provider interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrInvalidCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidCredential
	}
	return token, nil
}
