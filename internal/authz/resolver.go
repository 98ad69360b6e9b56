// Package authz resolves bearer credentials to stored profiles and gates
// operations on role and doctor approval.
package authz

import (
	"context"
	"errors"

	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/auth"
)

// ProfileReader is the lookup the resolver needs from the profile store.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
}

// Resolver turns a credential into the caller's current profile. It reads
// the store on every call so approval decisions apply immediately.
type Resolver struct {
	provider auth.Provider
	profiles ProfileReader
}

func NewResolver(provider auth.Provider, profiles ProfileReader) *Resolver {
	return &Resolver{provider: provider, profiles: profiles}
}

// Identify validates the credential without requiring a profile.
func (r *Resolver) Identify(ctx context.Context, credential string) (*auth.Identity, error) {
	if credential == "" {
		return nil, apperr.Unauthenticated(nil)
	}
	id, err := r.provider.Validate(ctx, credential)
	if err != nil {
		if errors.Is(err, auth.ErrProviderUnavailable) {
			return nil, apperr.Infrastructure("validate credential", err)
		}
		return nil, apperr.Unauthenticated(err)
	}
	return id, nil
}

// Resolve validates the credential and loads the profile. A valid
// credential without a profile fails with ProfileMissing.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*auth.Identity, *profile.Profile, error) {
	id, err := r.Identify(ctx, credential)
	if err != nil {
		return nil, nil, err
	}

	p, err := r.profiles.GetByID(ctx, id.Subject)
	if errors.Is(err, profile.ErrNotFound) {
		return id, nil, apperr.ProfileMissing()
	}
	if err != nil {
		return id, nil, apperr.Infrastructure("load profile", err)
	}
	if !p.Role.Valid() || !p.Status.Valid() {
		return id, nil, apperr.Forbidden("invalid account role")
	}
	return id, p, nil
}
