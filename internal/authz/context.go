package authz

import (
	"context"

	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/auth"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	profileKey  contextKey = "profile"
)

func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

func WithProfile(ctx context.Context, p *profile.Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// ProfileFromContext returns the profile attached by Guard.Authorize.
func ProfileFromContext(ctx context.Context) *profile.Profile {
	p, _ := ctx.Value(profileKey).(*profile.Profile)
	return p
}
