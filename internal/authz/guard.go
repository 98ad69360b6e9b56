package authz

import (
	"context"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/auth"
)

// PendingApprovalMessage is shown for every gated action a doctor attempts
// before approval.
const PendingApprovalMessage = "doctor account pending approval"

// Policy decides whether a resolved profile may proceed.
type Policy func(p *profile.Profile) error

// RequireRole admits the listed roles.
func RequireRole(roles ...profile.Role) Policy {
	return func(p *profile.Profile) error {
		if slices.Contains(roles, p.Role) {
			return nil
		}
		return apperr.Forbidden("insufficient role")
	}
}

// RequireApproved blocks doctors that are not approved. Other roles have
// no approval state and always pass.
func RequireApproved() Policy {
	return func(p *profile.Profile) error {
		if p.Role != profile.RoleDoctor || p.Status == profile.StatusApproved {
			return nil
		}
		if p.Status == profile.StatusRejected {
			return apperr.Forbidden("doctor account was not approved")
		}
		return apperr.Forbidden(PendingApprovalMessage)
	}
}

type Guard struct {
	resolver *Resolver
}

func NewGuard(resolver *Resolver) *Guard {
	return &Guard{resolver: resolver}
}

func (g *Guard) Resolver() *Resolver { return g.resolver }

// Check resolves the credential and then applies each policy in order.
// Resolution failures always win, so a bad credential is never reported
// as Forbidden.
func (g *Guard) Check(ctx context.Context, credential string, policies ...Policy) (*auth.Identity, *profile.Profile, error) {
	id, p, err := g.resolver.Resolve(ctx, credential)
	if err != nil {
		return nil, nil, err
	}
	for _, policy := range policies {
		if err := policy(p); err != nil {
			return nil, nil, err
		}
	}
	return id, p, nil
}

// Authorize wraps a handler with Check. The wrapped handler never runs when
// the check fails; on success the profile is attached to the request.
func (g *Guard) Authorize(policies ...Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, p, err := g.Check(c.Request().Context(), credentialFrom(c), policies...)
			if err != nil {
				return err
			}
			attach(c, id, p)
			return next(c)
		}
	}
}

// Identified requires a valid credential but no profile. Used by the
// registration and current-identity routes.
func (g *Guard) Identified() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := g.resolver.Identify(c.Request().Context(), credentialFrom(c))
			if err != nil {
				return err
			}
			attach(c, id, nil)
			return next(c)
		}
	}
}

func credentialFrom(c echo.Context) string {
	token, err := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return ""
	}
	return token
}

func attach(c echo.Context, id *auth.Identity, p *profile.Profile) {
	ctx := WithIdentity(c.Request().Context(), id)
	if p != nil {
		ctx = WithProfile(ctx, p)
		c.Set("user_id", p.ID)
		c.Set("user_role", string(p.Role))
	}
	c.SetRequest(c.Request().WithContext(ctx))
}
