// Package account serves the caller's own identity: who am I, finish
// registration, sign out, and the directory of doctors a patient may pick.
package account

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/retinacare/retina/internal/authz"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/auth"
)

// DefaultRevocationTTL applies when the provider reports no expiry.
const DefaultRevocationTTL = 24 * time.Hour

type Handler struct {
	profiles    *profile.Service
	revocations auth.RevocationStore
	now         func() time.Time
}

func NewHandler(profiles *profile.Service, revocations auth.RevocationStore) *Handler {
	return &Handler{profiles: profiles, revocations: revocations, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group, guard *authz.Guard) {
	api.GET("/auth/me", h.Me, guard.Authorize())
	api.POST("/auth/profile", h.Register, guard.Identified())
	api.POST("/auth/logout", h.Logout, guard.Authorize())
	api.GET("/doctors/approved", h.ApprovedDoctors, guard.Authorize(authz.RequireApproved()))
}

type meResponse struct {
	User    *auth.Identity   `json:"user"`
	Profile *profile.Profile `json:"profile"`
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, meResponse{
		User:    authz.IdentityFromContext(ctx),
		Profile: authz.ProfileFromContext(ctx),
	})
}

func (h *Handler) Register(c echo.Context) error {
	var req profile.Registration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id := authz.IdentityFromContext(c.Request().Context())
	p, err := h.profiles.Register(c.Request().Context(), id.Subject, id.Email, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// Logout revokes the presented credential until it would have expired.
func (h *Handler) Logout(c echo.Context) error {
	if h.revocations == nil {
		return c.NoContent(http.StatusNoContent)
	}
	id := authz.IdentityFromContext(c.Request().Context())
	tokenID := id.TokenID
	if tokenID == "" {
		token, err := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return apperr.Unauthenticated(err)
		}
		tokenID = auth.TokenFingerprint(token)
	}
	expiresAt := id.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = h.now().Add(DefaultRevocationTTL)
	}
	if err := h.revocations.Revoke(c.Request().Context(), tokenID, expiresAt); err != nil {
		return apperr.Infrastructure("revoke token", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ApprovedDoctors(c echo.Context) error {
	doctors, err := h.profiles.ApprovedDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doctors)
}
