package approval

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/retinacare/retina/internal/authz"
	"github.com/retinacare/retina/internal/domain/profile"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the review endpoints. Admins have no approval state,
// so only the role predicate applies.
func (h *Handler) RegisterRoutes(api *echo.Group, guard *authz.Guard) {
	g := api.Group("/admin/doctors", guard.Authorize(authz.RequireRole(profile.RoleAdmin)))
	g.GET("/pending", h.ListPending)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}

func (h *Handler) ListPending(c echo.Context) error {
	doctors, err := h.svc.ListPending(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doctors)
}

func (h *Handler) Approve(c echo.Context) error {
	p, err := h.svc.Approve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Reject(c echo.Context) error {
	p, err := h.svc.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
