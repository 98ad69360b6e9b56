package scan

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/retinacare/retina/internal/authz"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/pkg/pagination"
)

const (
	recentDefault = 10
	recentMax     = 50
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the scan endpoints. Guards are per route because
// reads and writes share a prefix. upload middleware applies to the
// multipart analyze route only, after the guard.
func (h *Handler) RegisterRoutes(api *echo.Group, guard *authz.Guard, upload ...echo.MiddlewareFunc) {
	read := guard.Authorize(authz.RequireApproved())
	api.GET("/scans", h.List, read)
	api.GET("/scans/recent", h.Recent, read)
	api.GET("/scans/:id", h.Get, read)
	api.GET("/scans/:id/image/:kind", h.Image, read)
	api.GET("/patients/:patientId/scans", h.ListForPatient, read)

	write := guard.Authorize(authz.RequireRole(profile.RoleDoctor), authz.RequireApproved())
	api.POST("/scans", h.Create, write)
	api.POST("/scans/analyze", h.Analyze, append([]echo.MiddlewareFunc{write}, upload...)...)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	scans, total, err := h.svc.ListVisible(c.Request().Context(), requester(c), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(scans, total, p.Limit, p.Offset).WithLinks("/api/scans"))
}

func (h *Handler) Recent(c echo.Context) error {
	limit := pagination.LimitFromContext(c, recentDefault, recentMax)
	scans, err := h.svc.Recent(c.Request().Context(), requester(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scans)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := scanID(c)
	if err != nil {
		return err
	}
	sc, err := h.svc.GetVisible(c.Request().Context(), requester(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *Handler) Image(c echo.Context) error {
	id, err := scanID(c)
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.OpenImage(c.Request().Context(), requester(c), id, ImageKind(c.Param("kind")))
	if err != nil {
		return err
	}
	defer rc.Close()
	c.Response().Header().Set("Cache-Control", "private, no-store")
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	p := pagination.FromContext(c)
	patientID := c.Param("patientId")
	scans, total, err := h.svc.ListForPatient(c.Request().Context(), requester(c), patientID, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(scans, total, p.Limit, p.Offset).
		WithLinks("/api/patients/"+patientID+"/scans"))
}

func (h *Handler) Create(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sc, err := h.svc.Create(c.Request().Context(), requester(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sc)
}

func (h *Handler) Analyze(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Validation("file could not be read")
	}
	defer f.Close()

	sc, err := h.svc.Analyze(c.Request().Context(), requester(c), c.FormValue("patientId"), fh.Filename, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sc)
}

func requester(c echo.Context) *profile.Profile {
	return authz.ProfileFromContext(c.Request().Context())
}

func scanID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid scan id")
	}
	return id, nil
}
