package assignment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/retinacare/retina/internal/authz"
	"github.com/retinacare/retina/internal/domain/profile"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group, guard *authz.Guard) {
	patient := api.Group("/patient", guard.Authorize(authz.RequireRole(profile.RolePatient)))
	patient.GET("/doctor", h.GetMyDoctor)
	patient.POST("/doctor", h.SelectDoctor)

	doctor := api.Group("/doctor", guard.Authorize(authz.RequireRole(profile.RoleDoctor), authz.RequireApproved()))
	doctor.GET("/patients", h.ListMyPatients)
}

type selectDoctorRequest struct {
	DoctorID string `json:"doctorId"`
}

type myDoctorResponse struct {
	Doctor *profile.Summary `json:"doctor"`
}

func (h *Handler) SelectDoctor(c echo.Context) error {
	var req selectDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	me := authz.ProfileFromContext(c.Request().Context())
	a, err := h.registry.Assign(c.Request().Context(), me.ID, req.DoctorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetMyDoctor(c echo.Context) error {
	me := authz.ProfileFromContext(c.Request().Context())
	doctor, err := h.registry.GetDoctorFor(c.Request().Context(), me.ID)
	if err != nil {
		return err
	}
	var resp myDoctorResponse
	if doctor != nil {
		s := doctor.Summary()
		resp.Doctor = &s
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListMyPatients(c echo.Context) error {
	me := authz.ProfileFromContext(c.Request().Context())
	patients, err := h.registry.GetPatientsFor(c.Request().Context(), me.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patients)
}
