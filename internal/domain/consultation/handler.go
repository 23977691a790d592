package consultation

import (
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the unauthenticated routes. pub must resolve
// the tenant from the :tenantId path parameter.
func (h *Handler) RegisterPublicRoutes(pub *echo.Group) {
	pub.GET("/clinic/:tenantId", h.GetClinic)
	pub.GET("/preventiva/:tenantId/:patientCode", h.GetConsultation)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleVet, auth.RoleAssistant))
	staff.GET("/patients/:id/consultation-qr", h.GetQRCode)
}

func (h *Handler) GetClinic(c echo.Context) error {
	p, err := h.svc.Clinic(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	v, err := h.svc.View(c.Request().Context(), c.Param("patientCode"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

// GetQRCode serves the PNG, or {url, qr_code} with base64 data when
// ?format=base64.
func (h *Handler) GetQRCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	png, target, err := h.svc.QRCode(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if c.QueryParam("format") == "base64" {
		return c.JSON(http.StatusOK, map[string]string{
			"url":     target,
			"qr_code": base64.StdEncoding.EncodeToString(png),
		})
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}
