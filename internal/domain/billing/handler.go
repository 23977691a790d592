package billing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/auth"
	"github.com/equivet/equivet/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Billing is handled by vets and front desk staff
	g := api.Group("/billing", auth.RequireRole(auth.RoleVet, auth.RoleAssistant))
	g.GET("/invoices", h.ListInvoices)
	g.POST("/invoices", h.CreateInvoice)
	g.GET("/invoices/:id", h.GetInvoice)
	g.PUT("/invoices/:id", h.UpdateInvoice)
	g.POST("/invoices/:id/payment-link", h.CreatePaymentLink)
	g.GET("/payment-links", h.ListPaymentLinks)

	// Deleting an invoice – admin only
	admin := api.Group("/billing", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/invoices/:id", h.DeleteInvoice)
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var inv Invoice
	if err := c.Bind(&inv); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateInvoice(c.Request().Context(), &inv); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, &inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Status: c.QueryParam("status")}
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = pid
	}
	items, total, err := h.svc.ListInvoices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateInvoice(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var inv Invoice
	if err := c.Bind(&inv); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv.ID = id
	if err := h.svc.UpdateInvoice(c.Request().Context(), &inv); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, &inv)
}

func (h *Handler) DeleteInvoice(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInvoice(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreatePaymentLink(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	l, err := h.svc.CreatePaymentLink(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) ListPaymentLinks(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPaymentLinks(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
