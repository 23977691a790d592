package scheduling

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/auth"
	"github.com/equivet/equivet/pkg/pagination"
)

type Handler struct {
	svc *Service
	loc *time.Location
}

// NewHandler serves appointments. Date-only range bounds are read as
// midnight in loc; nil means the server's local zone.
func NewHandler(svc *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{svc: svc, loc: loc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Appointments are managed by all clinic staff.
	staff := api.Group("", auth.RequireRole(auth.RoleVet, auth.RoleAssistant))
	staff.GET("/appointments", h.ListAppointments)
	staff.GET("/appointments/date-range", h.ListByDateRange)
	staff.GET("/appointments/patient/:patientId", h.ListByPatient)
	staff.GET("/appointments/:id", h.GetAppointment)
	staff.POST("/appointments", h.CreateAppointment)
	staff.POST("/patients/:id/appointments", h.CreateForPatient)
	staff.PUT("/appointments/:id", h.UpdateAppointment)
	staff.DELETE("/appointments/:id", h.DeleteAppointment)
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, &a)
}

func (h *Handler) CreateForPatient(c echo.Context) error {
	patientID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.PatientID = patientID
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, &a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Status: c.QueryParam("status"), Type: c.QueryParam("type")}
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuidParam(c, "patientId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ListByDateRange serves ?start=&end=. Both accept YYYY-MM-DD or RFC 3339;
// a date-only end includes that whole day.
func (h *Handler) ListByDateRange(c echo.Context) error {
	start, err := h.parseBound(c.QueryParam("start"), false)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start: "+err.Error())
	}
	end, err := h.parseBound(c.QueryParam("end"), true)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid end: "+err.Error())
	}
	items, err := h.svc.ListRange(c.Request().Context(), start, end)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"start": start,
		"end":   end,
		"data":  items,
	})
}

func (h *Handler) parseBound(s string, isEnd bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperr.Invalid("value is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := calendar.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	if isEnd {
		d = d.AddDays(1)
	}
	return d.Time(h.loc), nil
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.UpdateAppointment(c.Request().Context(), &a); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, &a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
