package clinical

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/equivet/equivet/internal/calendar"
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
	// Read endpoints – all clinic staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleVet, auth.RoleAssistant))
	readGroup.GET("/patients/:id/medical-history", h.ListMedicalHistory)
	readGroup.GET("/medical-history/:id", h.GetMedicalRecord)
	readGroup.GET("/patients/:id/preventive-medicine", h.ListPreventive)
	readGroup.GET("/preventive-medicine/:id", h.GetPreventive)

	// Write endpoints – vet
	writeGroup := api.Group("", auth.RequireRole(auth.RoleVet))
	writeGroup.POST("/patients/:id/medical-history", h.CreateMedicalRecord)
	writeGroup.DELETE("/medical-history/:id", h.DeleteMedicalRecord)
	writeGroup.POST("/patients/:id/preventive-medicine", h.CreatePreventive)
	writeGroup.DELETE("/preventive-medicine/:id", h.DeletePreventive)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// formDate reads an optional date field from a multipart form.
func formDate(c echo.Context, field string) (calendar.Date, error) {
	v := strings.TrimSpace(c.FormValue(field))
	if v == "" {
		return calendar.Date{}, nil
	}
	d, err := calendar.ParseStrict(v)
	if err != nil {
		return calendar.Date{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+field+": "+v)
	}
	return d, nil
}

// formImage returns the optional "image" upload.
func formImage(c echo.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("image")
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid image upload")
	}
	return fh, nil
}

// -- Medical History Handlers --

func (h *Handler) CreateMedicalRecord(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var rec MedicalRecord
	var image *multipart.FileHeader
	if isMultipart(c) {
		if rec.Date, err = formDate(c, "date"); err != nil {
			return err
		}
		rec.Description = c.FormValue("description")
		if image, err = formImage(c); err != nil {
			return err
		}
	} else if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec.PatientID = patientID
	if err := h.svc.CreateMedicalRecord(c.Request().Context(), &rec, image); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, &rec)
}

func (h *Handler) GetMedicalRecord(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.GetMedicalRecord(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListMedicalHistory(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedicalHistory(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteMedicalRecord(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicalRecord(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Preventive Medicine Handlers --

func (h *Handler) CreatePreventive(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var p PreventiveMedicine
	var image *multipart.FileHeader
	if isMultipart(c) {
		if p.Date, err = formDate(c, "date"); err != nil {
			return err
		}
		if p.NextDose, err = formDate(c, "next_dose"); err != nil {
			return err
		}
		p.Type = c.FormValue("type")
		p.Product = c.FormValue("product")
		p.Lot = c.FormValue("lot")
		p.Notes = c.FormValue("notes")
		if image, err = formImage(c); err != nil {
			return err
		}
	} else if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.PatientID = patientID
	if err := h.svc.CreatePreventive(c.Request().Context(), &p, image); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, &p)
}

func (h *Handler) GetPreventive(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPreventive(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPreventive(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPreventive(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeletePreventive(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePreventive(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
