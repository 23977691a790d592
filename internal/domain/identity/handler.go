package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

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

// LoginPath is served without a session.
const LoginPath = "/api/v1/auth/login"

// RegisterLogin mounts the login route on e behind extra. tenant must
// resolve the clinic schema; TenantFromBody runs just before it so a
// tenant_id in the body is honoured.
func (h *Handler) RegisterLogin(e *echo.Echo, tenant echo.MiddlewareFunc, extra ...echo.MiddlewareFunc) {
	mw := append(extra, TenantFromBody, tenant)
	e.POST(LoginPath, h.Login, mw...)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any signed-in staff member
	staff := api.Group("", auth.RequireRole(auth.RoleVet, auth.RoleAssistant))
	staff.GET("/auth/me", h.Me)
	staff.GET("/clinic", h.GetClinic)

	// Clinic administration – admin only
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.PUT("/clinic", h.UpdateClinic)
	admin.PUT("/clinic/logo", h.SetLogo)
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id"`
}

// TenantFromBody copies a tenant_id found in a JSON body to the X-Tenant-ID
// header, leaving the body readable for the handler.
func TenantFromBody(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if req.Body == nil || !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
			return next(c)
		}
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
		}
		req.Body = io.NopCloser(bytes.NewReader(raw))
		var body struct {
			TenantID string `json:"tenant_id"`
		}
		if json.Unmarshal(raw, &body) == nil && strings.TrimSpace(body.TenantID) != "" {
			req.Header.Set("X-Tenant-ID", strings.TrimSpace(body.TenantID))
		}
		return next(c)
	}
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	s, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetClinic(c echo.Context) error {
	p, err := h.svc.GetClinic(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateClinic(c echo.Context) error {
	var p ClinicProfile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateClinic(c.Request().Context(), &p); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, &p)
}

func (h *Handler) SetLogo(c echo.Context) error {
	fh, err := c.FormFile("logo")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "logo file is required")
	}
	p, err := h.svc.SetLogo(c.Request().Context(), fh)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u := &User{Email: req.Email, Name: req.Name, Role: req.Role}
	if err := h.svc.CreateUser(c.Request().Context(), u, req.Password); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
