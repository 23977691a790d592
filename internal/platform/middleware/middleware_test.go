package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var rid string
	err := RequestID()(func(c echo.Context) error {
		rid, _ = c.Get("request_id").(string)
		return nil
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rid == "" {
		t.Error("expected request_id to be generated")
	}
	if rec.Header().Get(RequestIDHeader) != rid {
		t.Error("expected X-Request-ID response header to match")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	c := e.NewContext(req, httptest.NewRecorder())

	_ = RequestID()(func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return nil
	})(c)
}

func TestRequestID_RejectsUnprintable(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\twith spaces")
	c := e.NewContext(req, httptest.NewRecorder())

	_ = RequestID()(func(c echo.Context) error {
		if rid := c.Get("request_id").(string); strings.Contains(rid, " ") {
			t.Errorf("expected a fresh id, got %q", rid)
		}
		return nil
	})(c)
}

func TestLogger_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req = req.WithContext(auth.WithSession(req.Context(), auth.Session{UserID: "u-7", Role: auth.RoleVet, TenantID: "acme"}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "rid-1")
	c.Set("tenant_id", "acme")

	err := Logger(logger)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
	for k, want := range map[string]any{
		"request_id": "rid-1", "method": "GET", "path": "/api/v1/patients",
		"status": float64(200), "tenant": "acme", "user_id": "u-7", "level": "info",
	} {
		if line[k] != want {
			t.Errorf("%s: expected %v, got %v", k, want, line[k])
		}
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		err   error
		level string
	}{
		{echo.NewHTTPError(http.StatusNotFound, "nope"), "warn"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		_ = Logger(zerolog.New(&buf))(func(echo.Context) error { return tt.err })(c)

		var line map[string]any
		_ = json.Unmarshal(buf.Bytes(), &line)
		if line["level"] != tt.level {
			t.Errorf("error %v: expected level %s, got %v", tt.err, tt.level, line["level"])
		}
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Recovery(zerolog.New(&buf))(func(echo.Context) error {
		panic("kaboom")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Errorf("expected panic value logged, got %q", buf.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	_ = SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	for h, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(h); got != want {
			t.Errorf("%s: expected %q, got %q", h, want, got)
		}
	}
}

func TestRequestTimeout_MapsDeadline(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := RequestTimeout(10*time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}
}

func TestRequestTimeout_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var deadline bool
	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		_, deadline = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deadline {
		t.Error("expected a deadline on the request context")
	}
}
