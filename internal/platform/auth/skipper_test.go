package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/api/v1/auth/login", true},
		{"/public/clinic/:tenantId", true},
		{"/public/preventiva/:tenantId/:patientCode", true},
		{"/api/v1/patients", false},
		{"/api/v1/dashboard", false},
		{"/publicity", false},
	}
	for _, tt := range tests {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath(tt.path)
		if got := AuthSkipper(c); got != tt.want {
			t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAuthSkipper_FallsBackToURLPath(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/public/clinic/acme", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if !AuthSkipper(c) {
		t.Error("expected unrouted public URL to be skipped")
	}
}
