package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithRole(role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithSession(req.Context(), Session{UserID: "u", Role: role, TenantID: "t"}))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role    string
		allowed []string
		want    int
	}{
		{RoleVet, []string{RoleVet}, http.StatusOK},
		{RoleAssistant, []string{RoleVet, RoleAssistant}, http.StatusOK},
		{RoleAdmin, []string{RoleVet}, http.StatusOK},
		{RoleAssistant, []string{RoleVet}, http.StatusForbidden},
		{RoleVet, []string{RoleAdmin}, http.StatusForbidden},
		{"", []string{RoleVet}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		c, rec := ctxWithRole(tt.role)
		err := RequireRole(tt.allowed...)(okHandler)(c)
		if tt.want == http.StatusOK {
			if err != nil {
				t.Errorf("role %q allowed %v: unexpected error %v", tt.role, tt.allowed, err)
			} else if rec.Code != http.StatusOK {
				t.Errorf("role %q: expected 200, got %d", tt.role, rec.Code)
			}
			continue
		}
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != tt.want {
			t.Errorf("role %q allowed %v: expected %d, got %v", tt.role, tt.allowed, tt.want, err)
		}
	}
}

func TestSession_HasRole(t *testing.T) {
	if !(Session{Role: RoleAdmin}).HasRole(RoleVet) {
		t.Error("expected admin to hold every role")
	}
	if (Session{Role: RoleAssistant}).HasRole(RoleVet) {
		t.Error("expected assistant not to hold vet")
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleVet, RoleAssistant} {
		if !ValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if ValidRole("physician") {
		t.Error("expected physician to be invalid")
	}
}
