package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newCtx(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractTenantID_FromHeader(t *testing.T) {
	c := newCtx("/")
	c.Request().Header.Set("X-Tenant-ID", "rancho_norte")

	if tid := extractTenantID(c, "default"); tid != "rancho_norte" {
		t.Errorf("expected rancho_norte, got %s", tid)
	}
}

func TestExtractTenantID_FromQuery(t *testing.T) {
	c := newCtx("/?tenant_id=clinica_sur")
	if tid := extractTenantID(c, "default"); tid != "clinica_sur" {
		t.Errorf("expected clinica_sur, got %s", tid)
	}
}

func TestExtractTenantID_FromPath(t *testing.T) {
	c := newCtx("/public/clinic/establo")
	c.SetParamNames("tenantId")
	c.SetParamValues("establo")

	if tid := extractTenantID(c, "default"); tid != "establo" {
		t.Errorf("expected establo, got %s", tid)
	}
}

func TestExtractTenantID_Default(t *testing.T) {
	if tid := extractTenantID(newCtx("/"), "default"); tid != "default" {
		t.Errorf("expected default, got %s", tid)
	}
}

func TestExtractTenantID_Priority(t *testing.T) {
	c := newCtx("/?tenant_id=query")
	c.Request().Header.Set("X-Tenant-ID", "header")
	c.SetParamNames("tenantId")
	c.SetParamValues("path")
	c.Set("jwt_tenant_id", "session")

	if tid := extractTenantID(c, "default"); tid != "session" {
		t.Errorf("expected session tenant to win, got %s", tid)
	}

	c.Set("jwt_tenant_id", "")
	if tid := extractTenantID(c, "default"); tid != "path" {
		t.Errorf("expected path tenant when session is empty, got %s", tid)
	}
}

func TestExtractTenantID_HeaderPriorityOverQuery(t *testing.T) {
	c := newCtx("/?tenant_id=query_tenant")
	c.Request().Header.Set("X-Tenant-ID", "header_tenant")

	if tid := extractTenantID(c, "default"); tid != "header_tenant" {
		t.Errorf("expected header_tenant, got %s", tid)
	}
}

func TestValidTenantID(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"ABC", true},
		{"clinic_1", true},
		{"a", true},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"'; DROP TABLE", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidTenantID(tt.input); got != tt.valid {
			t.Errorf("ValidTenantID(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestSearchPath(t *testing.T) {
	if got := searchPath("acme"); got != `SET search_path TO "tenant_acme", shared, public` {
		t.Errorf("unexpected search_path statement: %s", got)
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn from empty context")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx from empty context")
	}
	if QuerierFromContext(ctx) != nil {
		t.Error("expected nil querier from empty context")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant from empty context")
	}
}

func TestContextHelpers_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	ctx = context.WithValue(ctx, DBTxKey, "not-a-tx")
	ctx = context.WithValue(ctx, TenantIDKey, 42)

	if ConnFromContext(ctx) != nil || TxFromContext(ctx) != nil {
		t.Error("expected nil for wrongly typed values")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant for wrongly typed value")
	}
}

func TestInTx_NoConnection(t *testing.T) {
	err := InTx(context.Background(), func(context.Context) error { return nil })
	if err != ErrNoConn {
		t.Errorf("expected ErrNoConn, got %v", err)
	}
}

func TestCreateTenantSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"with-dash", "with.dot", "sp ace", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, ""); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}

func TestWithTenant_InvalidID(t *testing.T) {
	called := false
	err := WithTenant(context.Background(), nil, "bad-id", func(context.Context) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Error("expected invalid tenant to be rejected before fn runs")
	}
}
