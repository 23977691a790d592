package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/config"
	"github.com/equivet/equivet/internal/platform/auth"
	"github.com/equivet/equivet/internal/platform/blobstore"
	"github.com/equivet/equivet/internal/platform/events"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(mode string) *config.Config {
	return &config.Config{
		Env:            "test",
		AuthMode:       mode,
		DefaultTenant:  "default",
		CORSOrigins:    []string{"http://localhost:3000"},
		JWTSecret:      testSecret,
		JWTTTL:         time.Hour,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		PublicBaseURL:  "https://clinic.example",
		TaxRate:        0.16,
		Timezone:       "UTC",
	}
}

func testServer(t *testing.T, mode string, store blobstore.BlobStore) http.Handler {
	t.Helper()
	if store == nil {
		store = blobstore.NewInMemoryBlobStore()
	}
	return newServer(deps{
		cfg:    testConfig(mode),
		store:  store,
		events: events.NopPublisher{},
		tokens: auth.NewTokenManager(testSecret, time.Hour),
		loc:    time.UTC,
		logger: zerolog.Nop(),
	})
}

func TestNewServer_Routes(t *testing.T) {
	e := newServer(deps{
		cfg:    testConfig("jwt"),
		store:  blobstore.NewInMemoryBlobStore(),
		events: events.NopPublisher{},
		tokens: auth.NewTokenManager(testSecret, time.Hour),
		loc:    time.UTC,
		logger: zerolog.Nop(),
	})

	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /health/db",
		"POST /api/v1/auth/login",
		"GET /api/v1/auth/me",
		"GET /api/v1/patients",
		"PUT /api/v1/patients/:id/pregnancy",
		"GET /api/v1/patients/:id/medical-history",
		"POST /api/v1/patients/:id/preventive-medicine",
		"GET /api/v1/appointments/date-range",
		"POST /api/v1/billing/invoices/:id/payment-link",
		"GET /api/v1/dashboard",
		"GET /api/v1/patients/:id/consultation-qr",
		"GET /public/clinic/:tenantId",
		"GET /public/preventiva/:tenantId/:patientCode",
		"GET /public/files/*",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("route %q not registered", route)
		}
	}
}

func TestNewServer_Health(t *testing.T) {
	srv := testServer(t, "jwt", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected security headers, X-Content-Type-Options = %q", got)
	}
}

func TestNewServer_JWTModeRequiresToken(t *testing.T) {
	srv := testServer(t, "jwt", nil)

	for _, path := range []string{"/api/v1/patients", "/api/v1/dashboard", "/api/v1/billing/invoices"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestNewServer_JWTModeRejectsForeignToken(t *testing.T) {
	srv := testServer(t, "jwt", nil)

	other := auth.NewTokenManager("another-secret-another-secret-xx", time.Hour)
	token, _, err := other.Issue(auth.Session{UserID: "u1", Role: auth.RoleAdmin, TenantID: "acme"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestNewServer_ServesStoredFiles(t *testing.T) {
	store := blobstore.NewInMemoryBlobStore()
	content := []byte("\x89PNG\r\n\x1a\nnot really a png")
	if _, err := store.Put(context.Background(), "acme/patient/photo.png", "image/png",
		bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("put: %v", err)
	}
	srv := testServer(t, "jwt", store)

	req := httptest.NewRequest(http.MethodGet, "/public/files/acme/patient/photo.png", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Error("body does not match stored content")
	}

	req = httptest.NewRequest(http.MethodGet, "/public/files/acme/patient/missing.png", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file: expected 404, got %d", rec.Code)
	}
}

func TestNewServer_RateLimitIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig("jwt")
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	srv := newServer(deps{
		cfg:    cfg,
		store:  blobstore.NewInMemoryBlobStore(),
		events: events.NopPublisher{},
		tokens: auth.NewTokenManager(testSecret, time.Hour),
		loc:    time.UTC,
		logger: zerolog.Nop(),
	})

	send := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/public/files/acme/patient/missing.png", nil)
		req.RemoteAddr = "198.51.100.7:4321"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.1"); code != http.StatusNotFound {
		t.Fatalf("first request: expected 404, got %d", code)
	}
	if code := send("203.0.113.2"); code != http.StatusTooManyRequests {
		t.Errorf("second request from the same peer with a new X-Forwarded-For: expected 429, got %d", code)
	}
}

func TestResolveJWTSecret_Configured(t *testing.T) {
	cfg := testConfig("jwt")
	secret, generated, err := resolveJWTSecret(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated || secret != testSecret {
		t.Errorf("got (%q, %v), want configured secret", secret, generated)
	}
}

func TestResolveJWTSecret_GeneratedInDevelopment(t *testing.T) {
	cfg := testConfig("development")
	cfg.JWTSecret = ""

	first, generated, err := resolveJWTSecret(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !generated {
		t.Fatal("expected a generated secret")
	}
	raw, err := hex.DecodeString(first)
	if err != nil {
		t.Fatalf("secret is not hex: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("expected 32 random bytes, got %d", len(raw))
	}

	second, _, _ := resolveJWTSecret(cfg)
	if first == second {
		t.Error("two generated secrets should differ")
	}
}
