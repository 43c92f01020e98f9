package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveWithSecurityHeaders(handler echo.HandlerFunc, method string) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.Add(method, "/api/v1/hl7/messages", handler)

	req := httptest.NewRequest(method, "/api/v1/hl7/messages", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders_FullSet(t *testing.T) {
	rec := serveWithSecurityHeaders(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, http.MethodGet)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, kv := range hardeningHeaders {
		if got := rec.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("header %s: got %q, want %q", kv[0], got, kv[1])
		}
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("message payloads must not be cacheable")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options DENY")
	}
}

func TestSecurityHeaders_HandlerStillRuns(t *testing.T) {
	called := false
	rec := serveWithSecurityHeaders(func(c echo.Context) error {
		called = true
		return c.String(http.StatusCreated, "created")
	}, http.MethodPost)

	if !called {
		t.Error("expected handler to be called")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestSecurityHeaders_PresentOnErrorResponses(t *testing.T) {
	rec := serveWithSecurityHeaders(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}, http.MethodGet)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	// Headers go out before the handler runs, so error responses carry
	// them too.
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on error responses")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected CSP header on error responses")
	}
}
