package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextForPath(path string) echo.Context {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
	c.SetPath(path)
	return c
}

func TestAuthSkipper_PublicPaths(t *testing.T) {
	for _, p := range []string{"/", "/health", "/health/db", "/docs", "/openapi.json", "/metrics"} {
		if !AuthSkipper(contextForPath(p)) {
			t.Errorf("expected %s to be public", p)
		}
	}
}

func TestAuthSkipper_ProtectedPaths(t *testing.T) {
	for _, p := range []string{
		"/api/encounters",
		"/api/encounters/:stay_id",
		"/api/encounters/export",
		"/api/filters/options",
	} {
		if AuthSkipper(contextForPath(p)) {
			t.Errorf("expected %s to require auth", p)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") {
		t.Error("expected /health to be public")
	}
	if IsPublicPath("/api/encounters") {
		t.Error("expected /api/encounters to NOT be public")
	}
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	c := contextForPath("/health")

	called := false
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("expected no error for skipped path, got: %v", err)
	}
	if !called {
		t.Error("expected handler to be called for skipped path")
	}
}

func TestJWTMiddleware_DoesNotSkipProtectedPaths(t *testing.T) {
	c := contextForPath("/api/encounters")

	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	expectUnauthorized(t, h(c))
}

func TestJWTMiddleware_NilSkipperDoesNotSkip(t *testing.T) {
	c := contextForPath("/health")

	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	expectUnauthorized(t, h(c))
}
