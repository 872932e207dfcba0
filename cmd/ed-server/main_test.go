package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/config"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/domain/encounter"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/cache"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/db"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		CORSOrigins:    []string{"http://localhost:5173"},
		CacheTTL:       time.Minute,
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		RequestTimeout: 5 * time.Second,
		ExportMaxRows:  100,
	}
}

func testServer(cfg *config.Config) *echo.Echo {
	logger := zerolog.New(io.Discard)
	return newServer(serverDeps{
		Config:  cfg,
		Logger:  logger,
		Service: encounter.NewService(nil, logger),
		Store:   cache.NewMemoryStore(),
		DBHealth: func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		},
		Metrics: telemetry.NewMetrics(),
	})
}

func get(e *echo.Echo, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "ingest": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}

	migrate, _, err := root.Find([]string{"migrate", "status"})
	if err != nil || migrate.Name() != "status" {
		t.Errorf("expected migrate status subcommand, got %v (%v)", migrate, err)
	}
	ingestCmd, _, err := root.Find([]string{"ingest"})
	if err != nil || ingestCmd.Flags().Lookup("dir") == nil {
		t.Error("expected ingest --dir flag")
	}
}

func TestServer_Banner(t *testing.T) {
	rec := get(testServer(testConfig()), "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "MIMIC IV ED Dashboard API" || body["docs"] != "/docs" {
		t.Errorf("unexpected banner %v", body)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestServer_Health(t *testing.T) {
	e := testServer(testConfig())
	for _, path := range []string{"/health", "/health/db"} {
		if rec := get(e, path, nil); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	var body map[string]string
	if err := json.Unmarshal(get(e, "/health", nil).Body.Bytes(), &body); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	if body["status"] != "healthy" || body["version"] != version {
		t.Errorf("unexpected /health body %v", body)
	}
}

func TestServer_Routes(t *testing.T) {
	e := testServer(testConfig())
	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, route := range []string{
		"GET /",
		"GET /health",
		"GET /health/db",
		"GET /api/encounters",
		"GET /api/encounters/export",
		"GET /api/encounters/:stay_id",
		"GET /api/filters/options",
		"GET /docs",
		"GET /openapi.json",
		"GET /metrics",
	} {
		if !have[route] {
			t.Errorf("missing route %s", route)
		}
	}
}

func TestServer_ValidationErrorBeforeStorage(t *testing.T) {
	rec := get(testServer(testConfig()), "/api/encounters?per_page=500", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "per_page") {
		t.Errorf("expected message naming per_page, got %s", rec.Body.String())
	}
}

func TestServer_AuthRequiredWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = strings.Repeat("s", 32)
	e := testServer(cfg)

	if rec := get(e, "/api/encounters", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := get(e, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("expected /health to stay public, got %d", rec.Code)
	}
	for _, path := range []string{"/", "/docs", "/openapi.json", "/metrics"} {
		if rec := get(e, path, nil); rec.Code != http.StatusOK {
			t.Errorf("expected %s to stay public, got %d", path, rec.Code)
		}
	}
}

func TestServer_OpenAPIDocument(t *testing.T) {
	rec := get(testServer(testConfig()), "/openapi.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc struct {
		Info  map[string]string          `json:"info"`
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Info["title"] != serviceName {
		t.Errorf("unexpected title %q", doc.Info["title"])
	}
	for _, p := range []string{"/api/encounters", "/api/encounters/export", "/api/encounters/{stay_id}", "/api/filters/options"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Errorf("path %s not documented", p)
		}
	}
}

func TestServer_MetricsRecordsAPIRequests(t *testing.T) {
	e := testServer(testConfig())
	get(e, "/api/encounters?per_page=500", nil)

	rec := get(e, "/metrics", nil)
	want := `http_server_request_duration_seconds_count{method="GET",route="/api/encounters",status_code="400"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("missing %q in:\n%s", want, rec.Body.String())
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	e := testServer(testConfig())
	req := httptest.NewRequest(http.MethodOptions, "/api/encounters", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:5173")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "http://localhost:5173" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, "public", []db.MigrationStatus{
		{Version: 1, Name: "ed_schema", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "extra_indexes", Applied: true, Modified: true, AppliedAt: &applied},
		{Version: 3, Name: "medication_views"},
	})

	out := buf.String()
	for _, want := range []string{
		"schema public: 3 migration file(s)",
		"001  ed_schema",
		"applied   2025-03-01T09:30:00Z",
		"002  extra_indexes",
		"modified  2025-03-01T09:30:00Z",
		"003  medication_views",
		"pending   -",
		"1 pending; run `ed-server migrate up`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
