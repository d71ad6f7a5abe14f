package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/config"
	"github.com/ehr/tracker/internal/platform/db"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            "8000",
		Env:             "test",
		LogLevel:        "info",
		ServiceName:     "Patient Tracker API",
		DatabaseURL:     "postgres://u:p@127.0.0.1:1/db?connect_timeout=1",
		DBMaxConns:      2,
		DBMinConns:      0,
		CORSOrigins:     []string{"http://localhost:3000"},
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		BodyLimit:       "1M",
		ImportBodyLimit: "10M",
	}
}

// unreachablePool returns a lazily connecting pool; nothing listens on port 1.
func unreachablePool(t *testing.T, url string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "import": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}

	migrate, _, err := root.Find([]string{"migrate", "status"})
	if err != nil || migrate.Name() != "status" {
		t.Errorf("expected migrate status subcommand, got %v (%v)", migrate, err)
	}
}

func TestImportCmd_RequiresFile(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"import"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error without a file argument")
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.LogLevel = tt.level
		if got := newLogger(cfg, &bytes.Buffer{}).GetLevel(); got != tt.want {
			t.Errorf("LOG_LEVEL=%q: got %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNewLogger_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(testConfig(), &buf)
	logger.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
	if entry["service"] != "Patient Tracker API" || entry["message"] != "hello" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_core.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})

	out := buf.String()
	if !strings.Contains(out, "2026-01-02 03:04:05") || !strings.Contains(out, "pending") {
		t.Errorf("unexpected status output:\n%s", out)
	}
}

func TestServer_Index(t *testing.T) {
	cfg := testConfig()
	e := newServer(cfg, unreachablePool(t, cfg.DatabaseURL), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["service"] != "Patient Tracker API" {
		t.Errorf("unexpected body: %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestServer_PatientRoutesNeedDatabase(t *testing.T) {
	cfg := testConfig()
	e := newServer(cfg, unreachablePool(t, cfg.DatabaseURL), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a database, got %d", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	cfg := testConfig()
	e := newServer(cfg, unreachablePool(t, cfg.DatabaseURL), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}
