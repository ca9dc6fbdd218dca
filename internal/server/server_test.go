package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/patemonitor/pmapi/internal/config"
	"github.com/patemonitor/pmapi/internal/db"
)

func newTestServer(t *testing.T) (*Server, *sqlx.DB) {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{File: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := db.NewCreator(conn, logger).CreateAll(context.Background()); err != nil {
		t.Fatalf("CreateAll: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO pate (id_min, id_max, label) VALUES (100, 200, 'EM-1')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: time.Second,
			CORSOrigins:     []string{"*"},
		},
		Command: config.CommandConfig{
			Timeout:      100 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		},
	}
	return New(cfg, conn, logger), conn
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, conn := newTestServer(t)

	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}

	// With the database gone, readiness degrades but liveness holds.
	conn.Close()
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz after close = %d, want 503", rec.Code)
	}
	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz after close = %d, want 200", rec.Code)
	}
}

func TestAPIRoutesMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/pate")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/pate = %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	rows, ok := body["data"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("data = %v, want the seeded instrument", body["data"])
	}
	meta, ok := body["api"].(map[string]interface{})
	if !ok {
		t.Fatal("envelope metadata missing")
	}
	if int(meta["version"].(float64)) != config.APIVersion {
		t.Errorf("api.version = %v", meta["version"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestEnvelopedRouteErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/nothing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unrouted = %d, want 404", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := body["api"]; !ok {
		t.Error("404 response not enveloped")
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/pate", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("bad method = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, "GET") {
		t.Errorf("Allow = %q, want it to list GET", allow)
	}
}
