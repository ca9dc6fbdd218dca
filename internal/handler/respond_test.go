package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/patemonitor/pmapi/internal/apierr"
	"github.com/patemonitor/pmapi/internal/config"
	"github.com/patemonitor/pmapi/internal/server/middleware"
)

func newTestResponder() *Responder {
	return NewResponder(config.APIVersion, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// decodeBody parses a JSON response body into a generic map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

// apiMeta extracts and sanity-checks the envelope's "api" object.
func apiMeta(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	meta, ok := body["api"].(map[string]interface{})
	if !ok {
		t.Fatalf("body has no api object: %v", body)
	}
	return meta
}

func TestRespondEnvelope(t *testing.T) {
	rp := newTestResponder()

	h := middleware.RequestClock(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rp.Respond(w, r, http.StatusOK, map[string]interface{}{
			"data": []interface{}{},
		})
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/note", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := decodeBody(t, rec)
	if _, ok := body["data"]; !ok {
		t.Error("payload key lost in envelope")
	}

	meta := apiMeta(t, body)
	if v := meta["version"].(float64); int(v) != config.APIVersion {
		t.Errorf("api.version = %v, want %d", v, config.APIVersion)
	}
	if tReal := meta["t_real"].(float64); tReal < 0 {
		t.Errorf("t_real = %v, must be non-negative", tReal)
	}
	if tCPU := meta["t_cpu"].(float64); tCPU < 0 {
		t.Errorf("t_cpu = %v, must be non-negative", tCPU)
	}
}

func TestRespondWithoutClockMiddleware(t *testing.T) {
	// The envelope must still be produced when the clock middleware is
	// absent, with zero timings.
	rp := newTestResponder()

	rec := httptest.NewRecorder()
	rp.Respond(rec, httptest.NewRequest(http.MethodGet, "/x", nil),
		http.StatusOK, map[string]interface{}{"data": nil})

	meta := apiMeta(t, decodeBody(t, rec))
	if meta["t_real"].(float64) < 0 || meta["t_cpu"].(float64) < 0 {
		t.Errorf("timings negative without clock: %v", meta)
	}
}

func TestRespondSerializationFallback(t *testing.T) {
	rp := newTestResponder()
	r := chi.NewRouter()
	r.Get("/x", func(w http.ResponseWriter, req *http.Request) {})
	rp.SetRoutes(r)

	// Channels cannot be serialized; the envelope must degrade to the
	// constant 500 body instead of panicking, still carrying Allow.
	rec := httptest.NewRecorder()
	rp.Respond(rec, httptest.NewRequest(http.MethodGet, "/x", nil),
		http.StatusOK, map[string]interface{}{"data": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if rec.Body.String() != fallback500 {
		t.Errorf("body = %q, want the fixed fallback", rec.Body.String())
	}
	if got := rec.Header().Get("Allow"); got != "GET" {
		t.Errorf("Allow on fallback = %q, want GET", got)
	}
}

func TestErrorKnownKinds(t *testing.T) {
	rp := newTestResponder()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", apierr.New(apierr.NotFound, "no such row"), http.StatusNotFound},
		{"method", apierr.New(apierr.MethodNotAllowed, "nope"), http.StatusMethodNotAllowed},
		{"invalid", apierr.New(apierr.InvalidArgument, "bad column"), http.StatusNotAcceptable},
		{"conflict", apierr.New(apierr.Conflict, "constraint"), http.StatusConflict},
		{"timeout", apierr.New(apierr.Timeout, "daemon silent"), http.StatusInternalServerError},
		{"internal", apierr.New(apierr.Internal, "boom"), http.StatusInternalServerError},
		{"not implemented", apierr.New(apierr.NotImplemented, "todo"), http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rp.Error(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeBody(t, rec)
			if body["message"] == nil || body["message"] == "" {
				t.Error("error envelope missing message")
			}
			if _, ok := body["details"]; ok {
				t.Error("details present without being set")
			}
			apiMeta(t, body)
		})
	}
}

func TestErrorDetails(t *testing.T) {
	rp := newTestResponder()
	err := apierr.New(apierr.InvalidArgument, "unknown columns").
		WithDetails(map[string]interface{}{"invalid": []string{"bogus"}})

	rec := httptest.NewRecorder()
	rp.Error(rec, httptest.NewRequest(http.MethodPost, "/api/note", nil), err)

	body := decodeBody(t, rec)
	details, ok := body["details"].(map[string]interface{})
	if !ok {
		t.Fatalf("details missing: %v", body)
	}
	if details["invalid"] == nil {
		t.Errorf("details content lost: %v", details)
	}
}

func TestErrorUnclassified(t *testing.T) {
	rp := newTestResponder()

	rec := httptest.NewRecorder()
	rp.Error(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("disk on fire"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "disk on fire" {
		t.Errorf("error = %v", body["error"])
	}
	trace, _ := body["trace"].(string)
	if !strings.Contains(trace, "goroutine") {
		t.Errorf("trace excerpt missing goroutine header: %q", trace)
	}
}

func TestErrorNil(t *testing.T) {
	rp := newTestResponder()

	rec := httptest.NewRecorder()
	rp.Error(rec, httptest.NewRequest(http.MethodGet, "/x", nil), nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if msg, _ := body["message"].(string); !strings.Contains(msg, "nil error") {
		t.Errorf("message = %v", body["message"])
	}
}

func TestAllowHeader(t *testing.T) {
	rp := newTestResponder()

	r := chi.NewRouter()
	respond := func(w http.ResponseWriter, req *http.Request) {
		rp.Respond(w, req, http.StatusOK, map[string]interface{}{"data": nil})
	}
	r.Get("/api/note", respond)
	r.Post("/api/note", respond)
	r.Get("/api/note/{id}", respond)
	r.Patch("/api/psu", respond)
	rp.SetRoutes(r)

	tests := []struct {
		path string
		want string
	}{
		{"/api/note", "GET, POST"},
		{"/api/note/1", "GET"},
		{"/api/psu", "PATCH"},
		{"/api/nosuch", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := rp.allowedMethods(req); got != tt.want {
			t.Errorf("allowedMethods(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}

	// The header rides on served responses.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/note", nil))
	if got := rec.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q, want %q", got, "GET, POST")
	}
}

func TestNotFoundAndMethodNotAllowedHandlers(t *testing.T) {
	rp := newTestResponder()

	r := chi.NewRouter()
	r.Get("/api/note", func(w http.ResponseWriter, req *http.Request) {
		rp.Respond(w, req, http.StatusOK, map[string]interface{}{"data": nil})
	})
	r.NotFound(rp.NotFoundHandler())
	r.MethodNotAllowed(rp.MethodNotAllowedHandler())
	rp.SetRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nosuch", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unrouted path status = %d, want 404", rec.Code)
	}
	apiMeta(t, decodeBody(t, rec))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/note", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("bad method status = %d, want 405", rec.Code)
	}
	body := decodeBody(t, rec)
	if msg, _ := body["message"].(string); !strings.Contains(msg, "DELETE") {
		t.Errorf("405 message should name the method: %v", body["message"])
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, "GET") {
		t.Errorf("405 Allow = %q, want it to list GET", allow)
	}
}
