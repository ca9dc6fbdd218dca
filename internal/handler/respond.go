package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/patemonitor/pmapi/internal/apierr"
	"github.com/patemonitor/pmapi/internal/model"
	"github.com/patemonitor/pmapi/internal/server/middleware"
)

// fallback500 is the response of last resort, written when the envelope
// itself cannot be serialized. It must be a constant so this path cannot
// fail again.
const fallback500 = `{"message":"internal response serialization failure"}`

// allowProbeMethods are the methods probed when computing the Allow header.
// HEAD and OPTIONS are deliberately not reported.
var allowProbeMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete,
}

// Responder builds the standard PMAPI response envelope. Every JSON body
// gains an "api" object with the API version and the request's elapsed
// CPU/wall time; every response carries an Allow header listing the
// methods routable for the request path.
type Responder struct {
	version int
	logger  *slog.Logger
	routes  chi.Routes
}

// NewResponder creates a Responder reporting the given API version.
func NewResponder(version int, logger *slog.Logger) *Responder {
	return &Responder{version: version, logger: logger}
}

// SetRoutes attaches the router used to compute Allow headers. Called once
// after the route tree is built.
func (rp *Responder) SetRoutes(routes chi.Routes) { rp.routes = routes }

// Respond writes payload as a JSON envelope with the given status. The
// payload map is augmented with the "api" metadata object before
// serialization. A serialization failure degrades to a minimal 500 and is
// logged; this path never panics.
func (rp *Responder) Respond(w http.ResponseWriter, r *http.Request, status int, payload map[string]interface{}) {
	clock := middleware.ClockFrom(r.Context())

	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["api"] = model.APIMeta{
		Version: rp.version,
		TCPU:    clock.CPU(),
		TReal:   clock.Real(),
	}

	data, err := json.Marshal(body)
	if err != nil {
		rp.logger.Error("response serialization failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		rp.setAllow(w, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(fallback500))
		return
	}

	rp.setAllow(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// Error translates err into a response envelope. It is the single point
// converting raised errors, known or unknown, into HTTP responses, and it
// never propagates a failure of its own: any internal problem degrades to
// a generic 500 envelope.
func (rp *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rp.logger.Error("exception translator internal failure", "panic", rec)
			rp.setAllow(w, r)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fallback500))
		}
	}()

	if err == nil {
		// Caller bug: translation was requested without an error.
		rp.logger.Error("exception translator received nil error",
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		rp.Respond(w, r, http.StatusInternalServerError, map[string]interface{}{
			"message": "exception translator received nil error",
		})
		return
	}

	if apiErr, ok := apierr.As(err); ok {
		rp.logger.Error("api error",
			"kind", apiErr.Kind.String(),
			"status", apiErr.Kind.Status(),
			"message", apiErr.Message,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		payload := map[string]interface{}{"message": apiErr.Message}
		if apiErr.Details != nil {
			payload["details"] = apiErr.Details
		}
		rp.Respond(w, r, apiErr.Kind.Status(), payload)
		return
	}

	// Unexpected error: log the full detail for operators; the client gets
	// the message plus a best-effort trace excerpt.
	stack := string(debug.Stack())
	rp.logger.Error("unclassified error",
		"error", err,
		"path", r.URL.Path,
		"request_id", middleware.GetRequestID(r.Context()),
		"stack", stack,
	)
	rp.Respond(w, r, http.StatusInternalServerError, map[string]interface{}{
		"error": err.Error(),
		"trace": trimStack(stack),
	})
}

// setAllow attaches the Allow header. Safe to call from degraded write
// paths: a failure inside the route probe is swallowed, never re-panicked.
func (rp *Responder) setAllow(w http.ResponseWriter, r *http.Request) {
	defer func() { recover() }()
	if allow := rp.allowedMethods(r); allow != "" {
		w.Header().Set("Allow", allow)
	}
}

// allowedMethods probes the route tree for the methods that can serve the
// request path.
func (rp *Responder) allowedMethods(r *http.Request) string {
	if rp.routes == nil {
		return ""
	}
	var allow []string
	for _, method := range allowProbeMethods {
		if rp.routes.Match(chi.NewRouteContext(), method, r.URL.Path) {
			allow = append(allow, method)
		}
	}
	return strings.Join(allow, ", ")
}

// trimStack drops the first stack frames (this package's translation
// machinery) so the excerpt starts near the failing handler.
func trimStack(stack string) string {
	lines := strings.Split(stack, "\n")
	// Line 0 is the goroutine header; frames are two lines each. Skip the
	// translator and its caller, keep the rest.
	const skipFrames = 2
	if len(lines) > 1+2*skipFrames {
		return lines[0] + "\n" + strings.Join(lines[1+2*skipFrames:], "\n")
	}
	return stack
}

// NotFoundHandler produces the enveloped 404 for unrouted paths.
func (rp *Responder) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rp.Error(w, r, apierr.New(apierr.NotFound,
			fmt.Sprintf("no such resource: %s", r.URL.Path)))
	}
}

// MethodNotAllowedHandler produces the enveloped 405 for routed paths hit
// with an unsupported method.
func (rp *Responder) MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rp.Error(w, r, apierr.New(apierr.MethodNotAllowed,
			fmt.Sprintf("method %s is not supported for %s", r.Method, r.URL.Path)))
	}
}
