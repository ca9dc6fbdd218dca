package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// headerRequestID is the correlation header shared by the bench clients:
// the UI and the instrument daemons stamp it on their own log lines.
const headerRequestID = "X-Request-ID"

// RequestID tags every request with a UUIDv7 correlation ID. A client that
// supplies its own X-Request-ID keeps it, so a failed instrument command can
// be traced from the daemon log through the API log. The ID is echoed on
// the response and stored on the request context for the logger and the
// exception translator.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// GetRequestID returns the request's correlation ID, or the empty string
// outside the middleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
