package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logger emits one structured line per request. Bench operators grep these
// during a test campaign, so failures escalate: 5xx logs at error, 4xx at
// warn. The query string is included when present, since most bench reads
// are filtered by session_id or a begin/end time range.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			attrs := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", rw.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, "query", r.URL.RawQuery)
			}

			logger.Log(r.Context(), levelFor(rw.status), "request", attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// recordingWriter captures the status code and body size for the request
// log line.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *recordingWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the wrapped writer so http.Flusher reaches through the
// chain during CSV streaming.
func (w *recordingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
