package middleware

import (
	"context"
	"net/http"
	"time"
)

// clockKey is the context key for the request Clock.
const clockKey contextKey = "request_clock"

// Clock anchors the wall and process-CPU time at the start of a request.
// The response envelope reports elapsed values measured against it.
type Clock struct {
	wallStart time.Time
	cpuStart  time.Duration
}

// NewClock captures the current wall and CPU time.
func NewClock() *Clock {
	return &Clock{wallStart: time.Now(), cpuStart: processCPUTime()}
}

// Real returns the wall-clock seconds elapsed since the anchor.
func (c *Clock) Real() float64 {
	return time.Since(c.wallStart).Seconds()
}

// CPU returns the process CPU seconds elapsed since the anchor. On
// platforms without a CPU time source this is always zero.
func (c *Clock) CPU() float64 {
	d := processCPUTime() - c.cpuStart
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

// RequestClock installs a Clock on the request context before any handler
// runs.
func RequestClock(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clockKey, NewClock())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClockFrom returns the request Clock, or a fresh one when the middleware
// is not installed, so timing fields degrade to zero instead of failing.
func ClockFrom(ctx context.Context) *Clock {
	if c, ok := ctx.Value(clockKey).(*Clock); ok {
		return c
	}
	return NewClock()
}
