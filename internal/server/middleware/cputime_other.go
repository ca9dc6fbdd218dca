//go:build !unix

package middleware

import "time"

// processCPUTime has no portable source outside unix; report zero so the
// envelope's t_cpu degrades gracefully.
func processCPUTime() time.Duration { return 0 }
