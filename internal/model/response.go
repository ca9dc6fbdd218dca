// Package model defines the wire shapes shared by the PMAPI handlers.
package model

// APIMeta is the metadata object injected into every JSON response under
// the "api" key. Timings are seconds elapsed since the request started.
type APIMeta struct {
	Version int     `json:"version"`
	TCPU    float64 `json:"t_cpu"`
	TReal   float64 `json:"t_real"`
}
