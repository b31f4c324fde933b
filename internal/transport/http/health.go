package http

import (
	"net/http"
	"runtime"

	"docextract/internal/health"
)

// SystemInfo contains process-level runtime information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_mb"`
}

type readiness struct {
	health.Report
	System *SystemInfo `json:"system,omitempty"`
}

// HealthReport probes every dependency and returns the composite verdict.
// Degraded still serves traffic; only unhealthy returns 503.
func (h *Handlers) HealthReport(w http.ResponseWriter, r *http.Request) {
	report := h.Health.Check(r.Context())
	writeJSON(w, healthCode(report), report)
}

// Ready is the same dependency report enriched with process runtime info.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	report := h.Health.Check(r.Context())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := readiness{
		Report: report,
		System: &SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc / 1024 / 1024,
		},
	}

	writeJSON(w, healthCode(report), resp)
}

func healthCode(report health.Report) int {
	if report.Status == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
