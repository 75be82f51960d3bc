package api

import (
	"context"
	"net/http"
	"time"
)

const healthProbeTimeout = 5 * time.Second

// HealthCheck probes one dependency. A nil Probe reports the
// dependency as configured without contacting it; generation gateways
// have no cheap liveness call, so they register that way.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler serves the liveness endpoints.
type HealthHandler struct {
	checks []HealthCheck
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health: a fast probe-free liveness answer for
// load balancers.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Message:   "AI agent API is running successfully",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Detailed handles GET /health/detailed: every registered dependency
// is probed, and any failure degrades the overall status to 503.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	status := "healthy"
	services := make(map[string]ServiceCheck, len(h.checks))
	for _, c := range h.checks {
		if c.Probe == nil {
			services[c.Name] = ServiceCheck{Status: "configured"}
			continue
		}
		if err := c.Probe(ctx); err != nil {
			services[c.Name] = ServiceCheck{Status: "error", Message: err.Error()}
			status = "degraded"
			continue
		}
		services[c.Name] = ServiceCheck{Status: "ok"}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, DetailedHealthResponse{
		Status:    status,
		Services:  services,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
