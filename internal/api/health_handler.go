package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Health returns the health status of the service's dependencies,
// trimmed from the teacher's sale/performance reporting (no active-sale
// concept in this domain) down to per-dependency health, the signal an
// operator actually needs to decide whether to fail over.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
	}

	for name, check := range h.HealthCheckers {
		if err := check(ctx); err != nil {
			health.Services[name] = "unhealthy: " + err.Error()
			health.Status = "degraded"
			continue
		}
		health.Services[name] = "healthy"
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}
