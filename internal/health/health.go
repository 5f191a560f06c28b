// Package health provides health check endpoints for the decomposition
// server.
package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Probe reports whether a dependency is able to serve.
type Probe func() bool

// HealthCheck manages liveness and readiness reporting.
type HealthCheck struct {
	logger *zap.Logger

	mu     sync.RWMutex
	probes map[string]Probe
}

// NewHealthCheck creates a new HealthCheck instance.
func NewHealthCheck(logger *zap.Logger) *HealthCheck {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthCheck{
		logger: logger,
		probes: make(map[string]Probe),
	}
}

// Register adds a named readiness probe.
func (hc *HealthCheck) Register(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes[name] = probe
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler handles GET /health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready requests.
// Returns 200 OK only when every registered probe reports healthy.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		Status: "ready",
		Checks: make(map[string]string),
	}
	status := http.StatusOK

	hc.mu.RLock()
	for name, probe := range hc.probes {
		if probe() {
			resp.Checks[name] = "healthy"
			continue
		}
		resp.Checks[name] = "unhealthy"
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	hc.mu.RUnlock()

	if status != http.StatusOK {
		hc.logger.Warn("readiness check failed", zap.Any("checks", resp.Checks))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// IsReady returns the aggregate readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	for _, probe := range hc.probes {
		if !probe() {
			return false
		}
	}
	return true
}
