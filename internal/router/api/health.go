package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.relaypoint.io/internal/router/health"
)

// HealthCheckHandler serves the infrastructure health endpoint
// GET /health
type HealthCheckHandler struct {
	infraHealth *health.InfrastructureHealthService
}

// NewHealthCheckHandler creates a new health check handler
func NewHealthCheckHandler(infraHealth *health.InfrastructureHealthService) *HealthCheckHandler {
	return &HealthCheckHandler{
		infraHealth: infraHealth,
	}
}

// ServeHTTP handles the health check request
func (h *HealthCheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := h.infraHealth.CheckHealth()

	status := http.StatusOK
	if !result.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeMonitoringJSON(w, status, result)
}

// KubernetesHealthHandler serves Kubernetes-style health probes:
// /health/live, /health/ready and /health/startup
type KubernetesHealthHandler struct {
	infraHealth  *health.InfrastructureHealthService
	brokerHealth *health.BrokerHealthService
}

// NewKubernetesHealthHandler creates a new Kubernetes health handler
func NewKubernetesHealthHandler(
	infraHealth *health.InfrastructureHealthService,
	brokerHealth *health.BrokerHealthService,
) *KubernetesHealthHandler {
	return &KubernetesHealthHandler{
		infraHealth:  infraHealth,
		brokerHealth: brokerHealth,
	}
}

// Routes returns the router for the probe endpoints
func (h *KubernetesHealthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/live", h.Liveness)
	r.Get("/ready", h.Readiness)
	r.Get("/startup", h.Startup)

	return r
}

// Liveness handles the liveness probe. It must not check external
// dependencies: a router waiting on its broker is alive, just not ready.
func (h *KubernetesHealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeMonitoringJSON(w, http.StatusOK, health.NewHealthyStatus("ALIVE"))
}

// Readiness handles the readiness probe. The instance is ready when the
// pools are operational and the broker answers.
func (h *KubernetesHealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	var issues []string

	if h.infraHealth != nil {
		infraHealth := h.infraHealth.CheckHealth()
		if !infraHealth.Healthy && infraHealth.Issues != nil {
			issues = append(issues, infraHealth.Issues...)
		}
	}

	if h.brokerHealth != nil {
		issues = append(issues, h.brokerHealth.CheckBrokerConnectivity()...)
	}

	if len(issues) == 0 {
		writeMonitoringJSON(w, http.StatusOK, health.NewHealthyStatus("READY"))
		return
	}
	writeMonitoringJSON(w, http.StatusServiceUnavailable, health.NewUnhealthyStatus("NOT_READY", issues))
}

// Startup handles the startup probe. Kubernetes gives startup probes a
// more lenient failure budget; the check itself matches readiness.
func (h *KubernetesHealthHandler) Startup(w http.ResponseWriter, r *http.Request) {
	h.Readiness(w, r)
}
