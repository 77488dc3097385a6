// Package api exposes the router's monitoring and health endpoints.
// Collaborators are injected through setters so the server can come up
// before every subsystem is wired; endpoints whose collaborator is
// missing degrade to 503 instead of failing startup.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"go.relaypoint.io/internal/router/health"
	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/standby"
	"go.relaypoint.io/internal/router/traffic"
	"go.relaypoint.io/internal/router/warning"
)

// HealthStatusSource provides the aggregated health snapshot
type HealthStatusSource interface {
	GetHealthStatus() *health.HealthStatus
}

// PoolStatsSource provides per-pool processing statistics
type PoolStatsSource interface {
	GetAllPoolStats() map[string]*routermetrics.PoolStats
}

// QueueStatsSource provides per-queue depth and throughput statistics
type QueueStatsSource interface {
	GetAllQueueStats() map[string]*routermetrics.QueueStats
}

// BreakerAdmin provides circuit breaker inspection and reset operations
type BreakerAdmin interface {
	GetAllCircuitBreakerStats() map[string]*health.CircuitBreakerStats
	GetCircuitBreakerStats(origin string) *health.CircuitBreakerStats
	GetCircuitBreakerState(origin string) string
	ResetCircuitBreaker(origin string) bool
	ResetAllCircuitBreakers() int
}

// InFlightSource provides visibility into messages currently dispatched
type InFlightSource interface {
	GetInFlightMessages(limit int, messageID string) []*health.InFlightMessage
	InFlightCount() int
}

// StandbySource provides standby role information
type StandbySource interface {
	IsEnabled() bool
	GetStatus() *standby.StandbyStatus
}

// TrafficSource provides traffic management status
type TrafficSource interface {
	IsEnabled() bool
	GetStatus() *traffic.TrafficStatus
}

// MonitoringHandler serves the /monitoring/* endpoint tree
type MonitoringHandler struct {
	healthStatus  HealthStatusSource
	poolStats     PoolStatsSource
	queueStats    QueueStatsSource
	warningRoutes http.Handler
	breakers      BreakerAdmin
	inFlight      InFlightSource
	standbySvc    StandbySource
	trafficSvc    TrafficSource
}

// NewMonitoringHandler creates a monitoring handler with the always-present
// health and pool collaborators; the rest are wired through setters
func NewMonitoringHandler(healthStatus HealthStatusSource, poolStats PoolStatsSource) *MonitoringHandler {
	return &MonitoringHandler{
		healthStatus: healthStatus,
		poolStats:    poolStats,
	}
}

// SetQueueStats sets the queue statistics provider
func (h *MonitoringHandler) SetQueueStats(qs QueueStatsSource) {
	h.queueStats = qs
}

// SetWarningService mounts the warning endpoints over the given service
func (h *MonitoringHandler) SetWarningService(svc warning.Service) {
	h.warningRoutes = warning.NewHandler(svc).Routes()
}

// SetBreakerAdmin sets the circuit breaker administration interface
func (h *MonitoringHandler) SetBreakerAdmin(ba BreakerAdmin) {
	h.breakers = ba
}

// SetInFlightSource sets the in-flight message provider
func (h *MonitoringHandler) SetInFlightSource(src InFlightSource) {
	h.inFlight = src
}

// SetStandbyService sets the standby status provider
func (h *MonitoringHandler) SetStandbyService(ss StandbySource) {
	h.standbySvc = ss
}

// SetTrafficService sets the traffic management status provider
func (h *MonitoringHandler) SetTrafficService(ts TrafficSource) {
	h.trafficSvc = ts
}

// Routes returns the router for the monitoring endpoints
func (h *MonitoringHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.GetHealthStatus)
	r.Get("/queue-stats", h.GetQueueStats)
	r.Get("/pool-stats", h.GetPoolStats)
	r.Mount("/warnings", http.HandlerFunc(h.serveWarnings))
	r.Get("/circuit-breakers", h.GetCircuitBreakers)
	r.Get("/circuit-breakers/state", h.GetCircuitBreakerState)
	r.Post("/circuit-breakers/reset", h.ResetCircuitBreaker)
	r.Post("/circuit-breakers/reset-all", h.ResetAllCircuitBreakers)
	r.Get("/in-flight-messages", h.GetInFlightMessages)
	r.Get("/standby-status", h.GetStandbyStatus)
	r.Get("/traffic-status", h.GetTrafficStatus)
	r.Get("/dashboard", h.GetDashboard)

	return r
}

// GetHealthStatus handles GET /monitoring/health
func (h *MonitoringHandler) GetHealthStatus(w http.ResponseWriter, r *http.Request) {
	if h.healthStatus == nil {
		writeUnavailable(w, "health status service not available")
		return
	}
	writeMonitoringJSON(w, http.StatusOK, h.healthStatus.GetHealthStatus())
}

// GetQueueStats handles GET /monitoring/queue-stats
func (h *MonitoringHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	if h.queueStats == nil {
		writeUnavailable(w, "queue metrics not available")
		return
	}
	writeMonitoringJSON(w, http.StatusOK, h.queueStats.GetAllQueueStats())
}

// GetPoolStats handles GET /monitoring/pool-stats
func (h *MonitoringHandler) GetPoolStats(w http.ResponseWriter, r *http.Request) {
	if h.poolStats == nil {
		writeUnavailable(w, "pool metrics not available")
		return
	}
	writeMonitoringJSON(w, http.StatusOK, h.poolStats.GetAllPoolStats())
}

// serveWarnings delegates /monitoring/warnings/* to the warning handler
func (h *MonitoringHandler) serveWarnings(w http.ResponseWriter, r *http.Request) {
	if h.warningRoutes == nil {
		writeUnavailable(w, "warning service not available")
		return
	}
	h.warningRoutes.ServeHTTP(w, r)
}

// GetCircuitBreakers handles GET /monitoring/circuit-breakers.
// With ?origin= it returns the stats for a single origin; circuit
// breaker keys are URLs, so they travel as query parameters rather
// than path segments.
func (h *MonitoringHandler) GetCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		writeUnavailable(w, "circuit breakers not available")
		return
	}

	if origin := r.URL.Query().Get("origin"); origin != "" {
		stats := h.breakers.GetCircuitBreakerStats(origin)
		if stats == nil {
			writeMonitoringJSON(w, http.StatusNotFound, map[string]string{"error": "no circuit breaker for origin", "origin": origin})
			return
		}
		writeMonitoringJSON(w, http.StatusOK, stats)
		return
	}

	writeMonitoringJSON(w, http.StatusOK, h.breakers.GetAllCircuitBreakerStats())
}

// GetCircuitBreakerState handles GET /monitoring/circuit-breakers/state?origin=
func (h *MonitoringHandler) GetCircuitBreakerState(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		writeUnavailable(w, "circuit breakers not available")
		return
	}

	origin := r.URL.Query().Get("origin")
	if origin == "" {
		writeMonitoringJSON(w, http.StatusBadRequest, map[string]string{"error": "origin parameter required"})
		return
	}

	state := h.breakers.GetCircuitBreakerState(origin)
	if state == "" {
		state = "UNKNOWN"
	}
	writeMonitoringJSON(w, http.StatusOK, map[string]string{"origin": origin, "state": state})
}

// ResetCircuitBreaker handles POST /monitoring/circuit-breakers/reset?origin=
func (h *MonitoringHandler) ResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		writeUnavailable(w, "circuit breakers not available")
		return
	}

	origin := r.URL.Query().Get("origin")
	if origin == "" {
		writeMonitoringJSON(w, http.StatusBadRequest, map[string]string{"error": "origin parameter required"})
		return
	}

	if !h.breakers.ResetCircuitBreaker(origin) {
		writeMonitoringJSON(w, http.StatusNotFound, map[string]string{"error": "no circuit breaker for origin", "origin": origin})
		return
	}
	writeMonitoringJSON(w, http.StatusOK, map[string]string{"status": "reset", "origin": origin})
}

// ResetAllCircuitBreakers handles POST /monitoring/circuit-breakers/reset-all
func (h *MonitoringHandler) ResetAllCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		writeUnavailable(w, "circuit breakers not available")
		return
	}

	count := h.breakers.ResetAllCircuitBreakers()
	writeMonitoringJSON(w, http.StatusOK, map[string]any{"status": "reset", "count": count})
}

// GetInFlightMessages handles GET /monitoring/in-flight-messages?limit=100&messageId=xxx
func (h *MonitoringHandler) GetInFlightMessages(w http.ResponseWriter, r *http.Request) {
	if h.inFlight == nil {
		writeUnavailable(w, "in-flight tracking not available")
		return
	}

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}
	messageID := r.URL.Query().Get("messageId")

	messages := h.inFlight.GetInFlightMessages(limit, messageID)
	snapshot := &health.InFlightSnapshot{
		Total:    h.inFlight.InFlightCount(),
		Returned: len(messages),
		Messages: messages,
	}
	writeMonitoringJSON(w, http.StatusOK, snapshot)
}

// GetStandbyStatus handles GET /monitoring/standby-status
func (h *MonitoringHandler) GetStandbyStatus(w http.ResponseWriter, r *http.Request) {
	if h.standbySvc == nil || !h.standbySvc.IsEnabled() {
		writeMonitoringJSON(w, http.StatusOK, map[string]bool{"standbyEnabled": false})
		return
	}
	writeMonitoringJSON(w, http.StatusOK, h.standbySvc.GetStatus())
}

// trafficStatusResponse wraps the strategy status with an enabled flag
type trafficStatusResponse struct {
	Enabled bool                   `json:"enabled"`
	Status  *traffic.TrafficStatus `json:"status,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// GetTrafficStatus handles GET /monitoring/traffic-status
func (h *MonitoringHandler) GetTrafficStatus(w http.ResponseWriter, r *http.Request) {
	if h.trafficSvc == nil || !h.trafficSvc.IsEnabled() {
		writeMonitoringJSON(w, http.StatusOK, trafficStatusResponse{
			Enabled: false,
			Message: "Traffic management not available",
		})
		return
	}
	writeMonitoringJSON(w, http.StatusOK, trafficStatusResponse{
		Enabled: true,
		Status:  h.trafficSvc.GetStatus(),
	})
}

// GetDashboard handles GET /monitoring/dashboard
func (h *MonitoringHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

func writeMonitoringJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeMonitoringJSON(w, http.StatusServiceUnavailable, map[string]string{"error": message})
}
