package health

import (
	"sync"
	"time"

	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/warning"
)

// BreakerSource provides circuit breaker snapshots. Implemented by the
// HTTP mediator.
type BreakerSource interface {
	GetAllCircuitBreakerStats() map[string]*CircuitBreakerStats
	GetOpenCircuitBreakerCount() int
}

// WarningSource provides the warning counts the aggregate view needs
type WarningSource interface {
	GetUnacknowledgedWarnings() []warning.Warning
}

// QueueStatsSource provides queue statistics keyed by queue identifier
type QueueStatsSource interface {
	GetAllQueueStats() map[string]*routermetrics.QueueStats
}

// HealthStatusService aggregates infrastructure, broker, pool, queue,
// breaker and warning state into the single HealthStatus document the
// dashboard polls. Sources are optional; missing ones leave their fields
// at zero values.
type HealthStatusService struct {
	mu sync.RWMutex

	startTime    time.Time
	infraHealth  *InfrastructureHealthService
	brokerHealth *BrokerHealthService
	pools        PoolActivitySource
	breakers     BreakerSource
	warnings     WarningSource
	queues       QueueStatsSource
}

// NewHealthStatusService creates the aggregator over the two health
// services and the pool metrics source
func NewHealthStatusService(
	infraHealth *InfrastructureHealthService,
	brokerHealth *BrokerHealthService,
	pools PoolActivitySource,
) *HealthStatusService {
	return &HealthStatusService{
		startTime:    time.Now(),
		infraHealth:  infraHealth,
		brokerHealth: brokerHealth,
		pools:        pools,
	}
}

// SetBreakerSource wires the circuit breaker snapshot provider
func (s *HealthStatusService) SetBreakerSource(src BreakerSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers = src
}

// SetWarningSource wires the warning provider
func (s *HealthStatusService) SetWarningSource(src WarningSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = src
}

// SetQueueStatsSource wires the queue statistics provider
func (s *HealthStatusService) SetQueueStatsSource(src QueueStatsSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = src
}

// GetHealthStatus builds the aggregated health document
func (s *HealthStatusService) GetHealthStatus() *HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &HealthStatus{
		Status:                  "UNKNOWN",
		UpSince:                 s.startTime,
		LastInfrastructureCheck: time.Now(),
	}

	if s.infraHealth != nil {
		if s.infraHealth.CheckHealth().Healthy {
			status.InfrastructureHealth = "HEALTHY"
		} else {
			status.InfrastructureHealth = "UNHEALTHY"
		}
		status.LastInfrastructureCheck = s.infraHealth.GetLastHealthCheck()
	}

	if s.brokerHealth != nil {
		status.BrokerType = string(s.brokerHealth.GetBrokerType())
		status.BrokerConnected = s.brokerHealth.IsAvailable()
	}

	if s.pools != nil {
		poolStats := s.pools.GetAllPoolStats()
		status.ActivePoolCount = len(poolStats)

		var processed, succeeded, failed int64
		var activeWorkers int
		var poolHealth []PoolHealth

		for poolCode, stats := range poolStats {
			processed += stats.TotalProcessed
			succeeded += stats.TotalSucceeded
			failed += stats.TotalFailed
			activeWorkers += stats.ActiveWorkers

			ph := PoolHealth{
				PoolCode:      poolCode,
				Status:        "HEALTHY",
				ActiveWorkers: stats.ActiveWorkers,
				QueueSize:     stats.QueueSize,
			}
			if last := s.pools.GetLastActivityTimestamp(poolCode); last != nil {
				ph.LastActivityAt = *last
				if time.Since(*last) > ActivityTimeout {
					ph.Status = "STALLED"
				}
			}
			poolHealth = append(poolHealth, ph)
		}

		status.TotalMessagesProcessed = processed
		status.TotalMessagesSucceeded = succeeded
		status.TotalMessagesFailed = failed
		status.TotalActiveWorkers = activeWorkers
		status.PoolHealth = poolHealth
		if processed > 0 {
			status.OverallSuccessRate = float64(succeeded) / float64(processed)
		}
	}

	if s.breakers != nil {
		status.CircuitBreakersOpen = s.breakers.GetOpenCircuitBreakerCount()
	}

	if s.warnings != nil {
		status.UnacknowledgedWarnings = len(s.warnings.GetUnacknowledgedWarnings())
	}

	if s.queues != nil {
		for _, qs := range s.queues.GetAllQueueStats() {
			status.CurrentQueueDepth += qs.PendingMessages
			status.Throughput += qs.Throughput
		}
	}

	switch {
	case status.InfrastructureHealth != "HEALTHY" || !status.BrokerConnected:
		status.Status = "UNHEALTHY"
	case status.CircuitBreakersOpen > 0:
		status.Status = "DEGRADED"
	default:
		status.Status = "HEALTHY"
	}

	return status
}

// GetUptime returns how long this instance has been up
func (s *HealthStatusService) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
