package health

import (
	"log/slog"
	"sync"
	"time"

	routermetrics "go.relaypoint.io/internal/router/metrics"
)

// ActivityTimeout is how long a pool may go without processing a message
// before it counts as stalled. Applied only to pools that have processed
// at least one message; a pool that never saw traffic is not stalled.
const ActivityTimeout = 2 * time.Minute

// PoolActivitySource supplies per-pool statistics and activity timestamps.
// The in-memory pool metrics service satisfies it directly.
type PoolActivitySource interface {
	GetAllPoolStats() map[string]*routermetrics.PoolStats
	GetLastActivityTimestamp(poolCode string) *time.Time
}

// InfrastructureHealthService reports whether the router itself is
// operational. Downstream endpoint failures never make this unhealthy;
// only a missing pool set or a fully stalled one does.
type InfrastructureHealthService struct {
	mu sync.RWMutex

	enabled       bool
	pools         PoolActivitySource
	routerStarted bool
	lastCheck     time.Time
	cached        *InfrastructureHealth
}

// NewInfrastructureHealthService creates the infrastructure health service
func NewInfrastructureHealthService(enabled bool, pools PoolActivitySource) *InfrastructureHealthService {
	return &InfrastructureHealthService{
		enabled: enabled,
		pools:   pools,
	}
}

// SetRouterStarted records whether the router finished its initial
// configuration sync
func (s *InfrastructureHealthService) SetRouterStarted(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routerStarted = ok
}

// CheckHealth evaluates the router infrastructure and caches the result
func (s *InfrastructureHealthService) CheckHealth() *InfrastructureHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCheck = time.Now()

	if !s.enabled {
		// Not running means not broken
		health := &InfrastructureHealth{
			Healthy: true,
			Message: "Message router is disabled",
		}
		s.cached = health
		return health
	}

	var issues []string
	var activity map[string]*time.Time

	if !s.routerStarted {
		issues = append(issues, "Router has not completed initial configuration sync")
	}

	if s.pools != nil {
		if len(s.pools.GetAllPoolStats()) == 0 {
			issues = append(issues, "No active process pools")
		}
		activity = s.poolActivity()
	} else {
		issues = append(issues, "Router manager not initialized")
		activity = map[string]*time.Time{}
	}

	if len(activity) > 0 {
		stalled := s.stalledPools(activity)
		if len(stalled) > 0 && len(stalled) == len(activity) {
			// A single busy pool among idle ones is fine; every active
			// pool going quiet at once points at the router, not traffic.
			issues = append(issues, "All process pools appear stalled (no activity in 120s)")
		}
	}

	health := &InfrastructureHealth{
		Healthy: len(issues) == 0,
		Issues:  issues,
	}
	if health.Healthy {
		health.Message = "Infrastructure is operational"
	} else {
		health.Message = "Infrastructure issues detected"
	}

	s.cached = health
	return health
}

// poolActivity returns the last activity timestamp for each pool that
// has one
func (s *InfrastructureHealthService) poolActivity() map[string]*time.Time {
	activity := make(map[string]*time.Time)
	if s.pools == nil {
		return activity
	}

	for poolCode := range s.pools.GetAllPoolStats() {
		if last := s.pools.GetLastActivityTimestamp(poolCode); last != nil {
			activity[poolCode] = last
		}
	}
	return activity
}

// stalledPools returns the pools whose last activity is older than the
// timeout
func (s *InfrastructureHealthService) stalledPools(activity map[string]*time.Time) []string {
	var stalled []string
	now := time.Now()

	for poolCode, last := range activity {
		if last == nil {
			continue
		}
		idle := now.Sub(*last)
		if idle > ActivityTimeout {
			stalled = append(stalled, poolCode)
			slog.Warn("Pool has not processed messages recently",
				"poolCode", poolCode,
				"secondsSinceActivity", int64(idle.Seconds()))
		}
	}
	return stalled
}

// GetLastHealthCheck returns when CheckHealth last ran
func (s *InfrastructureHealthService) GetLastHealthCheck() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheck
}

// GetCachedHealth returns the most recent CheckHealth result without
// re-evaluating
func (s *InfrastructureHealthService) GetCachedHealth() *InfrastructureHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}
