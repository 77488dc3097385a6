package mediator

import (
	"log/slog"

	"github.com/sony/gobreaker"

	"go.relaypoint.io/internal/router/health"
)

// Circuit breaker administration for the monitoring API. Breakers are
// keyed by target origin and created lazily by breakerFor, so the maps
// here only ever describe origins that have seen traffic.

// GetAllCircuitBreakerStats returns a snapshot of every per-origin breaker
func (m *HTTPMediator) GetAllCircuitBreakerStats() map[string]*health.CircuitBreakerStats {
	stats := make(map[string]*health.CircuitBreakerStats)
	m.breakers.Range(func(key, value any) bool {
		origin := key.(string)
		cb := value.(*gobreaker.CircuitBreaker)
		stats[origin] = breakerStats(origin, cb)
		return true
	})
	return stats
}

// GetCircuitBreakerStats returns the snapshot for a single origin, nil if
// that origin has never been mediated to
func (m *HTTPMediator) GetCircuitBreakerStats(origin string) *health.CircuitBreakerStats {
	v, ok := m.breakers.Load(origin)
	if !ok {
		return nil
	}
	return breakerStats(origin, v.(*gobreaker.CircuitBreaker))
}

// GetOpenCircuitBreakerCount returns how many breakers are currently open
func (m *HTTPMediator) GetOpenCircuitBreakerCount() int {
	count := 0
	m.breakers.Range(func(_, value any) bool {
		if value.(*gobreaker.CircuitBreaker).State() == gobreaker.StateOpen {
			count++
		}
		return true
	})
	return count
}

// GetCircuitBreakerState returns the state string for an origin, empty if
// unknown
func (m *HTTPMediator) GetCircuitBreakerState(origin string) string {
	v, ok := m.breakers.Load(origin)
	if !ok {
		return ""
	}
	return v.(*gobreaker.CircuitBreaker).State().String()
}

// ResetCircuitBreaker discards the breaker for an origin so the next call
// starts from a closed state with fresh counts. Returns false when the
// origin has no breaker.
func (m *HTTPMediator) ResetCircuitBreaker(origin string) bool {
	if _, ok := m.breakers.Load(origin); !ok {
		return false
	}
	m.breakers.Store(origin, m.newBreaker(origin))
	slog.Info("Circuit breaker reset", "origin", origin)
	return true
}

// ResetAllCircuitBreakers discards every breaker and returns how many
// were reset
func (m *HTTPMediator) ResetAllCircuitBreakers() int {
	count := 0
	m.breakers.Range(func(key, _ any) bool {
		origin := key.(string)
		m.breakers.Store(origin, m.newBreaker(origin))
		count++
		return true
	})
	if count > 0 {
		slog.Info("All circuit breakers reset", "count", count)
	}
	return count
}

func breakerStats(origin string, cb *gobreaker.CircuitBreaker) *health.CircuitBreakerStats {
	counts := cb.Counts()
	stats := &health.CircuitBreakerStats{
		Name:             origin,
		State:            cb.State().String(),
		Requests:         counts.Requests,
		SuccessfulCalls:  counts.TotalSuccesses,
		FailedCalls:      counts.TotalFailures,
		ConsecutiveFails: counts.ConsecutiveFailures,
	}
	if counts.Requests > 0 {
		stats.FailureRate = float64(counts.TotalFailures) / float64(counts.Requests)
	}
	return stats
}
