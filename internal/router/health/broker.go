package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.relaypoint.io/internal/queue"
)

// BrokerConnectivityChecker is the broker-specific probe behind the broker
// health service. SQS, ActiveMQ and external NATS clients each provide one.
type BrokerConnectivityChecker interface {
	// CheckConnectivity verifies the broker endpoint is reachable
	CheckConnectivity(ctx context.Context) error
	// CheckQueueAccessible verifies a specific queue can be addressed
	CheckQueueAccessible(ctx context.Context, queueName string) error
}

// CheckerFunc adapts a plain connectivity function to the checker
// interface for brokers without a per-queue probe.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckConnectivity(ctx context.Context) error { return f(ctx) }

func (f CheckerFunc) CheckQueueAccessible(ctx context.Context, _ string) error { return f(ctx) }

// BrokerHealthService tracks connectivity to the configured message
// broker. Readiness uses it so an instance with a dead broker connection
// is pulled from rotation before it starves its pools.
type BrokerHealthService struct {
	mu sync.RWMutex

	enabled    bool
	queueType  queue.QueueType
	checker    BrokerConnectivityChecker
	lastCheck  time.Time
	lastResult bool
	lastIssues []string

	connectionAttempts  atomic.Int64
	connectionSuccesses atomic.Int64
	connectionFailures  atomic.Int64
	brokerAvailable     atomic.Bool
}

// NewBrokerHealthService creates a broker health service for the given
// queue type
func NewBrokerHealthService(enabled bool, queueType queue.QueueType, checker BrokerConnectivityChecker) *BrokerHealthService {
	return &BrokerHealthService{
		enabled:   enabled,
		queueType: queueType,
		checker:   checker,
	}
}

// CheckBrokerConnectivity probes the broker and returns the issues found,
// empty when healthy. The embedded broker is in-process and always counts
// as reachable.
func (s *BrokerHealthService) CheckBrokerConnectivity() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return []string{}
	}

	s.connectionAttempts.Add(1)
	s.lastCheck = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var issues []string
	var connected bool

	switch {
	case s.queueType == queue.QueueTypeEmbedded:
		connected = true

	case s.checker == nil:
		slog.Warn("No broker connectivity checker configured", "queueType", string(s.queueType))
		issues = append(issues, fmt.Sprintf("%s broker checker not configured", s.queueType))

	default:
		if err := s.checker.CheckConnectivity(ctx); err != nil {
			slog.Error("Broker connectivity check failed",
				"error", err,
				"queueType", string(s.queueType))
			issues = append(issues, fmt.Sprintf("%s broker connectivity check failed: %v", s.queueType, err))
		} else {
			connected = true
		}
	}

	if connected {
		s.connectionSuccesses.Add(1)
		s.brokerAvailable.Store(true)
	} else {
		s.connectionFailures.Add(1)
		s.brokerAvailable.Store(false)
		if len(issues) == 0 {
			issues = append(issues, fmt.Sprintf("%s broker is not accessible", s.queueType))
		}
	}

	s.lastResult = connected
	s.lastIssues = issues
	return issues
}

// CheckQueueAccessible probes a single queue by name
func (s *BrokerHealthService) CheckQueueAccessible(queueName string) []string {
	if !s.enabled || s.checker == nil {
		return []string{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.checker.CheckQueueAccessible(ctx, queueName); err != nil {
		return []string{fmt.Sprintf("Cannot access queue [%s]: %v", queueName, err)}
	}
	return []string{}
}

// GetBrokerType returns the configured broker type
func (s *BrokerHealthService) GetBrokerType() queue.QueueType {
	return s.queueType
}

// IsAvailable reports the result of the most recent connectivity check
func (s *BrokerHealthService) IsAvailable() bool {
	return s.brokerAvailable.Load()
}

// GetMetrics returns cumulative connectivity check counters
func (s *BrokerHealthService) GetMetrics() (attempts, successes, failures int64) {
	return s.connectionAttempts.Load(),
		s.connectionSuccesses.Load(),
		s.connectionFailures.Load()
}

// GetLastCheck returns the last check time, result, and issues
func (s *BrokerHealthService) GetLastCheck() (time.Time, bool, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheck, s.lastResult, s.lastIssues
}

// SetChecker swaps the connectivity checker, for consumers reconnecting
// with fresh credentials
func (s *BrokerHealthService) SetChecker(checker BrokerConnectivityChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checker = checker
}
