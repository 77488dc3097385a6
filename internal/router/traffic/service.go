package traffic

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Config holds traffic management configuration
type Config struct {
	// Enabled controls whether traffic management is active
	Enabled bool

	// Strategy specifies which strategy to use (currently only "noop")
	Strategy string
}

// DefaultConfig returns default traffic management configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:  false,
		Strategy: "noop",
	}
}

// Service selects a traffic strategy from configuration and exposes
// register/deregister operations for role transition callbacks.
//
// Traffic management failures must never take the router down: a PRIMARY
// that cannot register still processes messages, so errors are logged and
// recorded in the status instead of being returned.
type Service struct {
	mu sync.RWMutex

	config         *Config
	activeStrategy Strategy

	lastOperation  string
	lastOperatedAt time.Time
	lastError      string
}

// NewService creates a new traffic management service
func NewService(config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}

	svc := &Service{
		config:        config,
		lastOperation: "none",
	}
	svc.initStrategy()

	return svc
}

// initStrategy selects the strategy named in the configuration
func (s *Service) initStrategy() {
	if !s.config.Enabled {
		slog.Info("Traffic management disabled - using no-op strategy")
		s.activeStrategy = NewNoOpStrategy()
		return
	}

	strategyType := strings.ToLower(s.config.Strategy)
	slog.Info("Traffic management enabled", "strategy", strategyType)

	switch strategyType {
	case "noop", "":
		s.activeStrategy = NewNoOpStrategy()

	default:
		slog.Warn("Unknown traffic management strategy - using no-op", "strategy", strategyType)
		s.activeStrategy = NewNoOpStrategy()
	}
}

// RegisterAsActive registers this instance as an active target. Called
// when the instance becomes PRIMARY. Failures are logged, not returned.
func (s *Service) RegisterAsActive() {
	strategy := s.strategy()
	if strategy == nil {
		slog.Warn("Traffic management strategy not initialized - skipping registration")
		return
	}

	slog.Info("Registering instance as active with load balancer")
	err := strategy.RegisterAsActive()
	s.recordOperation("register", err)
	if err != nil {
		slog.Error("Failed to register instance with load balancer", "error", err)
	}
}

// DeregisterFromActive removes this instance from active targets. Called
// when the instance becomes STANDBY or shuts down. Failures are logged,
// not returned.
func (s *Service) DeregisterFromActive() {
	strategy := s.strategy()
	if strategy == nil {
		slog.Warn("Traffic management strategy not initialized - skipping deregistration")
		return
	}

	slog.Info("Deregistering instance from load balancer")
	err := strategy.DeregisterFromActive()
	s.recordOperation("deregister", err)
	if err != nil {
		slog.Error("Failed to deregister instance from load balancer - instance may still receive traffic", "error", err)
	}
}

// IsRegistered reports whether this instance is currently registered
func (s *Service) IsRegistered() bool {
	strategy := s.strategy()
	if strategy == nil {
		return false
	}
	return strategy.IsRegistered()
}

// IsEnabled returns whether traffic management is enabled
func (s *Service) IsEnabled() bool {
	return s.config.Enabled
}

// GetStatus returns the current traffic status for monitoring. The
// service-level operation history overlays the strategy's own status so
// the endpoint reflects the most recent register/deregister call.
func (s *Service) GetStatus() *TrafficStatus {
	strategy := s.strategy()
	if strategy == nil {
		return &TrafficStatus{
			StrategyType:  "uninitialized",
			LastOperation: "none",
			LastError:     "strategy not initialized",
		}
	}

	status := strategy.GetStatus()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastOperation != "none" {
		status.LastOperation = fmt.Sprintf("%s at %s", s.lastOperation, s.lastOperatedAt.Format(time.RFC3339))
	}
	if s.lastError != "" {
		status.LastError = s.lastError
	}

	return status
}

// SetStrategy replaces the active strategy at runtime
func (s *Service) SetStrategy(strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeStrategy = strategy
	slog.Info("Traffic strategy updated", "strategy", fmt.Sprintf("%T", strategy))
}

func (s *Service) strategy() Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeStrategy
}

func (s *Service) recordOperation(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOperation = op
	s.lastOperatedAt = time.Now()
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
}
