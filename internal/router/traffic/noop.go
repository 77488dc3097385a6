package traffic

import "log/slog"

// NoOpStrategy leaves registration untouched: both PRIMARY and STANDBY
// instances stay registered with the load balancer and standby filtering
// happens at the consumer level instead. This is the default when traffic
// management is disabled.
type NoOpStrategy struct{}

// NewNoOpStrategy creates a new no-op strategy
func NewNoOpStrategy() *NoOpStrategy {
	return &NoOpStrategy{}
}

// RegisterAsActive does nothing
func (s *NoOpStrategy) RegisterAsActive() error {
	slog.Debug("NoOp traffic strategy: register requested, no action taken")
	return nil
}

// DeregisterFromActive does nothing
func (s *NoOpStrategy) DeregisterFromActive() error {
	slog.Debug("NoOp traffic strategy: deregister requested, no action taken")
	return nil
}

// IsRegistered always returns true since registration is not managed
func (s *NoOpStrategy) IsRegistered() bool {
	return true
}

// GetStatus returns the current status
func (s *NoOpStrategy) GetStatus() *TrafficStatus {
	return &TrafficStatus{
		StrategyType:  "noop",
		Registered:    true,
		TargetInfo:    "No traffic management - all instances receive traffic",
		LastOperation: "none",
	}
}
