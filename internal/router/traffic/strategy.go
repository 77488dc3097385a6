// Package traffic controls whether the load balancer routes requests to
// this instance. In HA deployments the PRIMARY registers itself as the
// active target and STANDBY instances deregister, so only one instance
// receives routed traffic at a time.
package traffic

import "errors"

// ErrTrafficManagement represents a traffic management operation failure
var ErrTrafficManagement = errors.New("traffic management error")

// TrafficStatus is the traffic state exposed to monitoring endpoints
type TrafficStatus struct {
	StrategyType  string `json:"strategyType"`
	Registered    bool   `json:"registered"`
	TargetInfo    string `json:"targetInfo"`
	LastOperation string `json:"lastOperation"`
	LastError     string `json:"lastError,omitempty"`
}

// Strategy manages traffic routing registration for this instance.
// Deployment environments implement this to tell their load balancer
// whether this instance should receive traffic based on its
// PRIMARY/STANDBY role.
//
// Implementations must be idempotent: role transitions can repeat the
// same registration call.
type Strategy interface {
	// RegisterAsActive marks this instance as an active target.
	// Called when the instance becomes PRIMARY.
	RegisterAsActive() error

	// DeregisterFromActive removes this instance from active targets.
	// Called when the instance becomes STANDBY or shuts down.
	DeregisterFromActive() error

	// IsRegistered reports whether this instance is currently registered
	IsRegistered() bool

	// GetStatus returns the current status for monitoring
	GetStatus() *TrafficStatus
}
