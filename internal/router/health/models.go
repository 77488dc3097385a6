package health

import (
	"time"
)

// InfrastructureHealth is the result of an infrastructure health check
type InfrastructureHealth struct {
	Healthy bool     `json:"healthy"`
	Message string   `json:"message"`
	Issues  []string `json:"issues,omitempty"`
}

// ReadinessStatus is the body returned by the Kubernetes-style probes
type ReadinessStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Issues    []string  `json:"issues,omitempty"`
}

// NewHealthyStatus creates a healthy probe status
func NewHealthyStatus(status string) *ReadinessStatus {
	return &ReadinessStatus{
		Status:    status,
		Timestamp: time.Now(),
		Issues:    []string{},
	}
}

// NewUnhealthyStatus creates an unhealthy probe status with issues
func NewUnhealthyStatus(status string, issues []string) *ReadinessStatus {
	return &ReadinessStatus{
		Status:    status,
		Timestamp: time.Now(),
		Issues:    issues,
	}
}

// HealthStatus is the aggregated system view served at /monitoring/health.
// Pool and queue statistics keep their own endpoints; this rolls them up
// into the totals the dashboard header needs.
type HealthStatus struct {
	Status                  string       `json:"status"`
	UpSince                 time.Time    `json:"upSince"`
	TotalMessagesProcessed  int64        `json:"totalMessagesProcessed"`
	TotalMessagesSucceeded  int64        `json:"totalMessagesSucceeded"`
	TotalMessagesFailed     int64        `json:"totalMessagesFailed"`
	OverallSuccessRate      float64      `json:"overallSuccessRate"`
	ActivePoolCount         int          `json:"activePoolCount"`
	TotalActiveWorkers      int          `json:"totalActiveWorkers"`
	CurrentQueueDepth       int64        `json:"currentQueueDepth"`
	Throughput              float64      `json:"throughput"`
	CircuitBreakersOpen     int          `json:"circuitBreakersOpen"`
	UnacknowledgedWarnings  int          `json:"unacknowledgedWarnings"`
	InfrastructureHealth    string       `json:"infrastructureHealth"`
	LastInfrastructureCheck time.Time    `json:"lastInfrastructureCheck"`
	BrokerType              string       `json:"brokerType"`
	BrokerConnected         bool         `json:"brokerConnected"`
	PoolHealth              []PoolHealth `json:"poolHealth,omitempty"`
}

// PoolHealth is the per-pool slice of the aggregated health view
type PoolHealth struct {
	PoolCode       string    `json:"poolCode"`
	Status         string    `json:"status"`
	ActiveWorkers  int       `json:"activeWorkers"`
	QueueSize      int       `json:"queueSize"`
	LastActivityAt time.Time `json:"lastActivityAt,omitempty"`
}

// CircuitBreakerStats is a snapshot of one per-origin breaker in the mediator
type CircuitBreakerStats struct {
	Name             string  `json:"name"`
	State            string  `json:"state"`
	Requests         uint32  `json:"requests"`
	SuccessfulCalls  uint32  `json:"successfulCalls"`
	FailedCalls      uint32  `json:"failedCalls"`
	ConsecutiveFails uint32  `json:"consecutiveFailures"`
	FailureRate      float64 `json:"failureRate"`
}

// InFlightMessage is one entry of the in-flight snapshot: a message that
// has been accepted for routing but not yet acked or nacked back to the
// broker. DurationMs is measured from acceptance, not broker receipt.
type InFlightMessage struct {
	MessageID    string    `json:"messageId"`
	PoolCode     string    `json:"poolCode"`
	MessageGroup string    `json:"messageGroup,omitempty"`
	TargetURL    string    `json:"targetUrl"`
	StartedAt    time.Time `json:"startedAt"`
	DurationMs   int64     `json:"durationMs"`
}

// InFlightSnapshot wraps the in-flight list with totals so a truncated
// response is distinguishable from a small one.
type InFlightSnapshot struct {
	Total    int                `json:"total"`
	Returned int                `json:"returned"`
	Messages []*InFlightMessage `json:"messages"`
}
