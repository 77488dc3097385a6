// Package model provides data structures for the message router
package model

// MediationType defines the type of mediation to perform
type MediationType string

const (
	// MediationTypeHTTP is HTTP-based mediation to external endpoints
	MediationTypeHTTP MediationType = "HTTP"
)

// MessagePointer is the unit of work carried on the wire. It never contains
// the business payload itself, only enough to route the message and tell the
// downstream where to fetch the real data.
//
// The JSON shape is the external contract shared with every producer; unknown
// fields are ignored on decode.
type MessagePointer struct {
	// ID is the unique message identifier (used for in-flight deduplication)
	ID string `json:"id"`

	// PoolCode selects the processing pool (e.g. "POOL-HIGH", "order-service")
	PoolCode string `json:"poolCode"`

	// AuthToken is forwarded as a bearer token to the downstream endpoint
	AuthToken string `json:"authToken"`

	// MediationType selects the mediator strategy
	MediationType MediationType `json:"mediationType"`

	// MediationTarget is the downstream endpoint URL
	MediationTarget string `json:"mediationTarget"`

	// MessageGroupID is the optional FIFO partition key. Messages with the
	// same group ID within a pool are processed sequentially; different
	// groups run concurrently. Empty maps to the pool's default group.
	MessageGroupID string `json:"messageGroupId"`

	// BatchID identifies the broker poll batch this pointer arrived in.
	// Populated by the consumer, never serialized. Enables the batch+group
	// failure cascade.
	BatchID string `json:"batchId,omitempty"`

	// TimeoutSeconds overrides the mediator's per-attempt timeout for this
	// message. Zero means the mediator default.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`

	// BrokerMessageID is the broker's own message identifier (SQS message ID,
	// STOMP message-id header) used for pipeline tracking only.
	BrokerMessageID string `json:"-"`
}

// MediationResponse is an optional body on a 2xx mediation response telling
// the router whether to acknowledge the message.
//
//   - ack: true  - processing complete, ack and mark success
//   - ack: false - accepted but not ready; nack and retry after visibility,
//     optionally delayed by delaySeconds
type MediationResponse struct {
	// Ack indicates whether the message should be acknowledged (true) or
	// nacked for retry (false)
	Ack bool `json:"ack"`

	// Message is an optional reason (e.g. why ack=false)
	Message string `json:"message,omitempty"`

	// DelaySeconds delays redelivery when ack=false. Valid range 1-43200
	// (12 hours, the SQS ceiling). Nil or 0 uses the default visibility.
	DelaySeconds *int `json:"delaySeconds,omitempty"`
}

const (
	// MaxDelaySeconds is the maximum redelivery delay (12 hours, SQS limit)
	MaxDelaySeconds = 43200

	// DefaultDelaySeconds is used when a nack carries no explicit delay
	DefaultDelaySeconds = 30
)

// GetEffectiveDelaySeconds returns the delay clamped to the valid range,
// or DefaultDelaySeconds when none was specified.
func (r *MediationResponse) GetEffectiveDelaySeconds() int {
	if r.DelaySeconds == nil || *r.DelaySeconds <= 0 {
		return DefaultDelaySeconds
	}
	if *r.DelaySeconds > MaxDelaySeconds {
		return MaxDelaySeconds
	}
	return *r.DelaySeconds
}

// ProcessRequest is the body the mediator POSTs to the downstream endpoint.
// Deliberately minimal: the downstream fetches the full message by id.
type ProcessRequest struct {
	MessageID string `json:"messageId"`
}

// ProcessResponse is what a downstream handler returns to the mediator.
// Mirrors the MediationResponse contract:
//   - ack: true  - remove from queue (success or permanent failure)
//   - ack: false - keep on queue, retry later
type ProcessResponse struct {
	Ack          bool   `json:"ack"`
	Message      string `json:"message,omitempty"`
	DelaySeconds *int   `json:"delaySeconds,omitempty"`
}

// NewAckResponse creates a response that acknowledges (removes from queue)
func NewAckResponse(message string) *ProcessResponse {
	return &ProcessResponse{
		Ack:     true,
		Message: message,
	}
}

// NewNackResponse creates a response that keeps the message on the queue
func NewNackResponse(message string) *ProcessResponse {
	return &ProcessResponse{
		Ack:     false,
		Message: message,
	}
}

// NewNackWithDelayResponse creates a nack response with a retry delay
func NewNackWithDelayResponse(message string, delaySeconds int) *ProcessResponse {
	return &ProcessResponse{
		Ack:          false,
		Message:      message,
		DelaySeconds: &delaySeconds,
	}
}
