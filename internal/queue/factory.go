package queue

// QueueType defines the type of queue implementation
type QueueType string

const (
	QueueTypeEmbedded QueueType = "embedded" // Embedded NATS for dev
	QueueTypeNATS     QueueType = "nats"     // External NATS
	QueueTypeSQS      QueueType = "sqs"      // AWS SQS
	QueueTypeActiveMQ QueueType = "activemq" // ActiveMQ over STOMP
)

// Factory creates queue implementations
type Factory struct {
	config *Config
}

// NewFactory creates a new queue factory
func NewFactory(cfg *Config) *Factory {
	return &Factory{config: cfg}
}

// Type returns the configured queue type
func (f *Factory) Type() QueueType {
	return QueueType(f.config.Type)
}

// IsEmbedded returns true if using embedded NATS
func (f *Factory) IsEmbedded() bool {
	return f.config.Type == "embedded" || f.config.Type == ""
}

// IsNATS returns true if using external NATS
func (f *Factory) IsNATS() bool {
	return f.config.Type == "nats"
}

// IsSQS returns true if using AWS SQS
func (f *Factory) IsSQS() bool {
	return f.config.Type == "sqs"
}

// IsActiveMQ returns true if using ActiveMQ
func (f *Factory) IsActiveMQ() bool {
	return f.config.Type == "activemq"
}

// Config returns the queue configuration
func (f *Factory) Config() *Config {
	return f.config
}

// DefaultConfig returns default queue configuration
func DefaultConfig() *Config {
	return &Config{
		Type:    "embedded",
		DataDir: "./data/nats",
		NATS: NATSConfig{
			StreamName:   "ROUTER",
			ConsumerName: "relaypoint-router",
			Subjects:     []string{"route.>"},
		},
		SQS: SQSConfig{
			WaitTimeSeconds:     20,
			VisibilityTimeout:   120,
			MaxNumberOfMessages: 10,
		},
	}
}
