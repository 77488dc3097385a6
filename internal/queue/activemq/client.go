// Package activemq provides an ActiveMQ queue implementation over STOMP
package activemq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"

	"go.relaypoint.io/internal/common/metrics"
	"go.relaypoint.io/internal/queue"
)

const (
	// DefaultPrefetch limits unacknowledged deliveries per subscription
	DefaultPrefetch = 10

	// DefaultHeartBeat is the STOMP heartbeat interval in both directions
	DefaultHeartBeat = 30 * time.Second

	// reconnectDelay is the wait between redial attempts after a lost connection
	reconnectDelay = 2 * time.Second
)

// groupHeader carries the broker-side message group (JMS semantics)
const groupHeader = "JMSXGroupID"

// Client manages STOMP connections to an ActiveMQ broker. Publishing uses a
// shared control connection; each consumer dials its own connection so a slow
// subscription cannot stall the others.
type Client struct {
	config    *queue.ActiveMQConfig
	conn      *stomp.Conn
	publisher *Publisher
	consumers map[string]*Consumer
	mu        sync.RWMutex
}

// NewClient connects to the broker and returns a client
func NewClient(cfg *queue.ActiveMQConfig) (*Client, error) {
	if cfg.BrokerAddr == "" {
		return nil, fmt.Errorf("activemq broker address is required")
	}
	if cfg.HeartBeat == 0 {
		cfg.HeartBeat = DefaultHeartBeat
	}
	if cfg.Prefetch == 0 {
		cfg.Prefetch = DefaultPrefetch
	}

	conn, err := dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ActiveMQ: %w", err)
	}

	slog.Info("Connected to ActiveMQ broker", "addr", cfg.BrokerAddr)

	return &Client{
		config:    cfg,
		conn:      conn,
		publisher: &Publisher{conn: conn},
		consumers: make(map[string]*Consumer),
	}, nil
}

// dial opens a STOMP connection with the configured credentials and heartbeat
func dial(cfg *queue.ActiveMQConfig) (*stomp.Conn, error) {
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(cfg.HeartBeat, cfg.HeartBeat),
	}
	if cfg.Username != "" {
		opts = append(opts, stomp.ConnOpt.Login(cfg.Username, cfg.Password))
	}
	return stomp.Dial("tcp", cfg.BrokerAddr, opts...)
}

// destinationFor normalizes a queue name to a STOMP destination
func destinationFor(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/queue/" + name
}

// Publisher returns the client's publisher
func (c *Client) Publisher() queue.Publisher {
	return c.publisher
}

// CreateConsumer dials a dedicated connection and subscribes to the
// configured queue with per-message acknowledgement
func (c *Client) CreateConsumer(ctx context.Context, name, queueName string) (*Consumer, error) {
	if queueName == "" {
		queueName = c.config.QueueName
	}
	if queueName == "" {
		return nil, fmt.Errorf("activemq queue name is required")
	}

	consumer := &Consumer{
		config:      c.config,
		name:        name,
		destination: destinationFor(queueName),
	}

	c.mu.Lock()
	c.consumers[name] = consumer
	c.mu.Unlock()

	return consumer, nil
}

// GetConsumer returns a registered consumer by name
func (c *Client) GetConsumer(name string) (*Consumer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	consumer, ok := c.consumers[name]
	return consumer, ok
}

// HealthCheck probes the broker with a fresh STOMP handshake
func (c *Client) HealthCheck(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		conn, err := dial(c.config)
		if err != nil {
			done <- err
			return
		}
		done <- conn.Disconnect()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("activemq health check failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects all consumers and the control connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, consumer := range c.consumers {
		if err := consumer.Close(); err != nil {
			slog.Error("Failed to close ActiveMQ consumer", "consumer", name, "error", err)
		}
	}

	if c.conn != nil {
		return c.conn.Disconnect()
	}
	return nil
}

// Publisher publishes messages over the client's control connection
type Publisher struct {
	conn *stomp.Conn
	mu   sync.Mutex
}

// Publish sends a persistent message to the destination
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.send(subject, data,
		stomp.SendOpt.Header("persistent", "true"),
	)
}

// PublishWithGroup sends a message tagged with a broker message group
func (p *Publisher) PublishWithGroup(ctx context.Context, subject string, data []byte, messageGroup string) error {
	return p.send(subject, data,
		stomp.SendOpt.Header("persistent", "true"),
		stomp.SendOpt.Header(groupHeader, messageGroup),
	)
}

// PublishWithDeduplication sends a message with a duplicate-detection ID
// (honored by Artemis brokers)
func (p *Publisher) PublishWithDeduplication(ctx context.Context, subject string, data []byte, deduplicationID string) error {
	return p.send(subject, data,
		stomp.SendOpt.Header("persistent", "true"),
		stomp.SendOpt.Header("_AMQ_DUPL_ID", deduplicationID),
	)
}

func (p *Publisher) send(subject string, data []byte, opts ...func(*frame.Frame) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.conn.Send(destinationFor(subject), "application/json", data, opts...)
	if err != nil {
		metrics.QueuePublishErrors.WithLabelValues("activemq").Inc()
		return fmt.Errorf("failed to send STOMP message: %w", err)
	}
	metrics.QueueMessagesPublished.WithLabelValues("activemq").Inc()
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	// The client owns the underlying connection
	return nil
}

// Consumer consumes messages from an ActiveMQ queue over its own connection
type Consumer struct {
	config      *queue.ActiveMQConfig
	name        string
	destination string

	mu   sync.Mutex
	conn *stomp.Conn
	sub  *stomp.Subscription
}

// Consume subscribes and delivers messages to the handler until the context
// is cancelled. Lost connections are redialed with a fixed delay.
func (c *Consumer) Consume(ctx context.Context, handler func(queue.Message) error) error {
	slog.Info("Starting ActiveMQ consumer", "consumer", c.name, "destination", c.destination)

	for {
		if err := c.subscribe(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("ActiveMQ subscribe failed, retrying",
				"consumer", c.name, "destination", c.destination, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
			continue
		}

		err := c.receive(ctx, handler)
		c.teardown()
		if ctx.Err() != nil {
			slog.Info("Consumer context cancelled, stopping", "consumer", c.name)
			return ctx.Err()
		}
		if err != nil {
			slog.Warn("ActiveMQ subscription lost, reconnecting", "consumer", c.name, "error", err)
		}
	}
}

// subscribe dials the broker and opens a client-individual subscription
func (c *Consumer) subscribe() error {
	conn, err := dial(c.config)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(c.destination, stomp.AckClientIndividual,
		stomp.SubscribeOpt.Header("activemq.prefetchSize", strconv.Itoa(c.config.Prefetch)),
	)
	if err != nil {
		conn.Disconnect()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// receive pumps the subscription channel into the handler
func (c *Consumer) receive(ctx context.Context, handler func(queue.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.sub.C:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			if msg.Err != nil {
				return msg.Err
			}

			metrics.QueueMessagesConsumed.WithLabelValues("activemq").Inc()

			wrapped := &AMQMessage{
				msg:         msg,
				conn:        c.conn,
				destination: c.destination,
			}

			if err := handler(wrapped); err != nil {
				slog.Error("Message handler error",
					"error", err, "consumer", c.name, "destination", c.destination)
				// The handler should call Nak() on the message if it fails
			}
		}
	}
}

// teardown unsubscribes and disconnects the current connection
func (c *Consumer) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil && c.sub.Active() {
		c.sub.Unsubscribe()
	}
	c.sub = nil
	if c.conn != nil {
		c.conn.Disconnect()
	}
	c.conn = nil
}

// Close tears down the consumer's connection
func (c *Consumer) Close() error {
	c.teardown()
	slog.Info("Consumer closed", "consumer", c.name)
	return nil
}

// AMQMessage wraps a STOMP message delivery
type AMQMessage struct {
	msg         *stomp.Message
	conn        *stomp.Conn
	destination string
}

// ID returns the broker-assigned message ID
func (m *AMQMessage) ID() string {
	return m.msg.Header.Get("message-id")
}

// Data returns the message payload
func (m *AMQMessage) Data() []byte {
	return m.msg.Body
}

// Subject returns the destination the message arrived on
func (m *AMQMessage) Subject() string {
	if m.msg.Destination != "" {
		return m.msg.Destination
	}
	return m.destination
}

// MessageGroup returns the broker message group header
func (m *AMQMessage) MessageGroup() string {
	return m.msg.Header.Get(groupHeader)
}

// Ack acknowledges successful processing
func (m *AMQMessage) Ack() error {
	return m.conn.Ack(m.msg)
}

// Nak signals processing failure; the broker redelivers per its policy
func (m *AMQMessage) Nak() error {
	return m.conn.Nack(m.msg)
}

// NakWithDelay signals failure. STOMP has no per-message redelivery delay,
// so the broker's redelivery policy governs timing.
func (m *AMQMessage) NakWithDelay(delay time.Duration) error {
	return m.conn.Nack(m.msg)
}

// InProgress is a no-op; ActiveMQ has no processing deadline to extend
func (m *AMQMessage) InProgress() error {
	return nil
}

// Metadata returns all STOMP frame headers
func (m *AMQMessage) Metadata() map[string]string {
	result := make(map[string]string)
	if m.msg.Header == nil {
		return result
	}
	for i := 0; i < m.msg.Header.Len(); i++ {
		k, v := m.msg.Header.GetAt(i)
		result[k] = v
	}
	return result
}
