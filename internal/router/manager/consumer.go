package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.relaypoint.io/internal/queue"
	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/model"
	"go.relaypoint.io/internal/router/pool"
	"go.relaypoint.io/internal/router/warning"
)

// Consumer pulls messages from one broker connection, parses them into
// message pointers, and hands them to the manager for routing. One queue may
// have several Consumers when its configuration asks for multiple
// connections.
type Consumer struct {
	manager      *RouterManager
	consumer     queue.Consumer
	queueID      string
	queueMetrics routermetrics.QueueMetricsService

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lastActivity is the unix-milli timestamp of the last delivery,
	// used by the stall monitor.
	lastActivity atomic.Int64
	stalled      atomic.Bool

	restartMu    sync.Mutex
	restartCount int
}

// NewConsumer creates a consumer bound to one broker connection
func NewConsumer(m *RouterManager, qc queue.Consumer, queueID string) *Consumer {
	c := &Consumer{
		manager:  m,
		consumer: qc,
		queueID:  queueID,
	}
	c.lastActivity.Store(time.Now().UnixMilli())
	return c
}

// WithQueueMetrics sets the per-queue metrics sink
func (c *Consumer) WithQueueMetrics(qm routermetrics.QueueMetricsService) *Consumer {
	c.queueMetrics = qm
	return c
}

// Start begins consuming in a background goroutine
func (c *Consumer) Start() {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.consume()
	slog.Info("Consumer started", "queue", c.queueID)
}

// Stop cancels consumption and waits for the consume loop to exit
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if err := c.consumer.Close(); err != nil {
		slog.Warn("Failed to close queue consumer", "queue", c.queueID, "error", err)
	}
	slog.Info("Consumer stopped", "queue", c.queueID)
}

// QueueID returns the queue this consumer is bound to
func (c *Consumer) QueueID() string {
	return c.queueID
}

// GetLastActivity returns the unix-milli timestamp of the last delivery
func (c *Consumer) GetLastActivity() int64 {
	return c.lastActivity.Load()
}

// IsStalled reports whether the stall monitor has flagged this consumer
func (c *Consumer) IsStalled() bool {
	return c.stalled.Load()
}

func (c *Consumer) markStalled(stalled bool) {
	c.stalled.Store(stalled)
}

// GetRestartCount returns how many times this consumer has been restarted
func (c *Consumer) GetRestartCount() int {
	c.restartMu.Lock()
	defer c.restartMu.Unlock()
	return c.restartCount
}

func (c *Consumer) incrementRestartCount() int {
	c.restartMu.Lock()
	defer c.restartMu.Unlock()
	c.restartCount++
	return c.restartCount
}

func (c *Consumer) resetRestartCount() {
	c.restartMu.Lock()
	defer c.restartMu.Unlock()
	c.restartCount = 0
}

func (c *Consumer) updateActivity() {
	c.lastActivity.Store(time.Now().UnixMilli())
	c.stalled.Store(false)
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	err := c.consumer.Consume(c.ctx, func(msg queue.Message) error {
		c.updateActivity()
		if c.queueMetrics != nil {
			c.queueMetrics.RecordMessageReceived(c.queueID)
		}

		pointer, err := parseMessagePointer(msg)
		if err != nil {
			// Unparseable messages are nacked, not dropped: the payload may
			// be fine and the defect ours, so let redrive policy decide.
			slog.Error("Failed to parse message pointer",
				"queue", c.queueID,
				"brokerMessageId", msg.ID(),
				"error", err)
			c.manager.addWarning(warning.KindParseError, warning.SeverityError,
				fmt.Sprintf("unparseable message %s on queue %s: %v", msg.ID(), c.queueID, err))
			if nakErr := msg.Nak(); nakErr != nil {
				slog.Error("Failed to nack unparseable message",
					"queue", c.queueID,
					"brokerMessageId", msg.ID(),
					"error", nakErr)
			}
			c.recordProcessed(false)
			return nil
		}

		result := c.manager.Route(c.toPoolPointer(pointer, msg))
		if result == RouteRejected {
			slog.Warn("Message rejected by router",
				"messageId", pointer.ID,
				"pool", pointer.PoolCode,
				"queue", c.queueID)
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Consumer terminated with error", "queue", c.queueID, "error", err)
	}
}

func (c *Consumer) recordProcessed(success bool) {
	if c.queueMetrics != nil {
		c.queueMetrics.RecordMessageProcessed(c.queueID, success)
	}
}

// parseMessagePointer decodes the wire pointer and fills in the fields only
// the broker knows: its own message ID, the FIFO group attribute, and the
// poll batch the delivery arrived in.
func parseMessagePointer(msg queue.Message) (*model.MessagePointer, error) {
	var pointer model.MessagePointer
	if err := json.Unmarshal(msg.Data(), &pointer); err != nil {
		return nil, err
	}
	if pointer.ID == "" {
		return nil, errors.New("message pointer missing id")
	}
	if pointer.MediationType == "" {
		pointer.MediationType = model.MediationTypeHTTP
	}
	if pointer.MessageGroupID == "" {
		pointer.MessageGroupID = msg.MessageGroup()
	}
	if pointer.BatchID == "" {
		pointer.BatchID = msg.Metadata()["batchId"]
	}
	pointer.BrokerMessageID = msg.ID()
	return &pointer, nil
}

// toPoolPointer converts the wire pointer into the pool's runtime message,
// wiring the broker callbacks. Ack and nack are wrapped to record the
// queue's processed counters on the terminal outcome.
func (c *Consumer) toPoolPointer(pointer *model.MessagePointer, msg queue.Message) *pool.MessagePointer {
	mp := &pool.MessagePointer{
		ID:              pointer.ID,
		PoolCode:        pointer.PoolCode,
		BrokerMessageID: pointer.BrokerMessageID,
		BatchID:         pointer.BatchID,
		MessageGroupID:  pointer.MessageGroupID,
		MediationTarget: pointer.MediationTarget,
		MediationType:   string(pointer.MediationType),
		AuthToken:       pointer.AuthToken,
		TimeoutSeconds:  pointer.TimeoutSeconds,
		NakDelayFunc:    msg.NakWithDelay,
		InProgressFunc:  msg.InProgress,
	}
	mp.AckFunc = func() error {
		c.recordProcessed(true)
		return msg.Ack()
	}
	mp.NakFunc = func() error {
		c.recordProcessed(false)
		return msg.Nak()
	}

	if updatable, ok := msg.(queue.ReceiptHandleUpdatable); ok {
		mp.UpdateReceiptHandleFunc = updatable.UpdateReceiptHandle
		mp.GetReceiptHandleFunc = updatable.GetReceiptHandle
	}
	return mp
}
