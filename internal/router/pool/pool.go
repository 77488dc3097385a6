// Package pool provides the message processing pool implementation
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"go.relaypoint.io/internal/common/metrics"
	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/warning"
)

// MessagePointer represents a message to be processed
// This struct is used internally within the router/pool and contains all
// the information needed for mediation.
type MessagePointer struct {
	ID              string // Application message ID
	PoolCode        string // Target processing pool
	BrokerMessageID string // Broker-assigned message ID for redelivery detection
	BatchID         string
	MessageGroupID  string
	MediationTarget string            // URL to POST to for mediation
	MediationType   string            // Type of mediation (HTTP)
	AuthToken       string            // Token for Bearer authentication
	Payload         []byte            // Original payload (for non-pointer mode)
	Headers         map[string]string // Additional headers
	TimeoutSeconds  int
	AckFunc         func() error
	NakFunc         func() error
	NakDelayFunc    func(time.Duration) error
	InProgressFunc  func() error

	// Receipt handle callbacks, set for brokers whose delivery handle is
	// replaced on redelivery (SQS). The router uses them to keep the stored
	// handle valid when a duplicate delivery arrives mid-processing.
	UpdateReceiptHandleFunc func(string)
	GetReceiptHandleFunc    func() string
}

// MediationResult represents the result of mediation
type MediationResult string

const (
	MediationResultSuccess         MediationResult = "SUCCESS"
	MediationResultErrorConfig     MediationResult = "ERROR_CONFIG"     // endpoint rejects the message - ack, don't retry
	MediationResultErrorProcess    MediationResult = "ERROR_PROCESS"    // processing failed - retry
	MediationResultErrorServer     MediationResult = "ERROR_SERVER"     // endpoint unavailable or overloaded - retry
	MediationResultErrorConnection MediationResult = "ERROR_CONNECTION" // endpoint unreachable - retry
)

// MediationOutcome represents the outcome of mediation including optional delay
type MediationOutcome struct {
	Result      MediationResult
	Delay       *time.Duration
	Error       error
	StatusCode  int
	ResponseAck *bool
}

// HasCustomDelay returns true if a custom delay is set
func (o *MediationOutcome) HasCustomDelay() bool {
	return o.Delay != nil
}

// GetEffectiveDelaySeconds returns the delay in seconds
func (o *MediationOutcome) GetEffectiveDelaySeconds() int {
	if o.Delay == nil {
		return 0
	}
	return int(o.Delay.Seconds())
}

// Mediator processes messages
type Mediator interface {
	Process(msg *MessagePointer) *MediationOutcome
}

// MessageCallback handles ack/nack operations
type MessageCallback interface {
	Ack(msg *MessagePointer)
	Nack(msg *MessagePointer)
	SetVisibilityDelay(msg *MessagePointer, seconds int)
	SetFastFailVisibility(msg *MessagePointer)
	ResetVisibilityToDefault(msg *MessagePointer)
}

// Pool represents a message processing pool
type Pool interface {
	Start()
	Drain()
	Submit(msg *MessagePointer) bool
	GetPoolCode() string
	GetConcurrency() int
	GetRateLimitPerMinute() *int
	IsFullyDrained() bool
	Shutdown()
	GetQueueSize() int
	GetActiveWorkers() int
	GetQueueCapacity() int
	IsRateLimited() bool
}

// ProcessPool implements Pool with per-message-group FIFO ordering.
// Concurrency and rate limit are fixed at construction; configuration
// changes are applied by creating a replacement pool and draining this one.
type ProcessPool struct {
	poolCode      string
	concurrency   int
	queueCapacity int
	semaphore     chan struct{} // Buffered channel as semaphore

	running            atomic.Bool
	rateLimiter        *rate.Limiter
	rateLimitPerMinute *int

	mediator        Mediator
	messageCallback MessageCallback

	poolMetrics routermetrics.PoolMetricsService
	warnings    warning.Service

	// Per-message-group queues for FIFO ordering. groupsMu guards the map
	// so a submit and an idle-group retirement cannot interleave: either
	// the enqueue lands before the emptiness check, or the submit finds
	// the entry gone and creates a fresh queue.
	groupsMu    sync.Mutex
	groupQueues map[string]chan *MessagePointer
	idleTimeout time.Duration

	// Total messages across all group queues
	totalQueuedMessages atomic.Int32

	// Batch+Group FIFO tracking
	failedBatchGroups      sync.Map // map[string]bool - "batchId|groupId" -> failed
	batchGroupMessageCount sync.Map // map[string]*atomic.Int32

	// Shutdown coordination
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	shutdownMu sync.Mutex

	// Gauge update scheduling (500ms refresh)
	gaugeCtx    context.Context
	gaugeCancel context.CancelFunc
	gaugeWg     sync.WaitGroup
}

const (
	// DefaultGroup for messages without a messageGroupId
	DefaultGroup = "__DEFAULT__"

	// IdleTimeoutMinutes before cleaning up inactive message groups
	IdleTimeoutMinutes = 5

	// MinQueueCapacity is the floor for pool queue capacity
	MinQueueCapacity = 500
)

// GroupQueueCapacity returns the per-group queue capacity for a pool with the
// given concurrency: ten messages of headroom per worker, never below
// MinQueueCapacity.
func GroupQueueCapacity(concurrency int) int {
	capacity := concurrency * 10
	if capacity < MinQueueCapacity {
		return MinQueueCapacity
	}
	return capacity
}

// NewProcessPool creates a new process pool
func NewProcessPool(
	poolCode string,
	concurrency int,
	queueCapacity int,
	rateLimitPerMinute *int,
	mediator Mediator,
	messageCallback MessageCallback,
) *ProcessPool {
	ctx, cancel := context.WithCancel(context.Background())
	gaugeCtx, gaugeCancel := context.WithCancel(context.Background())

	pool := &ProcessPool{
		poolCode:           poolCode,
		concurrency:        concurrency,
		queueCapacity:      queueCapacity,
		semaphore:          make(chan struct{}, concurrency),
		mediator:           mediator,
		messageCallback:    messageCallback,
		rateLimitPerMinute: rateLimitPerMinute,
		groupQueues:        make(map[string]chan *MessagePointer),
		idleTimeout:        time.Duration(IdleTimeoutMinutes) * time.Minute,
		ctx:                ctx,
		cancel:             cancel,
		gaugeCtx:           gaugeCtx,
		gaugeCancel:        gaugeCancel,
	}

	// Initialize semaphore with permits
	for i := 0; i < concurrency; i++ {
		pool.semaphore <- struct{}{}
	}

	// Create rate limiter if configured
	if rateLimitPerMinute != nil && *rateLimitPerMinute > 0 {
		// rate.Limiter uses per-second rate
		perSecond := float64(*rateLimitPerMinute) / 60.0
		pool.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), *rateLimitPerMinute)
		slog.Info("Created pool-level rate limiter",
			"pool", poolCode,
			"rateLimit", *rateLimitPerMinute)
	}

	return pool
}

// WithMetrics attaches a pool metrics service and publishes the pool's
// capacity settings to it.
func (p *ProcessPool) WithMetrics(m routermetrics.PoolMetricsService) *ProcessPool {
	p.poolMetrics = m
	if m != nil {
		m.InitializePoolCapacity(p.poolCode, p.concurrency, p.queueCapacity)
	}
	return p
}

// WithWarnings attaches a warning service for operational alerts
func (p *ProcessPool) WithWarnings(w warning.Service) *ProcessPool {
	p.warnings = w
	return p
}

// Start begins processing
func (p *ProcessPool) Start() {
	if p.running.CompareAndSwap(false, true) {
		// Start scheduled gauge updates
		p.gaugeWg.Add(1)
		go p.runGaugeUpdater()

		slog.Info("Starting process pool with per-group goroutines",
			"pool", p.poolCode,
			"concurrency", p.concurrency)
	}
}

// Drain stops accepting new work but finishes processing
func (p *ProcessPool) Drain() {
	slog.Info("Draining process pool",
		"pool", p.poolCode,
		"queued", p.totalQueuedMessages.Load())
	p.running.Store(false)
}

// Submit submits a message for processing
func (p *ProcessPool) Submit(msg *MessagePointer) bool {
	if !p.running.Load() {
		return false
	}

	// Determine message group
	groupID := msg.MessageGroupID
	if groupID == "" {
		groupID = DefaultGroup
	}

	// Track for batch+group FIFO ordering
	batchID := msg.BatchID
	var batchGroupKey string
	if batchID != "" {
		batchGroupKey = batchID + "|" + groupID
		counter, _ := p.batchGroupMessageCount.LoadOrStore(batchGroupKey, &atomic.Int32{})
		counter.(*atomic.Int32).Add(1)
	}

	// Find or create the group queue and enqueue under groupsMu. Holding
	// the lock across both steps keeps the group worker from retiring the
	// queue between lookup and enqueue.
	p.groupsMu.Lock()

	queue, exists := p.groupQueues[groupID]
	if !exists {
		queue = make(chan *MessagePointer, p.queueCapacity)
		p.groupQueues[groupID] = queue
		p.startGroupGoroutine(groupID, queue)
		slog.Debug("Created new message group with dedicated goroutine",
			"pool", p.poolCode,
			"group", groupID)
	}

	// Capacity is per group: the group channel buffer is the bound
	select {
	case queue <- msg:
		p.totalQueuedMessages.Add(1)
		p.groupsMu.Unlock()
		if p.poolMetrics != nil {
			p.poolMetrics.RecordMessageSubmitted(p.poolCode)
		}
		return true
	default:
		p.groupsMu.Unlock()
		slog.Debug("Group queue full, rejecting message",
			"pool", p.poolCode,
			"group", groupID,
			"capacity", p.queueCapacity,
			"messageId", msg.ID)
		if batchGroupKey != "" {
			p.decrementAndCleanupBatchGroup(batchGroupKey)
		}
		return false
	}
}

// startGroupGoroutine starts a dedicated goroutine for a message group.
// Caller must hold groupsMu.
func (p *ProcessPool) startGroupGoroutine(groupID string, queue chan *MessagePointer) {
	p.wg.Add(1)
	go p.processMessageGroup(groupID, queue)
}

// processMessageGroup processes messages for a single group
func (p *ProcessPool) processMessageGroup(groupID string, queue chan *MessagePointer) {
	defer func() {
		// Safety net: if this worker exits by any path other than idle
		// retirement, unregister the queue so a later submit starts a
		// fresh worker instead of enqueueing to a dead channel.
		p.groupsMu.Lock()
		if q, ok := p.groupQueues[groupID]; ok && q == queue {
			delete(p.groupQueues, groupID)
		}
		p.groupsMu.Unlock()
		p.wg.Done()
	}()

	slog.Debug("Starting message group processor",
		"pool", p.poolCode,
		"group", groupID)

	idleTimeout := p.idleTimeout
	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			slog.Debug("Message group processor shutting down",
				"pool", p.poolCode,
				"group", groupID)
			return

		case msg := <-queue:
			if msg == nil {
				continue
			}

			// Reset idle timer
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idleTimeout)

			p.totalQueuedMessages.Add(-1)
			p.processMessage(groupID, msg)

		case <-timer.C:
			// Idle timeout - retire the group if no work arrived. Check
			// and removal happen under groupsMu: a concurrent submit
			// either lands before the check (queue non-empty, keep
			// running) or finds the entry gone and creates a new queue.
			p.groupsMu.Lock()
			if len(queue) == 0 {
				delete(p.groupQueues, groupID)
				p.groupsMu.Unlock()
				slog.Debug("Message group idle, cleaning up",
					"pool", p.poolCode,
					"group", groupID,
					"idleTimeout", idleTimeout)
				return
			}
			p.groupsMu.Unlock()
			timer.Reset(idleTimeout)
		}
	}
}

// processMessage processes a single message
func (p *ProcessPool) processMessage(groupID string, msg *MessagePointer) {
	var semaphoreAcquired bool

	defer func() {
		// CRITICAL: Always release semaphore
		if semaphoreAcquired {
			p.semaphore <- struct{}{}
		}

		// Handle panic
		if r := recover(); r != nil {
			slog.Error("Panic during message processing",
				"pool", p.poolCode,
				"messageId", msg.ID,
				"panic", r)
			p.addWarning(warning.KindProcessing, warning.SeverityWarn,
				fmt.Sprintf("panic while processing message %s: %v", msg.ID, r))
			p.nackSafely(msg)
		}
	}()

	// Check if batch+group has already failed (FIFO enforcement)
	messageGroupID := msg.MessageGroupID
	if messageGroupID == "" {
		messageGroupID = DefaultGroup
	}
	var batchGroupKey string
	if msg.BatchID != "" {
		batchGroupKey = msg.BatchID + "|" + messageGroupID
	}

	if batchGroupKey != "" {
		if _, failed := p.failedBatchGroups.Load(batchGroupKey); failed {
			slog.Warn("Message from failed batch+group, nacking to preserve FIFO ordering",
				"pool", p.poolCode,
				"messageId", msg.ID,
				"batchGroup", batchGroupKey)
			p.messageCallback.SetFastFailVisibility(msg)
			p.nackSafely(msg)
			p.decrementAndCleanupBatchGroup(batchGroupKey)
			return
		}
	}

	// Check rate limiting BEFORE acquiring semaphore
	if p.shouldRateLimit() {
		metrics.PoolRateLimitRejections.WithLabelValues(p.poolCode).Inc()
		metrics.PoolMessagesProcessed.WithLabelValues(p.poolCode, "rate_limited").Inc()
		if p.poolMetrics != nil {
			p.poolMetrics.RecordRateLimitExceeded(p.poolCode)
		}
		slog.Warn("Rate limit exceeded, nacking message",
			"pool", p.poolCode,
			"messageId", msg.ID)
		p.messageCallback.SetFastFailVisibility(msg)
		p.nackSafely(msg)
		if batchGroupKey != "" {
			p.decrementAndCleanupBatchGroup(batchGroupKey)
		}
		return
	}

	// Acquire semaphore permit
	select {
	case <-p.semaphore:
		semaphoreAcquired = true
	case <-p.ctx.Done():
		p.nackSafely(msg)
		return
	}

	// Process message through mediator
	slog.Info("Processing message via mediator",
		"pool", p.poolCode,
		"messageId", msg.ID,
		"target", msg.MediationTarget)

	startTime := time.Now()
	outcome := p.mediator.Process(msg)
	duration := time.Since(startTime)

	// Record metrics
	metrics.PoolProcessingDuration.WithLabelValues(p.poolCode).Observe(duration.Seconds())

	// Handle mediation outcome
	p.handleMediationOutcome(msg, outcome, batchGroupKey, duration)
}

// shouldRateLimit checks if the message should be rate limited
func (p *ProcessPool) shouldRateLimit() bool {
	if p.rateLimiter == nil {
		return false
	}

	// Non-blocking check
	return !p.rateLimiter.Allow()
}

// handleMediationOutcome handles the result of mediation
func (p *ProcessPool) handleMediationOutcome(msg *MessagePointer, outcome *MediationOutcome, batchGroupKey string, duration time.Duration) {
	if outcome == nil {
		// A nil outcome is a mediator bug. Treat it as a server error so
		// the message is retried rather than lost.
		slog.Error("Mediator returned nil outcome",
			"pool", p.poolCode,
			"messageId", msg.ID)
		p.addWarning(warning.KindMediatorNullResult, warning.SeverityCritical,
			fmt.Sprintf("mediator returned no outcome for message %s", msg.ID))
		outcome = &MediationOutcome{Result: MediationResultErrorServer}
	}

	slog.Info("Message processing completed",
		"pool", p.poolCode,
		"messageId", msg.ID,
		"result", string(outcome.Result),
		"duration", duration)

	switch outcome.Result {
	case MediationResultSuccess:
		metrics.PoolMessagesProcessed.WithLabelValues(p.poolCode, "success").Inc()
		p.recordSuccess(duration)
		slog.Info("Message processed successfully - ACKing",
			"pool", p.poolCode,
			"messageId", msg.ID)
		p.messageCallback.Ack(msg)
		if batchGroupKey != "" {
			p.decrementAndCleanupBatchGroup(batchGroupKey)
		}

	case MediationResultErrorConfig:
		// Configuration error - the endpoint rejected the message outright.
		// ACK to prevent infinite redelivery and flag for operator attention.
		metrics.PoolMessagesProcessed.WithLabelValues(p.poolCode, "failed").Inc()
		p.recordFailure(duration, string(outcome.Result))
		p.addWarning(warning.KindMediation, warning.SeverityCritical,
			fmt.Sprintf("endpoint %s rejected message %s with status %d", msg.MediationTarget, msg.ID, outcome.StatusCode))
		slog.Warn("Configuration error - ACKing to prevent retry",
			"pool", p.poolCode,
			"messageId", msg.ID,
			"statusCode", outcome.StatusCode)
		p.messageCallback.Ack(msg)
		if batchGroupKey != "" {
			p.decrementAndCleanupBatchGroup(batchGroupKey)
		}

	case MediationResultErrorProcess, MediationResultErrorServer:
		// Retryable failure - NACK, honoring any server-provided delay
		metrics.PoolMessagesProcessed.WithLabelValues(p.poolCode, "failed").Inc()
		p.recordFailure(duration, string(outcome.Result))
		if outcome.HasCustomDelay() {
			delaySeconds := outcome.GetEffectiveDelaySeconds()
			slog.Warn("Retryable failure with custom delay - NACKing",
				"pool", p.poolCode,
				"messageId", msg.ID,
				"result", string(outcome.Result),
				"delaySeconds", delaySeconds)
			p.messageCallback.SetVisibilityDelay(msg, delaySeconds)
		} else {
			slog.Warn("Retryable failure - NACKing for retry",
				"pool", p.poolCode,
				"messageId", msg.ID,
				"result", string(outcome.Result))
			p.messageCallback.ResetVisibilityToDefault(msg)
		}
		p.messageCallback.Nack(msg)

		// Mark batch+group as failed
		if batchGroupKey != "" {
			p.failedBatchGroups.Store(batchGroupKey, true)
			slog.Warn("Batch+group marked as failed",
				"pool", p.poolCode,
				"batchGroup", batchGroupKey)
			p.decrementAndCleanupBatchGroup(batchGroupKey)
		}

	case MediationResultErrorConnection:
		// Connection error - NACK for retry
		metrics.PoolMessagesProcessed.WithLabelValues(p.poolCode, "failed").Inc()
		p.recordFailure(duration, string(outcome.Result))
		slog.Warn("Connection error - NACKing for retry",
			"pool", p.poolCode,
			"messageId", msg.ID)
		p.messageCallback.ResetVisibilityToDefault(msg)
		p.messageCallback.Nack(msg)

		// Mark batch+group as failed
		if batchGroupKey != "" {
			p.failedBatchGroups.Store(batchGroupKey, true)
			p.decrementAndCleanupBatchGroup(batchGroupKey)
		}

	default:
		metrics.PoolMessagesProcessed.WithLabelValues(p.poolCode, "failed").Inc()
		p.recordFailure(duration, string(outcome.Result))
		slog.Warn("Unknown result - NACKing for retry",
			"pool", p.poolCode,
			"messageId", msg.ID,
			"result", string(outcome.Result))
		p.messageCallback.ResetVisibilityToDefault(msg)
		p.messageCallback.Nack(msg)
		if batchGroupKey != "" {
			p.failedBatchGroups.Store(batchGroupKey, true)
			p.decrementAndCleanupBatchGroup(batchGroupKey)
		}
	}
}

// nackSafely safely nacks a message
func (p *ProcessPool) nackSafely(msg *MessagePointer) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic during message nack",
				"pool", p.poolCode,
				"messageId", msg.ID,
				"panic", r)
		}
	}()
	p.messageCallback.Nack(msg)
}

// decrementAndCleanupBatchGroup decrements count and cleans up if zero
func (p *ProcessPool) decrementAndCleanupBatchGroup(batchGroupKey string) {
	if counterIface, ok := p.batchGroupMessageCount.Load(batchGroupKey); ok {
		counter := counterIface.(*atomic.Int32)
		remaining := counter.Add(-1)
		if remaining <= 0 {
			p.batchGroupMessageCount.Delete(batchGroupKey)
			p.failedBatchGroups.Delete(batchGroupKey)
			slog.Debug("Batch+group fully processed, cleaned up",
				"pool", p.poolCode,
				"batchGroup", batchGroupKey)
		}
	}
}

func (p *ProcessPool) recordSuccess(duration time.Duration) {
	if p.poolMetrics != nil {
		p.poolMetrics.RecordProcessingSuccess(p.poolCode, duration.Milliseconds())
	}
}

func (p *ProcessPool) recordFailure(duration time.Duration, resultName string) {
	if p.poolMetrics != nil {
		p.poolMetrics.RecordProcessingFailure(p.poolCode, duration.Milliseconds(), resultName)
	}
}

func (p *ProcessPool) addWarning(kind, severity, message string) {
	if p.warnings != nil {
		p.warnings.AddWarning(kind, severity, message, "pool:"+p.poolCode)
	}
}

// GetPoolCode returns the pool code
func (p *ProcessPool) GetPoolCode() string {
	return p.poolCode
}

// GetConcurrency returns the concurrency limit
func (p *ProcessPool) GetConcurrency() int {
	return p.concurrency
}

// GetRateLimitPerMinute returns the rate limit
func (p *ProcessPool) GetRateLimitPerMinute() *int {
	return p.rateLimitPerMinute
}

// IsFullyDrained returns true if the pool is fully drained
func (p *ProcessPool) IsFullyDrained() bool {
	return p.totalQueuedMessages.Load() == 0 && len(p.semaphore) == p.concurrency
}

// Shutdown shuts down the pool
func (p *ProcessPool) Shutdown() {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()

	p.running.Store(false)

	// Stop gauge updater first
	p.gaugeCancel()
	p.gaugeWg.Wait()

	p.cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Pool shutdown complete", "pool", p.poolCode)
	case <-time.After(10 * time.Second):
		slog.Warn("Pool shutdown timed out", "pool", p.poolCode)
	}
}

// GetQueueSize returns the total queued messages
func (p *ProcessPool) GetQueueSize() int {
	return int(p.totalQueuedMessages.Load())
}

// GetActiveWorkers returns the number of active workers
func (p *ProcessPool) GetActiveWorkers() int {
	return p.concurrency - len(p.semaphore)
}

// GetQueueCapacity returns the per-group queue capacity
func (p *ProcessPool) GetQueueCapacity() int {
	return p.queueCapacity
}

// IsRateLimited returns true if currently rate limited
func (p *ProcessPool) IsRateLimited() bool {
	if p.rateLimiter == nil {
		return false
	}
	return p.rateLimiter.Tokens() <= 0
}

// runGaugeUpdater runs the scheduled gauge update loop
func (p *ProcessPool) runGaugeUpdater() {
	defer p.gaugeWg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	// Initial update
	p.updateGauges()

	for {
		select {
		case <-p.gaugeCtx.Done():
			return
		case <-ticker.C:
			p.updateGauges()
		}
	}
}

// updateGauges updates all pool gauge metrics
func (p *ProcessPool) updateGauges() {
	activeWorkers := p.GetActiveWorkers()
	queueSize := p.GetQueueSize()
	availablePermits := p.concurrency - activeWorkers
	messageGroupCount := p.countMessageGroups()

	// Update Prometheus gauges
	metrics.PoolActiveWorkers.WithLabelValues(p.poolCode).Set(float64(activeWorkers))
	metrics.PoolQueueDepth.WithLabelValues(p.poolCode).Set(float64(queueSize))
	metrics.PoolAvailablePermits.WithLabelValues(p.poolCode).Set(float64(availablePermits))
	metrics.PoolMessageGroupCount.WithLabelValues(p.poolCode).Set(float64(messageGroupCount))

	if p.poolMetrics != nil {
		p.poolMetrics.UpdatePoolGauges(p.poolCode, activeWorkers, availablePermits, queueSize, messageGroupCount)
	}
}

// countMessageGroups returns the number of active message groups
func (p *ProcessPool) countMessageGroups() int {
	p.groupsMu.Lock()
	defer p.groupsMu.Unlock()
	return len(p.groupQueues)
}
