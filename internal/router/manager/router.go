package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.relaypoint.io/internal/common/metrics"
	"go.relaypoint.io/internal/queue"
	"go.relaypoint.io/internal/router/configsource"
	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/warning"
)

const fetchTimeout = 30 * time.Second

// ConfigFetcher fetches the router configuration from wherever it lives
// (config service, static file, test fixture).
type ConfigFetcher interface {
	Fetch(ctx context.Context) (*configsource.RouterConfig, error)
}

// ConsumerFactory builds one broker consumer for a queue reference. Called
// once per configured connection.
type ConsumerFactory func(ref configsource.QueueRef) (queue.Consumer, error)

// consumerEntry tracks the consumers serving one queue
type consumerEntry struct {
	ref         configsource.QueueRef
	connections int
	consumers   []*Consumer
}

// Router composes the manager, the config source, and the broker consumers
// into the running message router. It owns the periodic config reload and
// the consumer stall monitor.
type Router struct {
	manager *RouterManager
	fetcher ConfigFetcher
	factory ConsumerFactory

	syncConfig   *ConfigSyncConfig
	healthConfig *ConsumerHealthConfig
	standby      StandbyChecker
	queueMetrics routermetrics.QueueMetricsService

	consumers   map[string]*consumerEntry // keyed by QueueRef.Key()
	consumersMu sync.Mutex

	// reloadMu serializes configuration reloads. A slow fetch must not let
	// two reloads interleave their pool and consumer changes.
	reloadMu sync.Mutex

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRouter creates a router. Call Start to fetch the initial configuration
// and begin consuming.
func NewRouter(m *RouterManager, fetcher ConfigFetcher, factory ConsumerFactory) *Router {
	return &Router{
		manager:      m,
		fetcher:      fetcher,
		factory:      factory,
		syncConfig:   DefaultConfigSyncConfig(),
		healthConfig: DefaultConsumerHealthConfig(),
		consumers:    make(map[string]*consumerEntry),
	}
}

// WithConfigSync configures the periodic configuration reload
func (r *Router) WithConfigSync(cfg *ConfigSyncConfig) *Router {
	if cfg == nil {
		cfg = DefaultConfigSyncConfig()
	}
	r.syncConfig = cfg
	return r
}

// WithConsumerHealth configures the consumer stall monitor
func (r *Router) WithConsumerHealth(cfg *ConsumerHealthConfig) *Router {
	if cfg == nil {
		cfg = DefaultConsumerHealthConfig()
	}
	r.healthConfig = cfg
	return r
}

// WithStandbyChecker gates config sync on holding the leader role
func (r *Router) WithStandbyChecker(sc StandbyChecker) *Router {
	r.standby = sc
	return r
}

// WithQueueMetrics sets the per-queue metrics sink handed to every consumer
func (r *Router) WithQueueMetrics(qm routermetrics.QueueMetricsService) *Router {
	r.queueMetrics = qm
	return r
}

// Manager returns the underlying router manager
func (r *Router) Manager() *RouterManager {
	return r.manager
}

// Start performs the initial configuration sync (with retries), starts the
// consumers it names, and launches the reload and health loops. Blocks until
// the initial sync succeeds or its retry budget runs out.
func (r *Router) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	ctx, cancel := context.WithCancel(context.Background())
	r.ctx, r.cancel = ctx, cancel
	r.mu.Unlock()

	r.manager.Start()

	if err := r.initialSyncWithRetry(ctx); err != nil {
		r.teardown()
		return err
	}

	if r.syncConfig.Enabled {
		r.wg.Add(1)
		go r.runConfigReload(ctx)
		slog.Info("Config reload started", "interval", r.syncConfig.Interval)
	}
	if r.healthConfig.Enabled {
		r.wg.Add(1)
		go r.runConsumerHealthMonitor(ctx)
		slog.Info("Consumer health monitor started",
			"checkInterval", r.healthConfig.CheckInterval,
			"stallThreshold", r.healthConfig.StallThreshold)
	}

	slog.Info("Message router started",
		"pools", r.manager.PoolCount(),
		"queues", r.QueueCount())
	return nil
}

// Stop halts the router promptly: loops, then consumers, then pools. Queued
// work gets each pool's bounded shutdown grace, not a full drain. Used for
// standby transitions; use Shutdown for process exit.
func (r *Router) Stop() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}
	r.teardown()
	slog.Info("Message router stopped")
}

func (r *Router) teardown() {
	r.mu.Lock()
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.stopAllConsumers()
	r.manager.Stop()
}

// Shutdown stops the router gracefully: new messages are rejected while
// in-flight work drains, then consumers and pools terminate. Waits up to
// timeout for the drain.
func (r *Router) Shutdown(timeout time.Duration) {
	r.mu.Lock()
	started := r.started
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()
	if !started {
		return
	}

	slog.Info("Router shutdown initiated", "timeout", timeout)

	// Loops first, so nothing reconfigures pools mid-drain
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	// Reject new work. Consumers stay up through the drain so duplicate
	// redeliveries can still refresh receipt handles on in-flight messages.
	r.manager.StopAccepting()

	deadline := make(chan struct{})
	timer := time.AfterFunc(timeout, func() { close(deadline) })
	defer timer.Stop()

	if r.manager.WaitForDrain(deadline) {
		slog.Info("All pools drained")
	} else {
		slog.Warn("Shutdown deadline reached with work still queued",
			"inFlight", r.manager.InFlightCount())
	}

	r.stopAllConsumers()
	r.manager.Stop()
	slog.Info("Message router stopped")
}

// Healthy returns nil once the initial configuration sync has completed
func (r *Router) Healthy() error {
	if !r.manager.IsInitialized() {
		return errors.New("initial config sync not complete")
	}
	return nil
}

// IsInitialized reports whether the initial config sync has completed
func (r *Router) IsInitialized() bool {
	return r.manager.IsInitialized()
}

// QueueCount returns the number of queues with running consumers
func (r *Router) QueueCount() int {
	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()
	return len(r.consumers)
}

// ConsumerCount returns the total number of broker connections
func (r *Router) ConsumerCount() int {
	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()
	total := 0
	for _, entry := range r.consumers {
		total += len(entry.consumers)
	}
	return total
}

// QueueIDs returns the active queue keys, sorted
func (r *Router) QueueIDs() []string {
	r.consumersMu.Lock()
	ids := make([]string, 0, len(r.consumers))
	for key := range r.consumers {
		ids = append(ids, key)
	}
	r.consumersMu.Unlock()
	sort.Strings(ids)
	return ids
}

// initialSyncWithRetry fetches and applies the first configuration. On
// standby it waits for leadership without consuming retry attempts.
func (r *Router) initialSyncWithRetry(ctx context.Context) error {
	maxAttempts := r.syncConfig.InitialRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempt := 0
	for {
		if r.standby != nil && !r.standby.IsPrimary() {
			slog.Info("On standby, waiting for leadership before initial config sync")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.syncConfig.InitialRetryDelay):
			}
			continue
		}

		attempt++
		err := r.reload(ctx)
		if err == nil {
			metrics.RouterConfigSyncs.WithLabelValues("success").Inc()
			r.manager.MarkInitialized()
			slog.Info("Initial config sync complete",
				"attempt", attempt,
				"pools", r.manager.PoolCount(),
				"queues", r.QueueCount())
			return nil
		}
		metrics.RouterConfigSyncs.WithLabelValues("failure").Inc()

		if attempt >= maxAttempts {
			if r.syncConfig.FailOnInitialSyncError {
				return fmt.Errorf("initial config sync failed after %d attempts: %w", attempt, err)
			}
			slog.Error("Initial config sync failed, starting without configuration",
				"attempts", attempt,
				"error", err)
			return nil
		}

		slog.Warn("Initial config sync failed, retrying",
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.syncConfig.InitialRetryDelay):
		}
	}
}

func (r *Router) runConfigReload(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.syncConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.standby != nil && !r.standby.IsPrimary() {
				slog.Debug("Skipping config reload on standby")
				metrics.RouterConfigSyncs.WithLabelValues("skipped").Inc()
				continue
			}
			if err := r.reload(ctx); err != nil {
				metrics.RouterConfigSyncs.WithLabelValues("failure").Inc()
				slog.Error("Config reload failed, keeping previous configuration", "error", err)
			} else {
				metrics.RouterConfigSyncs.WithLabelValues("success").Inc()
			}
		}
	}
}

// reload fetches the configuration and applies it to pools and consumers.
// A failed fetch or a rejected pool set leaves everything as it was.
func (r *Router) reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	cfg, err := r.fetcher.Fetch(fetchCtx)
	if err != nil {
		return fmt.Errorf("fetch router config: %w", err)
	}

	if _, err := r.manager.SyncPools(cfg.ProcessingPools); err != nil {
		// Queue changes from the same rejected config are skipped too, so
		// pools and consumers never reflect different configurations.
		return fmt.Errorf("apply pool config: %w", err)
	}
	r.syncConsumers(cfg)
	return nil
}

// syncConsumers reconciles running consumers against the fetched queue set.
// Unchanged queues keep their consumers; only a changed connection count
// forces a restart.
func (r *Router) syncConsumers(cfg *configsource.RouterConfig) {
	connections := cfg.Connections
	if connections <= 0 {
		connections = 1
	}

	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()

	current := make([]configsource.QueueRef, 0, len(r.consumers))
	for _, entry := range r.consumers {
		current = append(current, entry.ref)
	}
	diff := configsource.DiffQueues(current, cfg.Queues)

	for _, ref := range diff.Removed {
		r.stopQueueLocked(ref.Key())
	}
	for _, ref := range diff.Added {
		r.startQueueLocked(ref, connections)
	}
	for _, ref := range diff.Unchanged {
		entry := r.consumers[ref.Key()]
		if entry != nil && entry.connections != connections {
			slog.Info("Connection count changed, restarting queue consumers",
				"queue", ref.Key(),
				"from", entry.connections,
				"to", connections)
			r.stopQueueLocked(ref.Key())
			r.startQueueLocked(ref, connections)
		}
	}
}

func (r *Router) startQueueLocked(ref configsource.QueueRef, connections int) {
	key := ref.Key()
	entry := &consumerEntry{ref: ref, connections: connections}

	for i := 0; i < connections; i++ {
		qc, err := r.factory(ref)
		if err != nil {
			slog.Error("Failed to create queue consumer",
				"queue", key,
				"connection", i,
				"error", err)
			r.manager.addWarning(warning.KindConfiguration, warning.SeverityError,
				fmt.Sprintf("cannot create consumer for queue %s: %v", key, err))
			continue
		}
		c := NewConsumer(r.manager, qc, key)
		if r.queueMetrics != nil {
			c = c.WithQueueMetrics(r.queueMetrics)
		}
		c.Start()
		entry.consumers = append(entry.consumers, c)
	}

	// Not registering a fully failed queue means the next reload sees it as
	// added and tries again.
	if len(entry.consumers) == 0 {
		slog.Error("No consumers started for queue", "queue", key)
		return
	}
	r.consumers[key] = entry
	slog.Info("Queue consumers started", "queue", key, "connections", len(entry.consumers))
}

func (r *Router) stopQueueLocked(key string) {
	entry := r.consumers[key]
	if entry == nil {
		return
	}
	delete(r.consumers, key)
	for _, c := range entry.consumers {
		c.Stop()
	}
	slog.Info("Queue consumers stopped", "queue", key)
}

func (r *Router) stopAllConsumers() {
	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()
	for key, entry := range r.consumers {
		for _, c := range entry.consumers {
			c.Stop()
		}
		delete(r.consumers, key)
	}
}

func (r *Router) runConsumerHealthMonitor(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.healthConfig.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkConsumerHealth()
		}
	}
}

// checkConsumerHealth flags consumers with no delivery activity past the
// stall threshold and restarts them, up to the restart budget. Activity
// resets the budget.
func (r *Router) checkConsumerHealth() {
	now := time.Now().UnixMilli()
	threshold := r.healthConfig.StallThreshold.Milliseconds()

	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()

	for key, entry := range r.consumers {
		for i, c := range entry.consumers {
			idle := now - c.GetLastActivity()
			if idle < threshold {
				c.markStalled(false)
				if c.GetRestartCount() > 0 {
					c.resetRestartCount()
				}
				continue
			}
			if c.IsStalled() {
				// Already flagged and out of restart budget
				continue
			}

			c.markStalled(true)
			metrics.ConsumerStallEvents.Inc()
			slog.Warn("Consumer stalled",
				"queue", key,
				"idle", time.Duration(idle)*time.Millisecond)

			if c.GetRestartCount() >= r.healthConfig.MaxRestartAttempts {
				slog.Error("Consumer exceeded restart attempts, giving up",
					"queue", key,
					"attempts", c.GetRestartCount())
				r.manager.addWarning(warning.KindProcessing, warning.SeverityCritical,
					fmt.Sprintf("consumer for queue %s stalled and exceeded %d restart attempts",
						key, r.healthConfig.MaxRestartAttempts))
				continue
			}
			r.restartConsumerLocked(key, entry, i)
		}
	}
}

func (r *Router) restartConsumerLocked(key string, entry *consumerEntry, i int) {
	old := entry.consumers[i]
	attempts := old.incrementRestartCount()
	metrics.ConsumerRestarts.Inc()
	slog.Warn("Restarting stalled consumer", "queue", key, "attempt", attempts)

	old.Stop()
	time.Sleep(r.healthConfig.RestartDelay)

	qc, err := r.factory(entry.ref)
	if err != nil {
		slog.Error("Failed to recreate consumer", "queue", key, "error", err)
		return
	}

	fresh := NewConsumer(r.manager, qc, key)
	if r.queueMetrics != nil {
		fresh = fresh.WithQueueMetrics(r.queueMetrics)
	}
	// Carry the budget over so a consumer that never recovers gives up
	fresh.restartCount = attempts
	fresh.Start()
	entry.consumers[i] = fresh
}
