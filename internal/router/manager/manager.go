// Package manager wires queue consumers, processing pools, and the mediator
// into the message router core.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.relaypoint.io/internal/common/metrics"
	"go.relaypoint.io/internal/router/configsource"
	"go.relaypoint.io/internal/router/health"
	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/pool"
	"go.relaypoint.io/internal/router/warning"
)

const (
	// DefaultPoolConcurrency is used when a pool definition omits concurrency
	DefaultPoolConcurrency = 20
)

// ErrPoolLimitExceeded is returned by SyncPools when a fetched configuration
// names more pools than the hard limit allows. The previous pool set stays
// active; the caller must not apply any other part of that configuration.
var ErrPoolLimitExceeded = errors.New("pool configuration exceeds hard limit")

// StandbyChecker reports whether this instance currently holds the leader
// role. Config sync pauses while on standby.
type StandbyChecker interface {
	// IsPrimary returns true if this instance is the active leader
	IsPrimary() bool
}

// PoolLimits bounds how many pools a single configuration may define.
// Crossing WarnThreshold raises a warning; crossing MaxPools rejects the
// configuration outright.
type PoolLimits struct {
	MaxPools      int
	WarnThreshold int
}

// DefaultPoolLimits returns the standard limits
func DefaultPoolLimits() PoolLimits {
	return PoolLimits{
		MaxPools:      2000,
		WarnThreshold: 1000,
	}
}

// ConfigSyncConfig holds configuration for periodic config reload
type ConfigSyncConfig struct {
	// Enabled controls whether periodic reload is active
	Enabled bool
	// Interval is how often to fetch and apply configuration
	Interval time.Duration
	// InitialRetryAttempts is how many times to retry the initial fetch
	InitialRetryAttempts int
	// InitialRetryDelay is the delay between initial retry attempts
	InitialRetryDelay time.Duration
	// FailOnInitialSyncError aborts startup when the initial fetch never succeeds
	FailOnInitialSyncError bool
}

// DefaultConfigSyncConfig returns sensible defaults
func DefaultConfigSyncConfig() *ConfigSyncConfig {
	return &ConfigSyncConfig{
		Enabled:                true,
		Interval:               5 * time.Minute,
		InitialRetryAttempts:   12,
		InitialRetryDelay:      5 * time.Second,
		FailOnInitialSyncError: true,
	}
}

// VisibilityExtenderConfig holds configuration for visibility timeout extension
type VisibilityExtenderConfig struct {
	// Enabled controls whether visibility extension is active
	Enabled bool
	// Interval is how often to scan for messages needing extension (default 55s)
	Interval time.Duration
	// Threshold is how long a message must be in flight before we extend (default 50s)
	Threshold time.Duration
}

// DefaultVisibilityExtenderConfig returns sensible defaults
func DefaultVisibilityExtenderConfig() *VisibilityExtenderConfig {
	return &VisibilityExtenderConfig{
		Enabled:   true,
		Interval:  55 * time.Second,
		Threshold: 50 * time.Second,
	}
}

// ConsumerHealthConfig holds configuration for consumer stall monitoring
type ConsumerHealthConfig struct {
	// Enabled controls whether consumer health monitoring is active
	Enabled bool
	// CheckInterval is how often to check consumer health (default 60s)
	CheckInterval time.Duration
	// StallThreshold is how long without activity before considering stalled (default 60s)
	StallThreshold time.Duration
	// MaxRestartAttempts is the maximum restart attempts before giving up (default 3)
	MaxRestartAttempts int
	// RestartDelay is the delay between restart attempts (default 5s)
	RestartDelay time.Duration
}

// DefaultConsumerHealthConfig returns sensible defaults
func DefaultConsumerHealthConfig() *ConsumerHealthConfig {
	return &ConsumerHealthConfig{
		Enabled:            true,
		CheckInterval:      60 * time.Second,
		StallThreshold:     60 * time.Second,
		MaxRestartAttempts: 3,
		RestartDelay:       5 * time.Second,
	}
}

// LeakDetectionConfig holds configuration for in-flight map leak detection
type LeakDetectionConfig struct {
	// Enabled controls whether leak detection is active
	Enabled bool
	// Interval is how often to scan the in-flight map (default 30s)
	Interval time.Duration
	// MaxAge is how long an entry may stay in flight before it is reported (default 1h)
	MaxAge time.Duration
}

// DefaultLeakDetectionConfig returns sensible defaults
func DefaultLeakDetectionConfig() *LeakDetectionConfig {
	return &LeakDetectionConfig{
		Enabled:  true,
		Interval: 30 * time.Second,
		MaxAge:   1 * time.Hour,
	}
}

// RouteResult is the outcome of routing one message
type RouteResult int

const (
	// RouteAccepted means the message was handed to a pool worker queue
	RouteAccepted RouteResult = iota
	// RouteDuplicateSuppressed means the message is already in flight and
	// this delivery was dropped
	RouteDuplicateSuppressed
	// RouteRejected means no pool could take the message; it was nacked for
	// redelivery
	RouteRejected
)

const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate_suppressed"
	outcomeRejected  = "rejected"
)

func (r RouteResult) String() string {
	switch r {
	case RouteAccepted:
		return outcomeAccepted
	case RouteDuplicateSuppressed:
		return outcomeDuplicate
	case RouteRejected:
		return outcomeRejected
	default:
		return "unknown"
	}
}

// RouterManager owns the processing pools and the in-flight message map.
// Messages enter through Route and leave through the Ack/Nack callbacks the
// pools invoke on terminal outcomes.
//
// Pool configuration is applied by replacement: a changed definition gets a
// fresh pool swapped into the live map while the old one drains in the
// background. Live pools are never resized.
type RouterManager struct {
	pools    map[string]*pool.ProcessPool
	poolDefs map[string]configsource.PoolDefinition
	poolsMu  sync.RWMutex

	// Retired pools finishing their queued work. Keyed by "code#seq" so a
	// replacement can drain while a pool with the same code is live.
	drainingPools sync.Map
	drainSeq      atomic.Int64
	drainTimeout  time.Duration

	// Dual-ID deduplication. Entries are keyed by broker message ID when the
	// broker assigns one, falling back to the application ID. The app-ID
	// index detects the same logical message arriving under a new broker ID.
	inFlight         sync.Map // flightKey -> *pool.MessagePointer
	inFlightSince    sync.Map // flightKey -> int64 (unix millis)
	appIDToFlightKey sync.Map // application message ID -> flightKey

	mediator        pool.Mediator
	messageCallback *MessageCallbackImpl

	running     bool
	runningMu   sync.Mutex
	stopCh      chan struct{}
	initialized atomic.Bool

	poolLimits  PoolLimits
	poolMetrics routermetrics.PoolMetricsService
	warnings    warning.Service

	// Visibility extender (keeps long-running messages invisible to the broker)
	visibilityConfig *VisibilityExtenderConfig
	visibilityWg     sync.WaitGroup

	// In-flight map leak detection
	leakConfig *LeakDetectionConfig
	leakWg     sync.WaitGroup
}

// NewRouterManager creates a manager routing through the given mediator.
// Pools are created by SyncPools from fetched configuration, never on demand.
func NewRouterManager(med pool.Mediator) *RouterManager {
	m := &RouterManager{
		pools:            make(map[string]*pool.ProcessPool),
		poolDefs:         make(map[string]configsource.PoolDefinition),
		drainTimeout:     15 * time.Minute,
		mediator:         med,
		poolLimits:       DefaultPoolLimits(),
		visibilityConfig: DefaultVisibilityExtenderConfig(),
		leakConfig:       DefaultLeakDetectionConfig(),
	}
	m.messageCallback = &MessageCallbackImpl{manager: m}
	return m
}

// WithPoolLimits overrides the pool count limits
func (m *RouterManager) WithPoolLimits(limits PoolLimits) *RouterManager {
	m.poolLimits = limits
	return m
}

// WithPoolMetrics sets the metrics sink handed to every pool
func (m *RouterManager) WithPoolMetrics(pm routermetrics.PoolMetricsService) *RouterManager {
	m.poolMetrics = pm
	return m
}

// WithWarnings sets the warning sink for the manager and its pools
func (m *RouterManager) WithWarnings(ws warning.Service) *RouterManager {
	m.warnings = ws
	return m
}

// WithVisibilityExtender configures visibility extension for long-running messages
func (m *RouterManager) WithVisibilityExtender(cfg *VisibilityExtenderConfig) *RouterManager {
	if cfg == nil {
		cfg = DefaultVisibilityExtenderConfig()
	}
	m.visibilityConfig = cfg
	return m
}

// WithLeakDetection configures in-flight map leak detection
func (m *RouterManager) WithLeakDetection(cfg *LeakDetectionConfig) *RouterManager {
	if cfg == nil {
		cfg = DefaultLeakDetectionConfig()
	}
	m.leakConfig = cfg
	return m
}

// Start begins accepting messages and starts the background scanners
func (m *RouterManager) Start() {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})

	if m.visibilityConfig.Enabled {
		m.visibilityWg.Add(1)
		go m.runVisibilityExtender(m.stopCh)
		slog.Info("Visibility extender started",
			"interval", m.visibilityConfig.Interval,
			"threshold", m.visibilityConfig.Threshold)
	}

	if m.leakConfig.Enabled {
		m.leakWg.Add(1)
		go m.runLeakDetection(m.stopCh)
		slog.Info("Leak detection started",
			"interval", m.leakConfig.Interval,
			"maxAge", m.leakConfig.MaxAge)
	}

	slog.Info("Router manager started")
}

// StopAccepting makes Route reject every message without stopping the pools.
// Used during shutdown so in-flight work can finish while the broker holds
// everything new.
func (m *RouterManager) StopAccepting() {
	m.runningMu.Lock()
	m.running = false
	m.runningMu.Unlock()
	slog.Info("Router manager no longer accepting messages")
}

// Stop shuts down the background scanners and terminates every pool,
// including retired pools still draining. The manager reports uninitialized
// again until the next config sync completes, so a paused standby fails
// readiness instead of advertising pools it no longer runs.
func (m *RouterManager) Stop() {
	m.runningMu.Lock()
	m.running = false
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.runningMu.Unlock()
	m.initialized.Store(false)

	m.visibilityWg.Wait()
	m.leakWg.Wait()

	m.poolsMu.Lock()
	for code, p := range m.pools {
		slog.Info("Shutting down pool", "pool", code)
		p.Shutdown()
	}
	m.pools = make(map[string]*pool.ProcessPool)
	m.poolDefs = make(map[string]configsource.PoolDefinition)
	m.poolsMu.Unlock()

	m.drainingPools.Range(func(key, value any) bool {
		value.(*pool.ProcessPool).Shutdown()
		m.drainingPools.Delete(key)
		return true
	})
	metrics.RouterActivePools.Set(0)
	metrics.RouterDrainingPools.Set(0)

	slog.Info("Router manager stopped")
}

// MarkInitialized records that the initial config sync has completed
func (m *RouterManager) MarkInitialized() {
	m.initialized.Store(true)
}

// IsInitialized reports whether the initial config sync has completed
func (m *RouterManager) IsInitialized() bool {
	return m.initialized.Load()
}

func (m *RouterManager) isRunning() bool {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	return m.running
}

// Route routes one message to its processing pool.
//
// The message ends in exactly one of three states: accepted by a pool (the
// pool's terminal callback will ack or nack it later), suppressed as a
// duplicate of a message already in flight, or rejected and nacked back to
// the broker for redelivery.
func (m *RouterManager) Route(msg *pool.MessagePointer) RouteResult {
	if !m.isRunning() {
		m.nackQuietly(msg)
		metrics.RouterMessagesRouted.WithLabelValues(outcomeRejected).Inc()
		return RouteRejected
	}

	p := m.GetPool(msg.PoolCode)
	if p == nil {
		slog.Warn("No pool for message, nacking for redelivery",
			"pool", msg.PoolCode,
			"messageId", msg.ID)
		m.addWarning(warning.KindUnknownPool, warning.SeverityWarn,
			fmt.Sprintf("no pool %q for message %s", msg.PoolCode, msg.ID))
		m.nackQuietly(msg)
		metrics.RouterMessagesRouted.WithLabelValues(outcomeRejected).Inc()
		return RouteRejected
	}

	flightKey := msg.BrokerMessageID
	if flightKey == "" {
		flightKey = msg.ID
	}

	// Same broker message ID arriving again means the visibility timeout
	// lapsed mid-processing. Keep the stored handle fresh so the eventual
	// ack still deletes the message, and push this delivery back.
	if msg.BrokerMessageID != "" {
		if _, exists := m.inFlight.Load(msg.BrokerMessageID); exists {
			slog.Debug("Duplicate delivery while in flight, nacking",
				"brokerMessageId", msg.BrokerMessageID,
				"messageId", msg.ID)
			m.updateReceiptHandleIfPossible(msg.BrokerMessageID, msg)
			m.nackQuietly(msg)
			metrics.RouterMessagesRouted.WithLabelValues(outcomeDuplicate).Inc()
			return RouteDuplicateSuppressed
		}
	}

	// Claim the application ID. LoadOrStore makes the insert atomic, so two
	// consumers delivering the same message race to exactly one winner.
	if existing, loaded := m.appIDToFlightKey.LoadOrStore(msg.ID, flightKey); loaded {
		existingKey := existing.(string)
		if msg.BrokerMessageID != "" && msg.BrokerMessageID != existingKey {
			// The same logical message was requeued as a brand new broker
			// message while the first is still in flight. Ack the copy so
			// the broker stops redelivering it; the original carries on.
			slog.Info("Requeued duplicate detected, removing copy",
				"messageId", msg.ID,
				"existingKey", existingKey,
				"newBrokerMessageId", msg.BrokerMessageID)
			m.ackQuietly(msg)
		} else {
			slog.Debug("Duplicate message in flight, nacking", "messageId", msg.ID)
			m.nackQuietly(msg)
		}
		metrics.RouterMessagesRouted.WithLabelValues(outcomeDuplicate).Inc()
		return RouteDuplicateSuppressed
	}

	m.inFlight.Store(flightKey, msg)
	m.inFlightSince.Store(flightKey, time.Now().UnixMilli())

	if !p.Submit(msg) {
		// Pool draining or a group queue full. Undo the claim and hand the
		// message back to the broker.
		m.removeInFlight(msg)
		slog.Warn("Pool refused message, nacking for redelivery",
			"pool", msg.PoolCode,
			"messageId", msg.ID,
			"queueSize", p.GetQueueSize())
		m.nackQuietly(msg)
		metrics.RouterMessagesRouted.WithLabelValues(outcomeRejected).Inc()
		return RouteRejected
	}

	metrics.RouterMessagesRouted.WithLabelValues(outcomeAccepted).Inc()
	return RouteAccepted
}

// Ack removes the message from the in-flight map and acknowledges it with
// the broker. Called by pools on success and on permanent failures.
func (m *RouterManager) Ack(msg *pool.MessagePointer) {
	m.removeInFlight(msg)
	m.ackQuietly(msg)
}

// Nack removes the message from the in-flight map and returns it to the
// broker for redelivery. Called by pools on retryable failures.
func (m *RouterManager) Nack(msg *pool.MessagePointer) {
	m.removeInFlight(msg)
	m.nackQuietly(msg)
}

func (m *RouterManager) removeInFlight(msg *pool.MessagePointer) {
	flightKey := msg.BrokerMessageID
	if flightKey == "" {
		flightKey = msg.ID
	}
	m.inFlight.Delete(flightKey)
	m.inFlightSince.Delete(flightKey)
	m.appIDToFlightKey.Delete(msg.ID)
}

func (m *RouterManager) ackQuietly(msg *pool.MessagePointer) {
	if msg.AckFunc == nil {
		return
	}
	if err := msg.AckFunc(); err != nil {
		slog.Error("Failed to ack message", "messageId", msg.ID, "error", err)
	}
}

func (m *RouterManager) nackQuietly(msg *pool.MessagePointer) {
	if msg.NakFunc == nil {
		return
	}
	if err := msg.NakFunc(); err != nil {
		slog.Error("Failed to nack message", "messageId", msg.ID, "error", err)
	}
}

// updateReceiptHandleIfPossible copies the fresh delivery's receipt handle
// onto the stored in-flight message. Brokers that rotate handles on
// redelivery (SQS) invalidate the old one, so without this the eventual ack
// would fail and the message would redeliver forever.
func (m *RouterManager) updateReceiptHandleIfPossible(brokerMessageID string, fresh *pool.MessagePointer) {
	if fresh.GetReceiptHandleFunc == nil {
		return
	}
	newHandle := fresh.GetReceiptHandleFunc()
	if newHandle == "" {
		return
	}

	v, ok := m.inFlight.Load(brokerMessageID)
	if !ok {
		return
	}
	stored := v.(*pool.MessagePointer)
	if stored.UpdateReceiptHandleFunc == nil {
		return
	}
	stored.UpdateReceiptHandleFunc(newHandle)
	slog.Debug("Updated receipt handle for in-flight message",
		"brokerMessageId", brokerMessageID,
		"messageId", stored.ID,
		"receiptHandle", truncateHandle(newHandle))
}

func truncateHandle(handle string) string {
	if len(handle) <= 20 {
		return handle
	}
	return handle[:20] + "..."
}

// SyncPools applies a fetched pool configuration to the running pool set.
//
// Added definitions start new pools, changed definitions get a replacement
// swapped in while the old pool drains, removed codes retire their pools.
// Unchanged pools are not touched. Returns ErrPoolLimitExceeded without
// applying anything when the configuration names too many pools.
func (m *RouterManager) SyncPools(defs []configsource.PoolDefinition) (configsource.PoolDiff, error) {
	if m.poolLimits.MaxPools > 0 && len(defs) > m.poolLimits.MaxPools {
		slog.Error("Pool configuration exceeds hard limit, keeping previous pools",
			"pools", len(defs),
			"limit", m.poolLimits.MaxPools)
		m.addWarning(warning.KindPoolLimitExceeded, warning.SeverityCritical,
			fmt.Sprintf("configuration names %d pools, hard limit is %d; keeping previous configuration",
				len(defs), m.poolLimits.MaxPools))
		return configsource.PoolDiff{}, ErrPoolLimitExceeded
	}
	if m.poolLimits.WarnThreshold > 0 && len(defs) > m.poolLimits.WarnThreshold {
		slog.Warn("Pool count above warning threshold",
			"pools", len(defs),
			"threshold", m.poolLimits.WarnThreshold)
		m.addWarning(warning.KindPoolLimitExceeded, warning.SeverityWarn,
			fmt.Sprintf("configuration names %d pools, warning threshold is %d",
				len(defs), m.poolLimits.WarnThreshold))
	}

	current := m.snapshotPoolDefs()
	diff := configsource.DiffPools(current, defs)

	for _, def := range diff.Added {
		m.startPool(def)
	}
	for _, def := range diff.Changed {
		m.replacePool(def)
	}
	for _, code := range diff.Removed {
		m.retirePool(code)
	}

	metrics.RouterActivePools.Set(float64(m.PoolCount()))

	if len(diff.Added)+len(diff.Changed)+len(diff.Removed) > 0 {
		slog.Info("Pool configuration applied",
			"added", len(diff.Added),
			"changed", len(diff.Changed),
			"removed", len(diff.Removed),
			"unchanged", len(diff.Unchanged))
	}
	return diff, nil
}

func (m *RouterManager) snapshotPoolDefs() map[string]configsource.PoolDefinition {
	m.poolsMu.RLock()
	defer m.poolsMu.RUnlock()
	defs := make(map[string]configsource.PoolDefinition, len(m.poolDefs))
	for code, def := range m.poolDefs {
		defs[code] = def
	}
	return defs
}

func (m *RouterManager) buildPool(def configsource.PoolDefinition) *pool.ProcessPool {
	concurrency := def.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultPoolConcurrency
	}

	p := pool.NewProcessPool(
		def.Code,
		concurrency,
		pool.GroupQueueCapacity(concurrency),
		def.RateLimitPerMinute,
		m.mediator,
		m.messageCallback,
	)
	if m.poolMetrics != nil {
		p = p.WithMetrics(m.poolMetrics)
	}
	if m.warnings != nil {
		p = p.WithWarnings(m.warnings)
	}
	return p
}

func (m *RouterManager) startPool(def configsource.PoolDefinition) {
	p := m.buildPool(def)
	p.Start()

	m.poolsMu.Lock()
	m.pools[def.Code] = p
	m.poolDefs[def.Code] = def
	m.poolsMu.Unlock()

	slog.Info("Started processing pool",
		"pool", def.Code,
		"concurrency", p.GetConcurrency(),
		"queueCapacity", p.GetQueueCapacity())
}

// replacePool swaps a freshly configured pool into the live map and drains
// the old one in the background. Messages already queued on the old pool
// finish there; new arrivals go to the replacement.
func (m *RouterManager) replacePool(def configsource.PoolDefinition) {
	replacement := m.buildPool(def)
	replacement.Start()

	m.poolsMu.Lock()
	old := m.pools[def.Code]
	m.pools[def.Code] = replacement
	m.poolDefs[def.Code] = def
	m.poolsMu.Unlock()

	slog.Info("Replaced processing pool with new configuration",
		"pool", def.Code,
		"concurrency", replacement.GetConcurrency())

	if old != nil {
		m.drainAsync(def.Code, old)
	}
}

func (m *RouterManager) retirePool(code string) {
	m.poolsMu.Lock()
	p, exists := m.pools[code]
	delete(m.pools, code)
	delete(m.poolDefs, code)
	m.poolsMu.Unlock()

	if !exists {
		return
	}
	slog.Info("Retired processing pool", "pool", code)
	m.drainAsync(code, p)
}

// drainAsync stops the pool's intake and waits in the background for its
// queued work to finish before terminating it. Keyed by code plus a sequence
// number so a replacement with the same code can drain alongside the live one.
func (m *RouterManager) drainAsync(code string, p *pool.ProcessPool) {
	key := fmt.Sprintf("%s#%d", code, m.drainSeq.Add(1))
	m.drainingPools.Store(key, p)
	metrics.RouterDrainingPools.Set(float64(m.DrainingPoolCount()))

	m.runningMu.Lock()
	stop := m.stopCh
	m.runningMu.Unlock()

	go func() {
		p.Drain()

		deadline := time.NewTimer(m.drainTimeout)
		defer deadline.Stop()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

	wait:
		for !p.IsFullyDrained() {
			select {
			case <-stop:
				break wait
			case <-deadline.C:
				slog.Warn("Pool drain timed out, forcing shutdown",
					"pool", code,
					"queued", p.GetQueueSize())
				break wait
			case <-ticker.C:
			}
		}

		p.Shutdown()
		m.drainingPools.Delete(key)
		metrics.RouterDrainingPools.Set(float64(m.DrainingPoolCount()))

		// Drop the pool's stats only if the code is gone for good; a
		// replacement with the same code keeps reporting under it.
		if m.poolMetrics != nil && m.GetPool(code) == nil {
			m.poolMetrics.RemovePoolMetrics(code)
		}

		slog.Info("Pool drained and terminated", "pool", code)
	}()
}

// WaitForDrain blocks until every pool, live and retiring, has finished its
// queued work, or until the deadline channel closes. Returns true if fully
// drained.
func (m *RouterManager) WaitForDrain(deadline <-chan struct{}) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.fullyDrained() {
			return true
		}
		select {
		case <-deadline:
			return m.fullyDrained()
		case <-ticker.C:
		}
	}
}

func (m *RouterManager) fullyDrained() bool {
	m.poolsMu.RLock()
	for _, p := range m.pools {
		if !p.IsFullyDrained() {
			m.poolsMu.RUnlock()
			return false
		}
	}
	m.poolsMu.RUnlock()

	drained := true
	m.drainingPools.Range(func(_, value any) bool {
		if !value.(*pool.ProcessPool).IsFullyDrained() {
			drained = false
			return false
		}
		return true
	})
	return drained
}

// GetPool returns the live pool for a code, or nil
func (m *RouterManager) GetPool(code string) *pool.ProcessPool {
	m.poolsMu.RLock()
	defer m.poolsMu.RUnlock()
	return m.pools[code]
}

// PoolCount returns the number of live pools
func (m *RouterManager) PoolCount() int {
	m.poolsMu.RLock()
	defer m.poolsMu.RUnlock()
	return len(m.pools)
}

// PoolCodes returns the live pool codes, sorted
func (m *RouterManager) PoolCodes() []string {
	m.poolsMu.RLock()
	codes := make([]string, 0, len(m.pools))
	for code := range m.pools {
		codes = append(codes, code)
	}
	m.poolsMu.RUnlock()
	sort.Strings(codes)
	return codes
}

// GetAllPools returns a snapshot of the live pools keyed by code
func (m *RouterManager) GetAllPools() map[string]*pool.ProcessPool {
	m.poolsMu.RLock()
	defer m.poolsMu.RUnlock()
	pools := make(map[string]*pool.ProcessPool, len(m.pools))
	for code, p := range m.pools {
		pools[code] = p
	}
	return pools
}

// DrainingPoolCount returns how many retired pools are still draining
func (m *RouterManager) DrainingPoolCount() int {
	count := 0
	m.drainingPools.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// InFlightCount returns the number of messages currently in flight
func (m *RouterManager) InFlightCount() int {
	count := 0
	m.inFlight.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// GetInFlightMessages returns a snapshot of in-flight messages for the
// monitoring API, longest-running first. A non-empty messageID filters to
// that message; limit caps the result (default 100, max 500).
func (m *RouterManager) GetInFlightMessages(limit int, messageID string) []*health.InFlightMessage {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	now := time.Now()
	out := make([]*health.InFlightMessage, 0, 16)
	m.inFlight.Range(func(key, value any) bool {
		msg := value.(*pool.MessagePointer)
		if messageID != "" && msg.ID != messageID {
			return true
		}
		started := now
		if v, ok := m.inFlightSince.Load(key); ok {
			started = time.UnixMilli(v.(int64))
		}
		out = append(out, &health.InFlightMessage{
			MessageID:    msg.ID,
			PoolCode:     msg.PoolCode,
			MessageGroup: msg.MessageGroupID,
			TargetURL:    msg.MediationTarget,
			StartedAt:    started,
			DurationMs:   now.Sub(started).Milliseconds(),
		})
		return len(out) < limit
	})

	sort.Slice(out, func(i, j int) bool {
		return out[i].DurationMs > out[j].DurationMs
	})
	return out
}

func (m *RouterManager) addWarning(kind, severity, message string) {
	if m.warnings != nil {
		m.warnings.AddWarning(kind, severity, message, "router")
	}
}

// runVisibilityExtender periodically extends the broker visibility of
// messages that have been processing longer than the threshold, so slow
// mediations don't get redelivered mid-flight.
func (m *RouterManager) runVisibilityExtender(stop <-chan struct{}) {
	defer m.visibilityWg.Done()

	ticker := time.NewTicker(m.visibilityConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.extendLongRunningVisibility()
		}
	}
}

func (m *RouterManager) extendLongRunningVisibility() {
	now := time.Now().UnixMilli()
	thresholdMillis := m.visibilityConfig.Threshold.Milliseconds()
	extended := 0

	m.inFlightSince.Range(func(key, value any) bool {
		if now-value.(int64) < thresholdMillis {
			return true
		}
		v, ok := m.inFlight.Load(key)
		if !ok {
			return true
		}
		msg := v.(*pool.MessagePointer)
		if msg.InProgressFunc == nil {
			return true
		}
		if err := msg.InProgressFunc(); err != nil {
			slog.Warn("Failed to extend message visibility",
				"messageId", msg.ID,
				"error", err)
		} else {
			extended++
		}
		return true
	})

	if extended > 0 {
		slog.Debug("Extended visibility for long-running messages", "count", extended)
	}
}

// runLeakDetection periodically scans the in-flight map for entries that
// should have completed long ago.
func (m *RouterManager) runLeakDetection(stop <-chan struct{}) {
	defer m.leakWg.Done()

	ticker := time.NewTicker(m.leakConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.checkForLeaks()
		}
	}
}

// checkForLeaks reports in-flight entries older than MaxAge. Entries are
// never force-removed: the broker still tracks the delivery, and reclaiming
// the entry here would let a redelivery start a second copy mid-flight.
// Redelivery after the broker's own visibility expiry is the recovery path.
func (m *RouterManager) checkForLeaks() {
	now := time.Now().UnixMilli()
	maxAgeMillis := m.leakConfig.MaxAge.Milliseconds()

	size := 0
	stale := 0
	oldest := now
	m.inFlightSince.Range(func(_, value any) bool {
		size++
		ts := value.(int64)
		if ts < oldest {
			oldest = ts
		}
		if now-ts > maxAgeMillis {
			stale++
		}
		return true
	})

	totalCapacity := 0
	m.poolsMu.RLock()
	for _, p := range m.pools {
		totalCapacity += p.GetQueueCapacity()
	}
	m.poolsMu.RUnlock()

	metrics.PipelineMapSize.Set(float64(size))
	metrics.PipelineTotalCapacity.Set(float64(totalCapacity))

	if stale > 0 {
		oldestAge := time.Duration(now-oldest) * time.Millisecond
		slog.Warn("Stale in-flight entries detected",
			"count", stale,
			"inFlight", size,
			"oldestAge", oldestAge.Round(time.Second))
		m.addWarning(warning.KindLeak, warning.SeverityWarn,
			fmt.Sprintf("%d in-flight entries older than %s (oldest %s); messages may be stuck awaiting ack",
				stale, m.leakConfig.MaxAge, oldestAge.Round(time.Second)))
	}
}

// MessageCallbackImpl bridges pool terminal outcomes back to the manager
// and the broker visibility controls.
type MessageCallbackImpl struct {
	manager *RouterManager
}

func (c *MessageCallbackImpl) Ack(msg *pool.MessagePointer) {
	c.manager.Ack(msg)
}

func (c *MessageCallbackImpl) Nack(msg *pool.MessagePointer) {
	c.manager.Nack(msg)
}

func (c *MessageCallbackImpl) SetVisibilityDelay(msg *pool.MessagePointer, seconds int) {
	if msg.NakDelayFunc != nil {
		if err := msg.NakDelayFunc(time.Duration(seconds) * time.Second); err != nil {
			slog.Warn("Failed to set visibility delay",
				"messageId", msg.ID,
				"delaySeconds", seconds,
				"error", err)
		}
	}
}

func (c *MessageCallbackImpl) SetFastFailVisibility(msg *pool.MessagePointer) {
	// Fast fail = 1 second visibility for quick redelivery
	c.SetVisibilityDelay(msg, 1)
}

func (c *MessageCallbackImpl) ResetVisibilityToDefault(msg *pool.MessagePointer) {
	// Default visibility is the queue's own; nothing to change
}
