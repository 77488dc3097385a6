// Package leader provides distributed leader election over a pluggable
// distributed lock. One instance holds the lock and is the leader; the
// rest retry on a fixed interval and take over if the leader stops
// refreshing.
package leader

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ElectorConfig holds configuration for leader election
type ElectorConfig struct {
	// InstanceID uniquely identifies this instance (defaults to hostname)
	InstanceID string

	// LockKey is the lock to compete for (e.g. "relaypoint:router:leader")
	LockKey string

	// TTL is how long the lock is valid before expiring. Failover after a
	// leader crash takes at most this long.
	TTL time.Duration

	// RefreshInterval is how often the leader refreshes the lock and how
	// often followers retry acquisition (default: 10s)
	RefreshInterval time.Duration
}

// DefaultElectorConfig returns sensible defaults for the given lock key
func DefaultElectorConfig(lockKey string) *ElectorConfig {
	instanceID, _ := os.Hostname()
	if instanceID == "" {
		instanceID = "instance-" + time.Now().Format("20060102150405")
	}

	return &ElectorConfig{
		InstanceID:      instanceID,
		LockKey:         lockKey,
		TTL:             30 * time.Second,
		RefreshInterval: 10 * time.Second,
	}
}

// Elector runs the election loop over a Lock. Leadership changes are
// reported through the OnBecomeLeader/OnLoseLeadership callbacks, which
// run on the election goroutine and must not block.
type Elector struct {
	lock   Lock
	config *ElectorConfig

	isPrimary     atomic.Bool
	lockAvailable atomic.Bool

	mu          sync.RWMutex
	holder      string
	lastRefresh time.Time
	lastError   string

	onBecomeLeader   func()
	onLoseLeadership func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewElector creates an elector competing for the configured lock
func NewElector(lock Lock, config *ElectorConfig) *Elector {
	if config == nil {
		config = DefaultElectorConfig("relaypoint:leader")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Elector{
		lock:   lock,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnBecomeLeader sets the callback invoked when this instance wins the lock
func (e *Elector) OnBecomeLeader(fn func()) {
	e.onBecomeLeader = fn
}

// OnLoseLeadership sets the callback invoked when this instance loses the lock
func (e *Elector) OnLoseLeadership(fn func()) {
	e.onLoseLeadership = fn
}

// Start attempts an immediate acquisition and then begins the election loop
func (e *Elector) Start() error {
	e.tick()

	e.wg.Add(1)
	go e.electionLoop()

	slog.Info("Leader election started",
		"instanceId", e.config.InstanceID,
		"lockKey", e.config.LockKey,
		"ttl", e.config.TTL,
		"refreshInterval", e.config.RefreshInterval)

	return nil
}

// Stop halts the election loop and releases the lock if held
func (e *Elector) Stop() {
	e.cancel()
	e.wg.Wait()

	if e.isPrimary.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := e.lock.Release(ctx, e.config.LockKey, e.config.InstanceID); err != nil {
			slog.Warn("Failed to release leader lock during shutdown", "error", err)
		} else {
			slog.Info("Released leader lock")
		}
	}

	slog.Info("Leader election stopped", "instanceId", e.config.InstanceID)
}

// IsPrimary returns true if this instance currently holds the lock
func (e *Elector) IsPrimary() bool {
	return e.isPrimary.Load()
}

// InstanceID returns this instance's identifier
func (e *Elector) InstanceID() string {
	return e.config.InstanceID
}

// LockKey returns the lock key being competed for
func (e *Elector) LockKey() string {
	return e.config.LockKey
}

// LockAvailable reports whether the lock backend responded to the most
// recent election tick
func (e *Elector) LockAvailable() bool {
	return e.lockAvailable.Load()
}

// Holder returns the instance ID of the current lock holder as of the
// last observation, empty when unknown
func (e *Elector) Holder() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.holder
}

// LastRefresh returns when this instance last successfully acquired or
// refreshed the lock
func (e *Elector) LastRefresh() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRefresh
}

// LastError returns the most recent election error, empty when the last
// tick succeeded
func (e *Elector) LastError() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

func (e *Elector) electionLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick performs one election round: leaders refresh, followers try to
// acquire
func (e *Elector) tick() {
	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
	defer cancel()

	available := e.lock.Available(ctx)
	e.lockAvailable.Store(available)
	if !available {
		// Keep the current role: dropping leadership on a backend blip
		// would bounce consumers on both instances.
		slog.Warn("Lock backend not available, maintaining current role")
		e.setError("lock backend unavailable")
		return
	}

	if e.isPrimary.Load() {
		e.refreshHeldLock(ctx)
	} else {
		e.tryAcquireLock(ctx)
	}
}

func (e *Elector) refreshHeldLock(ctx context.Context) {
	refreshed, err := e.lock.Refresh(ctx, e.config.LockKey, e.config.InstanceID, e.config.TTL)
	if err != nil {
		slog.Error("Error refreshing leader lock", "error", err)
		e.setError("refresh failed: " + err.Error())
		return
	}

	if refreshed {
		e.markRefreshed()
		return
	}

	slog.Warn("Lost leader lock", "instanceId", e.config.InstanceID)
	e.isPrimary.Store(false)
	e.observeHolder(ctx)
	if e.onLoseLeadership != nil {
		e.onLoseLeadership()
	}
}

func (e *Elector) tryAcquireLock(ctx context.Context) {
	acquired, err := e.lock.TryAcquire(ctx, e.config.LockKey, e.config.InstanceID, e.config.TTL)
	if err != nil {
		slog.Error("Error acquiring leader lock", "error", err)
		e.setError("acquire failed: " + err.Error())
		e.observeHolder(ctx)
		return
	}

	if !acquired {
		e.observeHolder(ctx)
		e.clearError()
		return
	}

	slog.Info("Acquired leader lock", "instanceId", e.config.InstanceID)
	e.isPrimary.Store(true)
	e.markRefreshed()
	e.mu.Lock()
	e.holder = e.config.InstanceID
	e.mu.Unlock()
	if e.onBecomeLeader != nil {
		e.onBecomeLeader()
	}
}

func (e *Elector) markRefreshed() {
	e.mu.Lock()
	e.lastRefresh = time.Now()
	e.lastError = ""
	e.mu.Unlock()
}

func (e *Elector) setError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}

func (e *Elector) clearError() {
	e.mu.Lock()
	e.lastError = ""
	e.mu.Unlock()
}

func (e *Elector) observeHolder(ctx context.Context) {
	holder, err := e.lock.Holder(ctx, e.config.LockKey)
	if err != nil {
		slog.Debug("Failed to read current lock holder", "error", err)
		return
	}
	e.mu.Lock()
	e.holder = holder
	e.mu.Unlock()
}
