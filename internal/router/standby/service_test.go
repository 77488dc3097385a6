package standby

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeLock is an in-memory single-key lock for election tests
type fakeLock struct {
	mu     sync.Mutex
	holder string
	closed bool
}

func (l *fakeLock) TryAcquire(_ context.Context, _, instanceID string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == "" || l.holder == instanceID {
		l.holder = instanceID
		return true, nil
	}
	return false, nil
}

func (l *fakeLock) Refresh(_ context.Context, _, instanceID string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder == instanceID, nil
}

func (l *fakeLock) Release(_ context.Context, _, instanceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == instanceID {
		l.holder = ""
	}
	return nil
}

func (l *fakeLock) Holder(_ context.Context, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder, nil
}

func (l *fakeLock) Available(_ context.Context) bool {
	return true
}

func (l *fakeLock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLock) steal(instanceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder = instanceID
}

func (l *fakeLock) currentHolder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// roleRecorder captures role transition callbacks
type roleRecorder struct {
	mu      sync.Mutex
	primary int
	standby int
}

func (r *roleRecorder) callbacks() *Callbacks {
	return &Callbacks{
		OnBecomePrimary: func() {
			r.mu.Lock()
			r.primary++
			r.mu.Unlock()
		},
		OnBecomeStandby: func() {
			r.mu.Lock()
			r.standby++
			r.mu.Unlock()
		},
	}
}

func (r *roleRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primary, r.standby
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Enabled {
		t.Error("Default config should have Enabled=false")
	}

	if config.LockKey != "relaypoint:router:leader" {
		t.Errorf("Expected lock key 'relaypoint:router:leader', got %s", config.LockKey)
	}

	if config.LockTTL != 30*time.Second {
		t.Errorf("Expected lock TTL 30s, got %v", config.LockTTL)
	}

	if config.RefreshInterval != 10*time.Second {
		t.Errorf("Expected refresh interval 10s, got %v", config.RefreshInterval)
	}
}

func TestNewService(t *testing.T) {
	config := &Config{
		Enabled:         true,
		LockKey:         "test:lock",
		LockTTL:         10 * time.Second,
		RefreshInterval: 5 * time.Second,
	}

	svc := NewService(config, nil)

	if svc == nil {
		t.Fatal("NewService returned nil")
	}

	if svc.instanceID == "" {
		t.Error("Service should have an instance ID")
	}

	if svc.GetRole() != RoleUnknown {
		t.Errorf("Expected initial role UNKNOWN, got %s", svc.GetRole())
	}
}

func TestNewService_CustomInstanceID(t *testing.T) {
	config := &Config{
		Enabled:    true,
		InstanceID: "my-custom-instance",
	}

	svc := NewService(config, nil)

	if svc.GetInstanceID() != "my-custom-instance" {
		t.Errorf("Expected instance ID 'my-custom-instance', got %s", svc.GetInstanceID())
	}
}

func TestDisabledModeBecomesPrimary(t *testing.T) {
	rec := &roleRecorder{}
	svc := NewService(DefaultConfig(), rec.callbacks())

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if !svc.IsPrimary() {
		t.Error("Disabled standby mode should run as PRIMARY")
	}

	primary, standby := rec.counts()
	if primary != 1 {
		t.Errorf("Expected OnBecomePrimary to fire once, fired %d times", primary)
	}
	if standby != 0 {
		t.Errorf("OnBecomeStandby should not fire, fired %d times", standby)
	}

	status := svc.GetStatus()
	if status.StandbyEnabled {
		t.Error("Status should report standby disabled")
	}
	if status.Role != string(RolePrimary) {
		t.Errorf("Expected role PRIMARY, got %s", status.Role)
	}
}

func TestEnabledWithoutLockRunsStandalone(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true

	rec := &roleRecorder{}
	svc := NewService(config, rec.callbacks())

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if !svc.IsPrimary() {
		t.Error("Missing lock backend should degrade to standalone PRIMARY")
	}
}

func TestAcquiresLockAndBecomesPrimary(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true
	config.InstanceID = "instance-1"

	lock := &fakeLock{}
	rec := &roleRecorder{}

	svc := NewService(config, rec.callbacks())
	svc.SetLock(lock)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if !svc.IsPrimary() {
		t.Error("Expected instance to become PRIMARY with unheld lock")
	}

	primary, _ := rec.counts()
	if primary != 1 {
		t.Errorf("Expected OnBecomePrimary to fire once, fired %d times", primary)
	}

	status := svc.GetStatus()
	if status.CurrentLockHolder != "instance-1" {
		t.Errorf("Expected lock holder 'instance-1', got %s", status.CurrentLockHolder)
	}
	if !status.LockAvailable {
		t.Error("Expected lock backend to be reported available")
	}
	if status.LastSuccessfulRefresh == "" {
		t.Error("Expected last refresh timestamp to be set")
	}
}

func TestStandsByWhenLockHeldElsewhere(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true
	config.InstanceID = "instance-2"

	lock := &fakeLock{holder: "instance-1"}
	rec := &roleRecorder{}

	svc := NewService(config, rec.callbacks())
	svc.SetLock(lock)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if !svc.IsStandby() {
		t.Errorf("Expected STANDBY when lock held elsewhere, got %s", svc.GetRole())
	}

	primary, standby := rec.counts()
	if primary != 0 {
		t.Errorf("OnBecomePrimary should not fire, fired %d times", primary)
	}
	if standby != 1 {
		t.Errorf("Expected OnBecomeStandby to fire once, fired %d times", standby)
	}

	status := svc.GetStatus()
	if status.CurrentLockHolder != "instance-1" {
		t.Errorf("Expected lock holder 'instance-1', got %s", status.CurrentLockHolder)
	}
}

func TestFailoverPromotion(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping failover test in short mode")
	}

	config := DefaultConfig()
	config.Enabled = true
	config.InstanceID = "instance-2"
	config.RefreshInterval = 20 * time.Millisecond

	lock := &fakeLock{holder: "instance-1"}
	rec := &roleRecorder{}

	svc := NewService(config, rec.callbacks())
	svc.SetLock(lock)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if !svc.IsStandby() {
		t.Fatalf("Expected STANDBY before failover, got %s", svc.GetRole())
	}

	// Primary disappears and its lock expires
	lock.steal("")

	deadline := time.Now().Add(2 * time.Second)
	for !svc.IsPrimary() {
		if time.Now().After(deadline) {
			t.Fatal("Standby did not take over the released lock")
		}
		time.Sleep(5 * time.Millisecond)
	}

	primary, _ := rec.counts()
	if primary != 1 {
		t.Errorf("Expected OnBecomePrimary to fire once during failover, fired %d times", primary)
	}
}

func TestDemotionWhenLockLost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping demotion test in short mode")
	}

	config := DefaultConfig()
	config.Enabled = true
	config.InstanceID = "instance-1"
	config.RefreshInterval = 20 * time.Millisecond

	lock := &fakeLock{}
	rec := &roleRecorder{}

	svc := NewService(config, rec.callbacks())
	svc.SetLock(lock)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if !svc.IsPrimary() {
		t.Fatal("Expected PRIMARY after acquiring unheld lock")
	}

	// Lock expires and another instance grabs it
	lock.steal("instance-2")

	deadline := time.Now().Add(2 * time.Second)
	for !svc.IsStandby() {
		if time.Now().After(deadline) {
			t.Fatal("Instance did not step down after losing the lock")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, standby := rec.counts()
	if standby != 1 {
		t.Errorf("Expected OnBecomeStandby to fire once, fired %d times", standby)
	}
}

func TestStopReleasesLockAndClosesBackend(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true
	config.InstanceID = "instance-1"

	lock := &fakeLock{}
	svc := NewService(config, nil)
	svc.SetLock(lock)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	svc.Stop()

	if lock.currentHolder() != "" {
		t.Errorf("Expected lock released on stop, held by %s", lock.currentHolder())
	}

	lock.mu.Lock()
	closed := lock.closed
	lock.mu.Unlock()
	if !closed {
		t.Error("Expected lock backend to be closed on stop")
	}
}

func TestGetStatusBeforeStart(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true
	config.InstanceID = "instance-1"

	svc := NewService(config, nil)
	status := svc.GetStatus()

	if status.Role != string(RoleUnknown) {
		t.Errorf("Expected role UNKNOWN before start, got %s", status.Role)
	}
	if !status.StandbyEnabled {
		t.Error("Status should report standby enabled")
	}
	if status.InstanceID != "instance-1" {
		t.Errorf("Expected instance ID 'instance-1', got %s", status.InstanceID)
	}
}
