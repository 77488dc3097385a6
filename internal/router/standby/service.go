// Package standby provides high-availability standby/failover functionality
// using distributed leader election.
//
// In HA mode, multiple instances compete for a distributed lock. The instance
// holding the lock is the PRIMARY and actively processes messages. Other
// instances are in STANDBY mode and will take over if the PRIMARY fails.
package standby

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.relaypoint.io/internal/common/leader"
)

// Role represents the current role of this instance
type Role string

const (
	// RolePrimary indicates this instance is the active leader
	RolePrimary Role = "PRIMARY"

	// RoleStandby indicates this instance is waiting to become leader
	RoleStandby Role = "STANDBY"

	// RoleUnknown indicates the role has not been determined yet
	RoleUnknown Role = "UNKNOWN"
)

// Config holds standby mode configuration
type Config struct {
	// Enabled controls whether standby mode is active
	Enabled bool

	// InstanceID is a unique identifier for this instance (auto-generated if empty)
	InstanceID string

	// LockKey is the distributed lock key (default: "relaypoint:router:leader")
	LockKey string

	// LockTTL is how long the lock is held before it expires
	LockTTL time.Duration

	// RefreshInterval is how often to refresh the lock
	RefreshInterval time.Duration

	// RedisURL is the Redis connection URL
	RedisURL string
}

// DefaultConfig returns default standby configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		LockKey:         "relaypoint:router:leader",
		LockTTL:         30 * time.Second,
		RefreshInterval: 10 * time.Second,
	}
}

// Callbacks defines the callbacks invoked on role changes
type Callbacks struct {
	// OnBecomePrimary is called when this instance becomes the PRIMARY
	OnBecomePrimary func()

	// OnBecomeStandby is called when this instance becomes STANDBY
	OnBecomeStandby func()
}

// StandbyStatus is the standby state exposed to monitoring endpoints
type StandbyStatus struct {
	StandbyEnabled        bool   `json:"standbyEnabled"`
	InstanceID            string `json:"instanceId"`
	Role                  string `json:"role"`
	LockAvailable         bool   `json:"lockAvailable"`
	CurrentLockHolder     string `json:"currentLockHolder"`
	LastSuccessfulRefresh string `json:"lastSuccessfulRefresh"`
	HasWarning            bool   `json:"hasWarning"`
	WarningMessage        string `json:"warningMessage,omitempty"`
}

// Service coordinates leader election with role transitions. It maps the
// elector's leader/follower state onto PRIMARY/STANDBY roles and invokes
// the configured callbacks (typically router pause/resume and traffic
// registration) whenever the role changes.
type Service struct {
	config    *Config
	callbacks *Callbacks

	mu          sync.RWMutex
	instanceID  string
	currentRole Role

	lock    leader.Lock
	elector *leader.Elector
}

// NewService creates a new standby service
func NewService(config *Config, callbacks *Callbacks) *Service {
	if config == nil {
		config = DefaultConfig()
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	return &Service{
		config:      config,
		callbacks:   callbacks,
		instanceID:  instanceID,
		currentRole: RoleUnknown,
	}
}

// SetLock sets the distributed lock backend used for election
func (s *Service) SetLock(lock leader.Lock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lock = lock
}

// Start begins leader election, or promotes immediately when standby mode
// is disabled
func (s *Service) Start() error {
	if !s.config.Enabled {
		slog.Info("Standby mode disabled - running as standalone PRIMARY")
		s.transition(RolePrimary)
		return nil
	}

	s.mu.RLock()
	lock := s.lock
	s.mu.RUnlock()

	if lock == nil {
		slog.Warn("No lock backend configured - running as standalone PRIMARY")
		s.transition(RolePrimary)
		return nil
	}

	slog.Info("Starting standby service with leader election",
		"instanceId", s.instanceID,
		"lockKey", s.config.LockKey,
		"lockTTL", s.config.LockTTL,
		"refreshInterval", s.config.RefreshInterval)

	elector := leader.NewElector(lock, &leader.ElectorConfig{
		InstanceID:      s.instanceID,
		LockKey:         s.config.LockKey,
		TTL:             s.config.LockTTL,
		RefreshInterval: s.config.RefreshInterval,
	})
	elector.OnBecomeLeader(func() { s.transition(RolePrimary) })
	elector.OnLoseLeadership(func() { s.transition(RoleStandby) })

	s.mu.Lock()
	s.elector = elector
	s.mu.Unlock()

	if err := elector.Start(); err != nil {
		return err
	}

	// The first tick ran synchronously inside Start. Losing it means
	// another instance is (or may be) primary, so this one stands by.
	if !elector.IsPrimary() {
		s.transition(RoleStandby)
	}

	return nil
}

// Stop halts leader election, releases any held lock and closes the backend
func (s *Service) Stop() {
	slog.Info("Stopping standby service", "instanceId", s.instanceID)

	s.mu.RLock()
	elector := s.elector
	lock := s.lock
	s.mu.RUnlock()

	if elector != nil {
		elector.Stop()
	}

	if lock != nil {
		if err := lock.Close(); err != nil {
			slog.Warn("Failed to close lock backend", "error", err)
		}
	}
}

// transition sets the current role and invokes callbacks on change
func (s *Service) transition(role Role) {
	s.mu.Lock()
	oldRole := s.currentRole
	s.currentRole = role
	s.mu.Unlock()

	if oldRole == role {
		return
	}

	slog.Info("Role changed",
		"instanceId", s.instanceID,
		"oldRole", string(oldRole),
		"newRole", string(role))

	if s.callbacks == nil {
		return
	}

	switch role {
	case RolePrimary:
		if s.callbacks.OnBecomePrimary != nil {
			s.callbacks.OnBecomePrimary()
		}
	case RoleStandby:
		if s.callbacks.OnBecomeStandby != nil {
			s.callbacks.OnBecomeStandby()
		}
	}
}

// IsPrimary returns true if this instance is the current leader
func (s *Service) IsPrimary() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRole == RolePrimary
}

// IsStandby returns true if this instance is in standby mode
func (s *Service) IsStandby() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRole == RoleStandby
}

// GetRole returns the current role
func (s *Service) GetRole() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRole
}

// GetInstanceID returns the instance ID
func (s *Service) GetInstanceID() string {
	return s.instanceID
}

// IsEnabled returns whether standby mode is enabled
func (s *Service) IsEnabled() bool {
	return s.config.Enabled
}

// GetStatus returns the current standby status for monitoring
func (s *Service) GetStatus() *StandbyStatus {
	s.mu.RLock()
	role := s.currentRole
	elector := s.elector
	s.mu.RUnlock()

	status := &StandbyStatus{
		StandbyEnabled: s.config.Enabled,
		InstanceID:     s.instanceID,
		Role:           string(role),
	}

	if elector != nil {
		status.LockAvailable = elector.LockAvailable()
		status.CurrentLockHolder = elector.Holder()
		if lastRefresh := elector.LastRefresh(); !lastRefresh.IsZero() {
			status.LastSuccessfulRefresh = lastRefresh.Format(time.RFC3339)
		}
		if msg := elector.LastError(); msg != "" {
			status.HasWarning = true
			status.WarningMessage = msg
		}
	}

	return status
}
