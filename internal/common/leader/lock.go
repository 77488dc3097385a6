package leader

import (
	"context"
	"time"
)

// Lock is a distributed lock with expiry. Implementations must make
// TryAcquire, Refresh and Release atomic with respect to ownership: a
// Refresh or Release by a non-owner must not disturb the owner's lock.
type Lock interface {
	// TryAcquire attempts to take the lock. Returns true when acquired.
	TryAcquire(ctx context.Context, key, instanceID string, ttl time.Duration) (bool, error)

	// Refresh extends the TTL if instanceID still owns the lock. Returns
	// false when ownership was lost.
	Refresh(ctx context.Context, key, instanceID string, ttl time.Duration) (bool, error)

	// Release drops the lock if instanceID owns it
	Release(ctx context.Context, key, instanceID string) error

	// Holder returns the current owner's instance ID, empty when unheld
	Holder(ctx context.Context, key string) (string, error)

	// Available reports whether the lock backend is reachable
	Available(ctx context.Context) bool

	// Close releases backend resources
	Close() error
}

// StaticLock is an always-held lock for standalone deployments. The
// owning instance acquires on first try and never loses ownership.
type StaticLock struct {
	instanceID string
}

// NewStaticLock creates a lock permanently owned by instanceID
func NewStaticLock(instanceID string) *StaticLock {
	return &StaticLock{instanceID: instanceID}
}

func (l *StaticLock) TryAcquire(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (l *StaticLock) Refresh(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (l *StaticLock) Release(_ context.Context, _, _ string) error {
	return nil
}

func (l *StaticLock) Holder(_ context.Context, _ string) (string, error) {
	return l.instanceID, nil
}

func (l *StaticLock) Available(_ context.Context) bool {
	return true
}

func (l *StaticLock) Close() error {
	return nil
}
