package leader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// refreshScript extends the TTL only when the caller still owns the lock
var refreshScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// releaseScript deletes the lock only when the caller owns it
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLock implements Lock on Redis using the SET NX EX pattern for
// acquisition and Lua scripts for owner-checked refresh and release.
type RedisLock struct {
	client *redis.Client
}

// NewRedisLock connects to Redis and verifies the connection
func NewRedisLock(redisURL string) (*RedisLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	slog.Info("Connected to Redis for distributed locking", "addr", opts.Addr)

	return &RedisLock{client: client}, nil
}

// NewRedisLockWithClient wraps an existing Redis client
func NewRedisLockWithClient(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

// TryAcquire takes the lock with SET key instanceID NX EX ttl
func (l *RedisLock) TryAcquire(ctx context.Context, key, instanceID string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, instanceID, ttl).Result()
	if err != nil {
		return false, err
	}

	if ok {
		slog.Debug("Lock acquired", "key", key, "instanceId", instanceID, "ttl", ttl)
	}
	return ok, nil
}

// Refresh extends the TTL if instanceID still owns the lock
func (l *RedisLock) Refresh(ctx context.Context, key, instanceID string, ttl time.Duration) (bool, error) {
	result, err := refreshScript.Run(ctx, l.client, []string{key}, instanceID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// Release drops the lock if instanceID owns it
func (l *RedisLock) Release(ctx context.Context, key, instanceID string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{key}, instanceID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	slog.Debug("Lock released", "key", key, "instanceId", instanceID)
	return nil
}

// Holder returns the current owner, empty when the lock is unheld
func (l *RedisLock) Holder(ctx context.Context, key string) (string, error) {
	holder, err := l.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return holder, nil
}

// Available reports whether Redis answers a ping
func (l *RedisLock) Available(ctx context.Context) bool {
	return l.client.Ping(ctx).Err() == nil
}

// Close closes the Redis connection
func (l *RedisLock) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
