package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/subpay-io/subpay/internal/platform/config"
)

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

// KeyLocker provides short-lived mutual exclusion per key, guarding the
// check-cache, call-provider, populate-cache sequence so only one caller
// makes the external call.
type KeyLocker interface {
	// Lock blocks until the key lock is held or ctx is done.
	Lock(ctx context.Context, key string) (func(), error)
}

// RedisClient wraps the go-redis client for cache and locking use.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects to Redis with the configured pool settings.
func NewRedisClient(cfg config.RedisConfig, prefix string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client, prefix: prefix}, nil
}

// Close closes the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

const (
	lockTTL       = 30 * time.Second
	lockRetryWait = 50 * time.Millisecond
)

// Lock acquires a SETNX lock for key, polling until acquired or ctx is
// done. The returned function releases the lock.
func (c *RedisClient) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := c.prefix + ":lock:" + key

	for {
		ok, err := c.client.SetNX(ctx, fullKey, 1, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			return func() {
				c.client.Del(context.Background(), fullKey)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}
}

// LocalLocker is an in-process KeyLocker for single-replica deployments
// and tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker creates an in-process keyed locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-key mutex.
func (l *LocalLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
