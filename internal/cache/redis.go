package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vallemarketing/valle360-teste-sub009/config"
)

// ErrCacheMiss is returned by Get when the key is absent or caching is disabled
var ErrCacheMiss = errors.New("cache miss")

// releaseScript deletes a lock only if it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisCache provides caching and short-lived locks using Redis.
// A disabled cache misses every read and grants every lock.
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
	}, nil
}

// NewDisabledCache returns a cache that never stores anything
func NewDisabledCache() *RedisCache {
	return &RedisCache{enabled: false}
}

// Enabled reports whether Redis is in use
func (c *RedisCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get retrieves a JSON value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return ErrCacheMiss
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a JSON value with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Lock is a held Redis lock
type Lock struct {
	key   string
	token string
}

// AcquireLock takes key for ttl with SETNX. It returns nil and no error
// when another holder owns the key.
func (c *RedisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{key: key, token: uuid.NewString()}
	if !c.Enabled() {
		return lock, nil
	}

	ok, err := c.client.SetNX(ctx, key, lock.token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

// ReleaseLock frees a lock held by the caller
func (c *RedisCache) ReleaseLock(ctx context.Context, lock *Lock) error {
	if !c.Enabled() || lock == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, c.client, []string{lock.key}, lock.token).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, "failed to release lock")
	}
	return nil
}

// SagaLockKey is the in-flight lock of a saga delivery
func SagaLockKey(contractID uuid.UUID, eventType string) string {
	return fmt.Sprintf("saga:lock:%s:%s", contractID.String(), eventType)
}

// SagaDoneKey marks a saga run that already completed
func SagaDoneKey(contractID uuid.UUID, eventType string) string {
	return fmt.Sprintf("saga:done:%s:%s", contractID.String(), eventType)
}

// Ping checks the connection. A disabled cache is always healthy.
func (c *RedisCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.Enabled() || c.client == nil {
		return nil
	}
	return c.client.Close()
}
