// Package cache handles Redis caching operations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devtoolspro/gateway/internal/config"
)

// Common errors
var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrCacheExpired = errors.New("cache entry expired")
)

// Cache defines the interface for caching operations.
type Cache interface {
	// Get retrieves a value from the cache.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping checks if the cache is healthy.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisCache creates a new Redis cache client.
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	// Verify connectivity
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, owned: true}, nil
}

// NewRedisCacheFromClient wraps an existing client. Close leaves the client open.
func NewRedisCacheFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value from the cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set stores a value in the cache with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete removes a value from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	err := c.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Exists checks if a key exists in the cache.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists check failed: %w", err)
	}
	return n > 0, nil
}

// Ping checks if the cache is healthy.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the cache connection if this cache created it.
func (c *RedisCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

// Client returns the underlying Redis client for advanced operations.
func (c *RedisCache) Client() redis.UniversalClient {
	return c.client
}

// JSONCache stores values of one type as JSON under a key prefix.
type JSONCache[T any] struct {
	cache      Cache
	keyPrefix  string
	defaultTTL time.Duration
}

// NewJSONCache creates a typed cache. A zero TTL defaults to five minutes.
func NewJSONCache[T any](cache Cache, keyPrefix string, defaultTTL time.Duration) *JSONCache[T] {
	if defaultTTL == 0 {
		defaultTTL = 5 * time.Minute
	}
	return &JSONCache[T]{
		cache:      cache,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves and decodes a value.
func (c *JSONCache[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := c.cache.Get(ctx, c.key(id))
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		// Drop entries written by an incompatible version.
		_ = c.cache.Delete(ctx, c.key(id))
		return nil, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return &v, nil
}

// Set stores a value with the default TTL.
func (c *JSONCache[T]) Set(ctx context.Context, id string, v *T) error {
	return c.SetWithTTL(ctx, id, v, c.defaultTTL)
}

// SetWithTTL stores a value with a specific TTL. A non-positive TTL is a no-op.
func (c *JSONCache[T]) SetWithTTL(ctx context.Context, id string, v *T, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.cache.Set(ctx, c.key(id), data, ttl)
}

// Delete removes a value.
func (c *JSONCache[T]) Delete(ctx context.Context, id string) error {
	return c.cache.Delete(ctx, c.key(id))
}

// Ping checks if the backing cache is healthy.
func (c *JSONCache[T]) Ping(ctx context.Context) error {
	return c.cache.Ping(ctx)
}

func (c *JSONCache[T]) key(id string) string {
	return c.keyPrefix + id
}
