package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps redis for the engine's advisory concerns: poll locks,
// TTL'd failure counters and a read-side stock cache. Redis is never
// authoritative for stock; the relational store is.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// Incr increments a counter, setting its TTL on first increment. The
// counter lives in redis so multiple engine instances share it.
func (c *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fmt.Sprintf("counter:%s", key))
	pipe.Expire(ctx, fmt.Sprintf("counter:%s", key), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// CacheStockQuantity stores an advisory copy of a product's quantity.
// Read paths may use it for display; mutation paths never do.
func (c *Client) CacheStockQuantity(ctx context.Context, productID int64, quantity int, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("stock:%d", productID), quantity, ttl).Err()
}

// GetCachedStockQuantity retrieves the advisory stock quantity. The
// second return reports a cache hit.
func (c *Client) GetCachedStockQuantity(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("stock:%d", productID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}
