package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/rate_limit.lua
var rateLimitScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb             *redis.Client
	rateLimitScript *redis.Script
	releaseScript   *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return NewFromClient(rdb), nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:             rdb,
		rateLimitScript: redis.NewScript(rateLimitScript),
		releaseScript:   redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetIdempotentResponse returns a cached response stored under key
func (c *Client) GetIdempotentResponse(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// SetIdempotentResponse stores a response under key unless one is already present
func (c *Client) SetIdempotentResponse(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// Allow applies a fixed-window limit to key.
// Returns true if the request fits within limit for the current window.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := c.rateLimitScript.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("ratelimit:%s", key)}, limit, window.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return allowed == 1, nil
}

// RecordPaymentView increments the payment-view counter of an account
func (c *Client) RecordPaymentView(ctx context.Context, accountID string) error {
	return c.rdb.HIncrBy(ctx, fmt.Sprintf("analytics:%s", accountID), "payment_views", 1).Err()
}

// PaymentViews returns the payment-view counter of an account
func (c *Client) PaymentViews(ctx context.Context, accountID string) (int64, error) {
	n, err := c.rdb.HGet(ctx, fmt.Sprintf("analytics:%s", accountID), "payment_views").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// AcquireLock takes a distributed lock. The returned token must be passed to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a lock if it is still held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
