package repository

import (
	"context"
	"fmt"
	"time"

	"rezerva/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisDeliveryCache keeps enqueue idempotency markers and cached
// artifact paths in Redis with a TTL.
type RedisDeliveryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisDeliveryCache(client *redis.Client, ttl time.Duration) *RedisDeliveryCache {
	return &RedisDeliveryCache{
		client: client,
		ttl:    ttl,
	}
}

// MarkEnqueued sets the idempotency marker for a transaction. It returns
// false when the marker already existed, meaning a job for this
// transaction was enqueued within the TTL window.
func (r *RedisDeliveryCache) MarkEnqueued(ctx context.Context, transactionID string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("delivery:enqueued:%s", transactionID)
	ok, err := r.client.SetNX(ctx, key, time.Now().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set enqueue marker: %w", err)
	}
	return ok, nil
}

// ArtifactPath returns the cached voucher path for a booking, or "" when
// none is cached.
func (r *RedisDeliveryCache) ArtifactPath(ctx context.Context, bookingID int64) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("delivery:artifact:%d", bookingID)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get artifact path from redis: %w", err)
	}
	return val, nil
}

// SetArtifactPath caches the voucher path for a booking.
func (r *RedisDeliveryCache) SetArtifactPath(ctx context.Context, bookingID int64, path string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("delivery:artifact:%d", bookingID)
	if err := r.client.Set(ctx, key, path, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set artifact path in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
