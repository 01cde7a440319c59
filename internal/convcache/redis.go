package convcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chatgate:conv:"

// Redis is a Store backed by Redis with server-side expiry, for deployments
// where several gateway instances should share conversation reuse.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string

	// TTL is the entry time-to-live (defaults to DefaultTTL).
	TTL time.Duration
}

// NewRedis creates a Redis-backed conversation cache and verifies the
// connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	slog.Info("redis conversation cache connected", "ttl", ttl)

	return &Redis{client: client, ttl: ttl}, nil
}

// Get implements Store. Expiry is handled server-side by Redis.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	id, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get conversation from redis: %w", err)
	}
	return id, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, id string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, id, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation in redis: %w", err)
	}
	return nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation from redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
