package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docextract/internal/common"
)

const keyPrefix = "doc:"

// RedisCache stores job records as JSON values under doc:<id> with a TTL.
// SET NX gives the atomic create-if-absent the dispatcher relies on; no
// separate lock exists or is needed.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// NewRedisWithClient wraps an existing client; used by tests with miniredis.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) key(id string) string {
	return keyPrefix + id
}

func (c *RedisCache) CreateIfAbsent(ctx context.Context, rec Record) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal status record: %w", err)
	}

	created, err := c.client.SetNX(ctx, c.key(rec.ID), data, c.ttl).Result()
	if err != nil {
		return false, common.WrapUnavailable("status cache", err)
	}
	return created, nil
}

func (c *RedisCache) Set(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status record: %w", err)
	}

	if err := c.client.Set(ctx, c.key(rec.ID), data, c.ttl).Err(); err != nil {
		return common.WrapUnavailable("status cache", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (*Record, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, common.ErrJobNotFound
	}
	if err != nil {
		return nil, common.WrapUnavailable("status cache", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal status record: %w", err)
	}
	return &rec, nil
}

func (c *RedisCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return common.WrapUnavailable("status cache", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
