// Package cache provides the optional Redis layer: rendered-post caching
// and social token storage. When Redis is not configured the service runs
// without it; cache misses and cache errors never fail a request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
	"github.com/Sharknia/tuum-prism/internal/notion"
	"github.com/redis/go-redis/v9"
)

// ErrMiss means the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// PostEntry is the cached shape of a fully hydrated post: metadata plus the
// post-externalization block tree. Derived values (TOC, reading time) are
// cheap pure computations and are recomputed on read.
type PostEntry struct {
	Post     notion.Post   `json:"post"`
	Blocks   []block.Block `json:"blocks"`
	CachedAt time.Time     `json:"cachedAt"`
}

// Redis wraps the client with the key scheme and TTL policy.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// NewRedisWithClient wraps an existing client; used by tests.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func postKey(id string) string {
	return "post:" + id
}

// GetPost returns the cached entry for a post id, or ErrMiss.
func (r *Redis) GetPost(ctx context.Context, id string) (PostEntry, error) {
	data, err := r.client.Get(ctx, postKey(id)).Result()
	if err == redis.Nil {
		return PostEntry{}, ErrMiss
	}
	if err != nil {
		return PostEntry{}, fmt.Errorf("get cached post: %w", err)
	}

	var entry PostEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return PostEntry{}, fmt.Errorf("decode cached post: %w", err)
	}
	return entry, nil
}

// SetPost stores a hydrated post under the configured TTL.
func (r *Redis) SetPost(ctx context.Context, id string, entry PostEntry) error {
	entry.CachedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached post: %w", err)
	}
	if err := r.client.Set(ctx, postKey(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set cached post: %w", err)
	}
	return nil
}

// InvalidatePost drops the cached entry, if any.
func (r *Redis) InvalidatePost(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, postKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate cached post: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
