package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection used for policy snapshots.
// Fields can be populated from environment variables via github.com/caarlos0/env.
type RedisConfig struct {
	ConnectionURL  string        `env:"ROLLOUT_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SnapshotKey    string        `env:"ROLLOUT_REDIS_SNAPSHOT_KEY" envDefault:"rollout:policy"`
	ConnectTimeout time.Duration `env:"ROLLOUT_REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// RedisSnapshotter persists the policy as a JSON blob under a single Redis
// key. Suited for deployments that already run Redis and want snapshots to
// survive host replacement, not just process restarts.
type RedisSnapshotter struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshotter wraps an existing Redis client.
func NewRedisSnapshotter(client *redis.Client, key string) (*RedisSnapshotter, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if key == "" {
		key = "rollout:policy"
	}
	return &RedisSnapshotter{client: client, key: key}, nil
}

// ConnectRedisSnapshotter dials Redis from config and verifies the connection
// with a ping before returning a snapshotter.
func ConnectRedisSnapshotter(ctx context.Context, cfg RedisConfig) (*RedisSnapshotter, error) {
	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	return NewRedisSnapshotter(client, cfg.SnapshotKey)
}

// Save stores the policy under the configured key. No TTL: the snapshot stays
// valid until the next publish replaces it.
func (r *RedisSnapshotter) Save(ctx context.Context, p *Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Load reads the last persisted policy.
func (r *RedisSnapshotter) Load(ctx context.Context) (*Policy, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if p.Features == nil {
		p.Features = make(map[string]Rule)
	}
	return &p, nil
}

// Close closes the underlying Redis client.
func (r *RedisSnapshotter) Close() error {
	return r.client.Close()
}
