package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/internal/platform/config"
)

// KeyPrefix namespaces every key the service writes so a shared Redis can be
// inspected or cleared per application.
const KeyPrefix = "kycflow:"

const pingTimeout = 3 * time.Second

// Client is the go-redis client the org snapshot cache shares across replicas.
type Client struct {
	*redis.Client
}

// Key joins parts under KeyPrefix: Key("org", "snapshot") is
// "kycflow:org:snapshot".
func Key(parts ...string) string {
	return KeyPrefix + strings.Join(parts, ":")
}

// New dials Redis and pings it. It returns nil, nil when no URL is configured
// so the cache runs in-process only.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health backs the /readyz check.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// DeleteNamespace removes every key under KeyPrefix and reports how many were
// deleted. It walks with SCAN so it never blocks the server.
func (c *Client) DeleteNamespace(ctx context.Context) (int, error) {
	var deleted int
	iter := c.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
		deleted += int(n)
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan namespace: %w", err)
	}
	return deleted, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}
