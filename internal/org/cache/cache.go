// Package cache serves organization snapshots to the workflow engine without
// hitting the database on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"kycflow/internal/org/models"
	platformredis "kycflow/internal/platform/redis"
	"kycflow/pkg/requestcontext"
)

// GenerationKey counts invalidations across every instance sharing Redis.
var GenerationKey = platformredis.Key("org", "snapshot", "generation")

// SnapshotKey is the Redis key holding the JSON-encoded snapshot loaded during
// the given generation. A load that overlaps an invalidation writes under the
// old generation, where no reader looks any more.
func SnapshotKey(gen int64) string {
	return platformredis.Key("org", "snapshot", strconv.FormatInt(gen, 10))
}

const defaultTTL = 30 * time.Second

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kycflow_org_snapshot_lookups_total",
	Help: "Organization snapshot lookups by the tier that served them",
}, []string{"source"})

// Loader builds a snapshot from the source of truth.
type Loader interface {
	Snapshot(ctx context.Context) (*models.Snapshot, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*models.Snapshot, error)

func (f LoaderFunc) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	return f(ctx)
}

// SnapshotCache layers process memory over Redis over the Loader. Concurrent
// misses collapse into one load.
type SnapshotCache struct {
	loader Loader
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	group      singleflight.Group
	generation atomic.Uint64

	mu       sync.RWMutex
	local    *models.Snapshot
	loadedAt time.Time
}

type Option func(*SnapshotCache)

// WithRedis shares snapshots across instances. Without it only process
// memory is used.
func WithRedis(client *redis.Client) Option {
	return func(c *SnapshotCache) {
		c.redis = client
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *SnapshotCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *SnapshotCache) {
		c.logger = logger
	}
}

func New(loader Loader, opts ...Option) *SnapshotCache {
	c := &SnapshotCache{loader: loader, ttl: defaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a snapshot no older than the TTL.
func (c *SnapshotCache) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	now := time.Now()
	c.mu.RLock()
	if c.local != nil && now.Sub(c.loadedAt) < c.ttl {
		snap := c.local
		c.mu.RUnlock()
		lookups.WithLabelValues("memory").Inc()
		return snap, nil
	}
	c.mu.RUnlock()

	gen := c.generation.Load()
	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		snap, err := c.fetch(ctx, gen)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation.Load() == gen {
			c.local = snap
			c.loadedAt = time.Now()
		}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Snapshot), nil
}

func (c *SnapshotCache) fetch(ctx context.Context, gen uint64) (*models.Snapshot, error) {
	shared := int64(-1)
	if c.redis != nil {
		var err error
		if shared, err = c.sharedGeneration(ctx); err != nil {
			c.warn(ctx, "org snapshot generation read failed", err)
			shared = -1
		}
	}
	if shared >= 0 {
		raw, err := c.redis.Get(ctx, SnapshotKey(shared)).Bytes()
		switch {
		case err == nil:
			var snap models.Snapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				snap.Reindex()
				lookups.WithLabelValues("redis").Inc()
				return &snap, nil
			}
			c.warn(ctx, "discarding undecodable org snapshot", err)
		case !errors.Is(err, redis.Nil):
			c.warn(ctx, "org snapshot redis read failed", err)
		}
	}

	snap, err := c.loader.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	lookups.WithLabelValues("loader").Inc()

	if shared >= 0 && c.generation.Load() == gen {
		raw, err := json.Marshal(snap)
		if err == nil {
			err = c.redis.Set(ctx, SnapshotKey(shared), raw, c.ttl).Err()
		}
		if err != nil {
			c.warn(ctx, "org snapshot redis write failed", err)
		}
	}
	return snap, nil
}

func (c *SnapshotCache) sharedGeneration(ctx context.Context) (int64, error) {
	gen, err := c.redis.Get(ctx, GenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate drops the local copy and advances the shared generation. Loads
// already in flight finish but are neither kept nor served to later callers.
func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	c.mu.Lock()
	c.local = nil
	c.mu.Unlock()
	if c.redis == nil {
		return nil
	}
	gen, err := c.redis.Incr(ctx, GenerationKey).Result()
	if err != nil {
		return err
	}
	return c.redis.Del(ctx, SnapshotKey(gen-1)).Err()
}

func (c *SnapshotCache) warn(ctx context.Context, msg string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
