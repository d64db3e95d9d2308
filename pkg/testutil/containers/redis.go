//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"kycflow/internal/platform/config"
	platformredis "kycflow/internal/platform/redis"
)

// RedisContainer runs Redis for the snapshot cache suites. Client is built
// through the service's own constructor so pool settings match production.
type RedisContainer struct {
	Container *tcredis.RedisContainer
	URL       string
	Client    *platformredis.Client
}

// NewRedisContainer starts Redis. The Manager shares it across suites and
// Ryuk reaps it when the test binary exits.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	client, err := platformredis.New(ctx, config.RedisConfig{
		URL:          url,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to redis: %v", err)
	}

	return &RedisContainer{
		Container: container,
		URL:       url,
		Client:    client,
	}
}

// Reset clears the service namespace between tests.
func (r *RedisContainer) Reset(ctx context.Context) error {
	_, err := r.Client.DeleteNamespace(ctx)
	return err
}
