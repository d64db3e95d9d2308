package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/org/models"
)

type countingLoader struct {
	calls atomic.Int32
	delay time.Duration
}

func (l *countingLoader) Snapshot(context.Context) (*models.Snapshot, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	return models.NewSnapshot([]models.Role{{Name: "Officer", Order: 1}}, nil, nil, time.Now()), nil
}

func TestSnapshotCache_ServesFromMemoryWithinTTL(t *testing.T) {
	loader := &countingLoader{}
	c := New(loader, WithTTL(time.Minute))

	first, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestSnapshotCache_CollapsesConcurrentLoads(t *testing.T) {
	loader := &countingLoader{delay: 50 * time.Millisecond}
	c := New(loader)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Snapshot(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestSnapshotCache_InvalidateForcesReload(t *testing.T) {
	loader := &countingLoader{}
	c := New(loader, WithTTL(time.Minute))

	_, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(context.Background()))
	_, err = c.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), loader.calls.Load())
}

// heldLoader blocks its first load until released, reporting the role order
// it read before blocking.
type heldLoader struct {
	order   atomic.Int32
	held    atomic.Bool
	started chan struct{}
	release chan struct{}
}

func newHeldLoader(order int32) *heldLoader {
	l := &heldLoader{started: make(chan struct{}), release: make(chan struct{})}
	l.order.Store(order)
	l.held.Store(true)
	return l
}

func (l *heldLoader) Snapshot(context.Context) (*models.Snapshot, error) {
	order := int(l.order.Load())
	if l.held.CompareAndSwap(true, false) {
		close(l.started)
		<-l.release
	}
	return models.NewSnapshot([]models.Role{{Name: "Officer", Order: order}}, nil, nil, time.Now()), nil
}

func TestSnapshotCache_InvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	loader := newHeldLoader(1)
	c := New(loader, WithTTL(time.Minute))

	stale := make(chan *models.Snapshot, 1)
	go func() {
		snap, _ := c.Snapshot(ctx)
		stale <- snap
	}()
	<-loader.started

	loader.order.Store(2)
	require.NoError(t, c.Invalidate(ctx))

	fresh, err := c.Snapshot(ctx)
	require.NoError(t, err)
	role, ok := fresh.Role("Officer")
	require.True(t, ok)
	assert.Equal(t, 2, role.Order, "callers after invalidation do not join the old load")

	close(loader.release)
	old := <-stale
	role, _ = old.Role("Officer")
	assert.Equal(t, 1, role.Order)

	again, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, fresh, again, "the overlapping load is not kept")
}
