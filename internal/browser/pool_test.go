package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agito/internal/metrics"
	"github.com/ternarybob/agito/internal/models"
)

// newTestPool builds a pool whose instances are plain cancellable contexts
// instead of Chrome processes.
func newTestPool(config PoolConfig) (*Pool, *atomic.Int64) {
	pool := NewPool(config, metrics.NoopSink{}, arbor.NewLogger())

	var created atomic.Int64
	pool.newInstance = func(ctx context.Context) (*instance, error) {
		created.Add(1)
		browserCtx, cancel := context.WithCancel(context.Background())
		return &instance{browserCtx: browserCtx, browserCancel: cancel}, nil
	}
	return pool, &created
}

func TestPoolAcquireAndReuse(t *testing.T) {
	pool, created := newTestPool(PoolConfig{MaxInstances: 2, AcquireTimeout: time.Second})
	ctx := context.Background()

	worker, release, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, worker)

	stats := pool.Stats()
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, 2, stats.MaxInstances)

	release()
	assert.Equal(t, 0, pool.Stats().InUse)

	// A released healthy instance is reused, not recreated
	_, release2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer release2()

	assert.Equal(t, int64(1), created.Load())
}

func TestPoolEnforcesMaxInstances(t *testing.T) {
	pool, _ := newTestPool(PoolConfig{MaxInstances: 2, AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	_, release1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer release1()

	_, release2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer release2()

	_, _, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPoolExhausted))
}

func TestPoolBlockedAcquireUnblocksOnRelease(t *testing.T) {
	pool, _ := newTestPool(PoolConfig{MaxInstances: 1, AcquireTimeout: 2 * time.Second})
	ctx := context.Background()

	_, release, err := pool.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, release2, err := pool.Acquire(ctx)
		if err == nil {
			release2()
		}
		acquired <- err
	}()

	// Give the waiter time to block on the pool before freeing the slot
	time.Sleep(50 * time.Millisecond)
	release()

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting Acquire never unblocked after release")
	}
	wg.Wait()
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	pool, _ := newTestPool(PoolConfig{MaxInstances: 1, AcquireTimeout: 100 * time.Millisecond})
	ctx := context.Background()

	_, release, err := pool.Acquire(ctx)
	require.NoError(t, err)

	release()
	release()
	release()

	assert.Equal(t, 0, pool.Stats().InUse)

	// A doubled release must not mint extra capacity
	_, release2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer release2()

	_, _, err = pool.Acquire(ctx)
	assert.True(t, errors.Is(err, models.ErrPoolExhausted))
}

func TestPoolDiscardsUnhealthyInstance(t *testing.T) {
	pool, created := newTestPool(PoolConfig{MaxInstances: 1, AcquireTimeout: time.Second})
	ctx := context.Background()

	worker, release, err := pool.Acquire(ctx)
	require.NoError(t, err)

	// Kill the browser context mid-lease, as a crashed Chrome would
	worker.(*Worker).inst.browserCancel()
	release()

	_, release2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer release2()

	assert.Equal(t, int64(2), created.Load(), "unhealthy instance should be replaced, not reused")
}

func TestPoolCreateFailureReturnsSlot(t *testing.T) {
	pool, _ := newTestPool(PoolConfig{MaxInstances: 1, AcquireTimeout: time.Second})

	boom := errors.New("chrome exploded")
	pool.newInstance = func(ctx context.Context) (*instance, error) {
		return nil, boom
	}

	_, _, err := pool.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	// The failed acquire must not leak its slot
	pool.newInstance = func(ctx context.Context) (*instance, error) {
		browserCtx, cancel := context.WithCancel(context.Background())
		return &instance{browserCtx: browserCtx, browserCancel: cancel}, nil
	}

	_, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestPoolAcquireAfterShutdown(t *testing.T) {
	pool, _ := newTestPool(PoolConfig{MaxInstances: 1, AcquireTimeout: time.Second})

	_, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	release()

	require.NoError(t, pool.Shutdown())

	_, _, err = pool.Acquire(context.Background())
	require.Error(t, err)

	// Shutdown is idempotent
	require.NoError(t, pool.Shutdown())
}

func TestPoolAcquireHonorsCallerCancellation(t *testing.T) {
	pool, _ := newTestPool(PoolConfig{MaxInstances: 1, AcquireTimeout: 5 * time.Second})

	_, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPoolWarmCreatesIdleInstances(t *testing.T) {
	pool, created := newTestPool(PoolConfig{MaxInstances: 3, AcquireTimeout: time.Second})

	require.NoError(t, pool.Warm(context.Background(), 2))
	assert.Equal(t, int64(2), created.Load())

	_, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	release()

	// Warmed instances serve leases without new launches
	assert.Equal(t, int64(2), created.Load())
}

func TestPoolConcurrentAcquireNeverExceedsBound(t *testing.T) {
	const max = 3
	pool, _ := newTestPool(PoolConfig{MaxInstances: max, AcquireTimeout: 5 * time.Second})

	var peak atomic.Int64
	var current atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, release, err := pool.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			release()
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(max))
}
