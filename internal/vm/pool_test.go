package vm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), PoolConfig{Size: 2})
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)

	h, err := c.EvalCode(ctx, "globalThis.leftover = 1; 42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.Dump(h))

	require.NoError(t, pool.Release(c))
	assert.False(t, h.Alive())

	// Released contexts come back clean
	c, err = pool.Acquire(ctx)
	require.NoError(t, err)
	res, err := c.EvalCode(ctx, "typeof leftover")
	require.NoError(t, err)
	assert.Equal(t, "undefined", c.Dump(res))
	require.NoError(t, pool.Release(c))
}

func TestPoolExhaustion(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), PoolConfig{Size: 1, AcquireTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer pool.Close()

	c, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, pool.Release(c))
}

func TestPoolConcurrentUse(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), PoolConfig{Size: 3})
	require.NoError(t, err)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := pool.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer pool.Release(c)

			h, err := c.EvalCode(context.Background(), "[1, 2, 3].reduce((a, b) => a + b)")
			if assert.NoError(t, err) {
				assert.Equal(t, int64(6), c.Dump(h))
			}
		}()
	}
	wg.Wait()

	stats := pool.Stats()
	assert.Equal(t, 3, stats["available"])
	assert.Equal(t, 0, stats["in_use"])
}

func TestPoolClose(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), PoolConfig{Size: 2})
	require.NoError(t, err)

	c, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	require.NoError(t, pool.Release(c))
	assert.True(t, c.Closed())
	assert.Equal(t, true, pool.Stats()["closed"])
}
