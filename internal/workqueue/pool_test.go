package workqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPool(3)
	p.Start(ctx)

	var done atomic.Int64
	for i := 0; i < 50; i++ {
		p.Submit(i%4, func(ctx context.Context) { done.Add(1) })
	}

	require.NoError(t, p.Wait(ctx))
	assert.Equal(t, int64(50), done.Load())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, p.Running())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPool(2)
	p.Start(ctx)

	var active, peak atomic.Int64
	for i := 0; i < 10; i++ {
		p.Submit(0, func(ctx context.Context) {
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		})
	}

	require.NoError(t, p.Wait(ctx))
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestPoolPriorityOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPool(1)
	p.Pause()
	p.Start(ctx)

	var mu sync.Mutex
	var order []int
	for _, prio := range []int{1, 3, 2, 3, -1} {
		prio := prio
		p.Submit(prio, func(ctx context.Context) {
			mu.Lock()
			order = append(order, prio)
			mu.Unlock()
		})
	}
	p.Resume()

	require.NoError(t, p.Wait(ctx))
	assert.Equal(t, []int{3, 3, 2, 1, -1}, order)
}

func TestPoolPauseHoldsTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPool(2)
	p.Start(ctx)
	p.Pause()
	assert.True(t, p.Paused())

	var done atomic.Int64
	p.Submit(0, func(ctx context.Context) { done.Add(1) })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), done.Load(), "paused pool must not start tasks")
	assert.Equal(t, 1, p.Len())

	resumed := make(chan error, 1)
	go func() { resumed <- p.WaitResumed(ctx) }()
	p.Resume()
	require.NoError(t, <-resumed)

	require.NoError(t, p.Wait(ctx))
	assert.Equal(t, int64(1), done.Load())
}

func TestPoolWaitHonorsContext(t *testing.T) {
	p := NewPool(1)
	p.Submit(0, func(ctx context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded, "unstarted pool never drains")
}
