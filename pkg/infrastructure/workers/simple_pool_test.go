package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelMapPreservesOrder(t *testing.T) {
	pool := NewSimpleWorkerPool(3)
	items := []int{5, 4, 3, 2, 1, 0}

	results, err := ParallelMap(context.Background(), pool, items, func(ctx context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 40, 30, 20, 10, 0}, results)
}

func TestParallelMapFailsWhole(t *testing.T) {
	pool := NewSimpleWorkerPool(2)
	boom := errors.New("boom")

	results, err := ParallelMap(context.Background(), pool, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, results)
}

func TestRunRespectsLimit(t *testing.T) {
	pool := NewSimpleWorkerPool(2)

	var current, peak int32
	errs := pool.Run(context.Background(), 10, func(ctx context.Context, index int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	assert.Len(t, errs, 10)
	assert.NoError(t, FirstError(errs))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunCancelled(t *testing.T) {
	pool := NewSimpleWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := pool.Run(ctx, 3, func(ctx context.Context, index int) error {
		return nil
	})
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
