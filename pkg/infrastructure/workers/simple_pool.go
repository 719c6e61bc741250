package workers

import (
	"context"
	"fmt"
	"sync"
)

// SimpleWorkerPool runs per-item work on goroutines with an upper bound on
// how many run at once. A zero or negative limit means one goroutine per item.
type SimpleWorkerPool struct {
	limit int
}

// NewSimpleWorkerPool creates a pool running at most workerCount tasks concurrently.
func NewSimpleWorkerPool(workerCount int) *SimpleWorkerPool {
	return &SimpleWorkerPool{limit: workerCount}
}

// Limit returns the configured concurrency bound.
func (p *SimpleWorkerPool) Limit() int {
	return p.limit
}

// Run calls fn for every index in [0, n) and returns the per-index errors.
// The returned slice always has length n; entries are nil on success.
// Tasks that have not started when ctx is cancelled record ctx.Err().
func (p *SimpleWorkerPool) Run(ctx context.Context, n int, fn func(ctx context.Context, index int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	limit := p.limit
	if limit <= 0 || limit > n {
		limit = n
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				errs[index] = ctx.Err()
				return
			default:
			}

			errs[index] = fn(ctx, index)
		}(i)
	}

	wg.Wait()
	return errs
}

// FirstError returns the first non-nil error, annotated with its index.
func FirstError(errs []error) error {
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// ParallelMap applies fn to every item and returns results in input order.
// Any failure fails the whole call: no partial results are returned.
func ParallelMap[T, R any](ctx context.Context, pool *SimpleWorkerPool, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))

	errs := pool.Run(ctx, len(items), func(ctx context.Context, index int) error {
		result, err := fn(ctx, items[index])
		if err != nil {
			return err
		}
		results[index] = result
		return nil
	})

	if err := FirstError(errs); err != nil {
		return nil, err
	}
	return results, nil
}
