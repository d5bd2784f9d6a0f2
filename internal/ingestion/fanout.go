package ingestion

import (
	"context"
	"errors"
	"sync"
)

// Gather runs unit once per index, each in its own goroutine, waits for all
// of them and concatenates their results in index order. A unit reports its
// own failures and returns nothing; it never stops its siblings.
func Gather[T any](ctx context.Context, n int, unit func(ctx context.Context, i int) []T) []T {
	slots := make([][]T, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slots[i] = unit(ctx, i)
		}(i)
	}
	wg.Wait()

	var out []T
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

// GatherAll runs unit once per index concurrently and waits for all of them.
// The results come back in index order only if every unit succeeded;
// otherwise the joined errors are returned.
func GatherAll[T any](ctx context.Context, n int, unit func(ctx context.Context, i int) (T, error)) ([]T, error) {
	results := make([]T, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = unit(ctx, i)
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}
