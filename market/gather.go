package market

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// gatherLimit bounds concurrent chain and gateway reads per view assembly.
const gatherLimit = 8

type outcome[T any] struct {
	value T
	err   error
}

// gatherAll runs fn for every index and settles all of them. Individual
// failures are captured per index rather than cancelling the group, so one
// bad record never sinks a whole view.
func gatherAll[T any](ctx context.Context, n int, fn func(context.Context, int) (T, error)) []outcome[T] {
	results := make([]outcome[T], n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(gatherLimit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := fn(ctx, i)
			results[i] = outcome[T]{value: v, err: err}
			return nil
		})
	}
	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()
	return results
}
