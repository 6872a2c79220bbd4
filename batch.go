package restcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// DefaultBatchConcurrency is the in-flight cap used when a caller passes
// a non-positive concurrency.
const DefaultBatchConcurrency = 5

// Result is the per-item outcome of a batch operation.
type Result[R any] struct {
	Value R
	Err   error
}

// Results holds one Result per input item, in input order.
type Results[R any] []Result[R]

// Err aggregates the failing items into a single error, each prefixed
// with its input index. Returns nil when every item succeeded.
func (rs Results[R]) Err() error {
	var merr *multierror.Error

	for i, r := range rs {
		if r.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("item %d: %w", i, r.Err))
		}
	}

	return merr.ErrorOrNil()
}

// Failed returns the input indices of the failing items.
func (rs Results[R]) Failed() []int {
	var failed []int

	for i, r := range rs {
		if r.Err != nil {
			failed = append(failed, i)
		}
	}

	return failed
}

// BatchFunc performs the operation for one batch item.
type BatchFunc[T, R any] func(ctx context.Context, item T) (R, error)

// RunBatch executes fn for every item with at most concurrency
// operations in flight at any instant. A free slot is refilled as soon
// as it opens rather than waiting for a chunk to drain, which keeps the
// shared rate budget saturated.
//
// One failing item never cancels its siblings; its error lands in its
// Result and the batch proceeds. Results come back in input order
// regardless of completion order. Cancelling ctx stops admitting new
// items — already-admitted operations observe the cancellation through
// their own ctx — and the skipped items' Results carry the context
// error.
func RunBatch[T, R any](
	ctx context.Context,
	items []T,
	concurrency int,
	fn BatchFunc[T, R],
	hooks *Hooks,
) Results[R] {
	if hooks == nil {
		hooks = &Hooks{}
	}
	if concurrency < 1 {
		concurrency = DefaultBatchConcurrency
	}

	results := make(Results[R], len(items))
	sem := semaphore.NewWeighted(int64(concurrency))

	var wg sync.WaitGroup

	for i, item := range items {
		// Blocks until a slot opens; this is the admission queue.
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result[R]{Err: err}
			hooks.emitBatchItemDone(i, err)

			continue
		}

		wg.Add(1)

		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)

			v, err := fn(ctx, item)
			// Each goroutine owns exactly its own index-addressed slot.
			results[i] = Result[R]{Value: v, Err: err}
			hooks.emitBatchItemDone(i, err)
		}(i, item)
	}

	wg.Wait()

	return results
}
