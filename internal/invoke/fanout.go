package invoke

import (
	"context"
	"sync"

	"github.com/tuneframe/orchestrator/internal/retry"
)

// FanOutResult carries the surviving results of a fan-out in their
// original input order, plus the failure count for observability.
type FanOutResult[T any] struct {
	Values   []T
	Failures int
}

// ItemError is invoked once per retried attempt of one sub-task.
type ItemError func(index int, err error, attempt, retries int)

// FanOut runs every item concurrently, each wrapped in its own retry
// budget, and waits for all of them to settle; a sub-task failure
// never short-circuits its siblings. Sub-tasks that exhaust their
// retries become absent slots. When the number of absent slots
// exceeds maxFailures the whole fan-out fails with no partial
// output; otherwise the present results are returned in input order.
//
// Individual media generations are independent; losing a handful
// should not void an entire multi-item stage.
func FanOut[T any](ctx context.Context, items []func(ctx context.Context) (T, error), retries int, onItemError ItemError, maxFailures int) (*FanOutResult[T], error) {
	slots := make([]*T, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item func(ctx context.Context) (T, error)) {
			defer wg.Done()
			v, err := retry.Do(func() (T, error) {
				return item(ctx)
			}, retries, func(err error, attempt, r int) {
				if onItemError != nil {
					onItemError(i, err, attempt, r)
				}
			})
			if err == nil {
				slots[i] = &v
			}
		}(i, item)
	}
	wg.Wait()

	failures := 0
	for _, s := range slots {
		if s == nil {
			failures++
		}
	}
	if failures > maxFailures {
		return nil, &PartialFanOutError{Failed: failures, Budget: maxFailures, Total: len(items)}
	}

	values := make([]T, 0, len(items)-failures)
	for _, s := range slots {
		if s != nil {
			values = append(values, *s)
		}
	}
	return &FanOutResult[T]{Values: values, Failures: failures}, nil
}
