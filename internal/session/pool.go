package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool runs sessions concurrently. Each session's turns stay sequential;
// sessions share nothing but the results list and the store.
type Pool struct {
	runner  *Runner
	workers int

	// OnResult, when set, is called once per finished session. Calls are
	// serialized.
	OnResult func(Result)
}

func NewPool(runner *Runner, workers int) *Pool {
	return &Pool{runner: runner, workers: workers}
}

// Run executes every task and returns results in task order. A failing
// session never cancels its siblings. Once ctx is done no further session
// starts; the remaining tasks come back failed without touching the
// learner service or the store.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	type indexed struct {
		i int
		r Result
	}

	var (
		mu      sync.Mutex
		results = make([]indexed, 0, len(tasks))
	)

	collect := func(i int, res Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, indexed{i, res})
		if p.OnResult != nil {
			p.OnResult(res)
		}
	}

	var g errgroup.Group
	g.SetLimit(max(1, min(p.workers, len(tasks))))

	for i, task := range tasks {
		if ctx.Err() != nil {
			collect(i, skipped(ctx, task))
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				collect(i, skipped(ctx, task))
				return nil
			}
			collect(i, p.runner.Run(ctx, task))
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, func(a, b indexed) int { return a.i - b.i })

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = r.r
	}
	return out
}

func skipped(ctx context.Context, task Task) Result {
	return Result{Task: task, Err: fmt.Errorf("%w: %w", ErrSessionFailed, ctx.Err())}
}
