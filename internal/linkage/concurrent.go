package linkage

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LinkConcurrent applies the same rule as Link using up to workers goroutines.
// Records are independent, so the outcome matches Link exactly.
func LinkConcurrent(ctx context.Context, cases []*TestCase, knownIDs []string, workers int) (Result, error) {
	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Link(cases, knownIDs)
	}
	if err := validate(cases, knownIDs); err != nil {
		return Result{}, err
	}

	res := Result{Total: len(cases), DefaultID: knownIDs[0]}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tc := range cases {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if apply(tc, res.DefaultID) {
				mu.Lock()
				res.AutoLinked = append(res.AutoLinked, i)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	sort.Ints(res.AutoLinked)
	return res, nil
}
