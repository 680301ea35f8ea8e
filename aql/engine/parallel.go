package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// RunParallel runs independent plans concurrently, at most cfg.Workers at
// a time. Each plan gets its own query context and memory monitor.
// Results are returned in the same order as plans.
//
// The first failure cancels the remaining runs; its error is returned,
// annotated with the index of the failing plan.
func (r *Runner) RunParallel(ctx context.Context, plans []*Plan) ([]*Result, error) {
	results := make([]*Result, len(plans))
	if len(plans) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, p := range plans {
		i, p := i, p
		g.Go(func() error {
			res, err := r.Run(gctx, p)
			if err != nil {
				return errors.Wrapf(err, "parallel run failed at index %d", i)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
