package experiment

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/acqlab/launcher/api"
	"github.com/acqlab/launcher/internal/gatherer"
)

// RunBatch supervises several experiments concurrently, at most parallel at
// a time. Records come back in definition order. A launch-class failure of
// any run cancels the remaining ones.
func (r *Runner) RunBatch(ctx context.Context, gath gatherer.Gatherer, exps []Experiment, parallel int) ([]api.RunRecord, error) {
	if parallel <= 0 {
		parallel = 1
	}

	records := make([]api.RunRecord, len(exps))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for i, exp := range exps {
		i, exp := i, exp
		g.Go(func() error {
			record, err := r.Run(ctx, gath, exp)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return records, err
	}
	return records, nil
}
