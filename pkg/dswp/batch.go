package dswp

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-dswp/pkg/candidate"
)

// Outcome is the result of one candidate file in a batch. Err is set when
// the file failed to load or any phase failed; other candidates still run.
type Outcome struct {
	Path   string
	Result *Result
	Err    error
}

// ApplyFiles loads and runs every file, at most parallelism at a time
// (GOMAXPROCS when <= 0). Outcomes follow the order of paths. Only
// cancellation of ctx is returned as an error.
func (d *Driver) ApplyFiles(ctx context.Context, paths []string, parallelism int) ([]Outcome, error) {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]Outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, path := range paths {
		outcomes[i].Path = path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c, err := candidate.Load(path)
			if err != nil {
				outcomes[i].Err = err
				return nil
			}
			res, err := d.Apply(gctx, c)
			outcomes[i].Result, outcomes[i].Err = res, err
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, ctx.Err()
}
