package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Factory builds a fresh Simulator for one request. Simulators carry
// metric state, so ensemble members never share one.
type Factory func() *Simulator

// Ensemble runs independent requests concurrently.
type Ensemble struct {
	factory Factory
	workers int
}

func NewEnsemble(factory Factory, workers int) *Ensemble {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Ensemble{factory: factory, workers: workers}
}

// Run returns one trajectory per request, in request order. The first
// failure cancels the remaining runs and is returned.
func (e *Ensemble) Run(ctx context.Context, reqs []Request) ([]*Trajectory, error) {
	results := make([]*Trajectory, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			tr, err := e.factory().Run(gctx, req)
			if err != nil {
				return err
			}
			results[i] = tr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
