package sim

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Builder makes an independent simulator for run idx. Descriptors and rows
// are mutated while solving, so every run needs its own.
type Builder func(idx int) (*Simulator, error)

type Ensemble struct {
	build   Builder
	numRuns int
	workers int
}

// NewEnsemble runs numRuns simulators with at most workers in flight. A
// workers value of zero or less means no limit.
func NewEnsemble(build Builder, numRuns, workers int) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, workers: workers}
}

func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, e.numRuns)

	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			s, err := e.build(i)
			if err != nil {
				return err
			}
			res, err := s.Run(gctx)
			if err != nil {
				return err
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
