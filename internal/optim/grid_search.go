// Package optim searches solver settings for the cheapest converging solve.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/mbsolve/internal/config"
	"github.com/san-kum/mbsolve/internal/experiment"
)

// Apply sets one named knob on a config.
type Apply func(cfg *config.Config, value float64)

// Knobs maps the searchable names to their setters. Names not listed here
// are treated as scenario params.
var Knobs = map[string]Apply{
	"omega":      func(c *config.Config, v float64) { c.Solve.Omega = v },
	"tolerance":  func(c *config.Config, v float64) { c.Solve.Tolerance = v },
	"iterations": func(c *config.Config, v float64) { c.Solve.MaxIterations = int(v) },
	"dt":         func(c *config.Config, v float64) { c.Dt = v },
}

func apply(cfg *config.Config, name string, value float64) {
	if fn, ok := Knobs[name]; ok {
		fn(cfg, value)
		return
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]float64)
	}
	cfg.Params[name] = value
}

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	metric     string
}

// NewGridSearch searches the cartesian product of ranges and minimizes the
// named run metric, for example "mean_iterations".
func NewGridSearch(params []string, ranges [][]float64, metric string) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("grid search: %d params, %d ranges", len(params), len(ranges))
	}
	return &GridSearch{paramNames: params, ranges: ranges, metric: metric}, nil
}

// Search runs every grid point from base and returns the trials sorted by
// score, best first. Failed points keep their error and score +Inf.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, registry *experiment.Registry) ([]Trial, error) {
	if registry == nil {
		registry = experiment.NewRegistry()
	}
	var trials []Trial
	if err := g.searchRecursive(ctx, 0, map[string]float64{}, base, registry, &trials); err != nil {
		return nil, err
	}
	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Score < trials[j].Score })
	return trials, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, base *config.Config, registry *experiment.Registry, trials *[]Trial) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		*trials = append(*trials, g.evaluate(ctx, current, base, registry))
		return nil
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[name] = val
		if err := g.searchRecursive(ctx, depth+1, next, base, registry, trials); err != nil {
			return err
		}
	}
	return nil
}

func (g *GridSearch) evaluate(ctx context.Context, params map[string]float64, base *config.Config, registry *experiment.Registry) Trial {
	trial := Trial{Params: params, Score: math.Inf(1)}
	cfg := base.Clone()
	for name, val := range params {
		apply(cfg, name, val)
	}
	exp := experiment.New(cfg, registry)
	if trial.Err = exp.Setup(nil, registry.DefaultMetrics()); trial.Err != nil {
		return trial
	}
	result, err := exp.Run(ctx)
	if err != nil {
		trial.Err = err
		return trial
	}
	if len(result.Errors) > 0 {
		trial.Err = result.Errors[0]
		return trial
	}
	if v, ok := result.Metrics[g.metric]; ok {
		trial.Score = v
	} else {
		trial.Err = fmt.Errorf("grid search: run has no metric %q", g.metric)
	}
	return trial
}
