package solver

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"golang.org/x/sync/errgroup"
)

// minColorChunk is the smallest slice of a color group given to one
// worker; smaller groups are relaxed inline.
const minColorChunk = 32

// PSOR is projected Gauss-Seidel with over-relaxation. Each row update is
//
//	λ ← Project(λ − ω·c/g)
//
// where c is the row's current violation and g its effective inverse mass,
// applied to the velocities immediately so later rows see it.
type PSOR struct {
	cfg  Config
	opts options
}

func NewPSOR(cfg Config, opts ...Option) (*PSOR, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PSOR{cfg: cfg, opts: buildOptions(opts)}, nil
}

func (s *PSOR) Name() string   { return "psor" }
func (s *PSOR) Config() Config { return s.cfg }

func (s *PSOR) Solve(ctx context.Context, d *descriptor.Descriptor, free []float64) (res *Result, err error) {
	start := time.Now()
	if err := prepare(d, free); err != nil {
		return nil, err
	}
	ctx, span := startSolveSpan(ctx, "PSOR", d.ConstraintCount(), d.Dof())
	defer func() {
		setSolveSpanResult(span, res, err)
		span.End()
	}()

	rows := d.Constraints()
	if len(rows) == 0 {
		res = trivial(free)
		s.opts.report(ctx, s.Name(), d, res, start)
		return res, nil
	}

	v := dynamo.Vector(free).Clone()
	if s.cfg.WarmStart {
		for _, r := range rows {
			if l := r.Multiplier(); l != 0 {
				r.IncrementVelocities(l, v)
			}
		}
	} else {
		for _, r := range rows {
			r.ResetMultiplier()
		}
	}

	res = &Result{}
	if s.cfg.RecordHistory {
		res.History = make([]float64, 0, s.cfg.MaxIterations)
	}

	sweep, err := s.sweeper(ctx, d)
	if err != nil {
		return nil, err
	}
	for it := 1; it <= s.cfg.MaxIterations; it++ {
		delta, err := sweep(v)
		if err != nil {
			return nil, err
		}
		res.Iterations = it
		res.Residual = delta
		if s.cfg.RecordHistory {
			res.History = append(res.History, delta)
		}
		if delta <= s.cfg.Tolerance {
			res.Converged = true
			break
		}
	}

	res.Velocities = v
	finalize(d, res)
	s.opts.report(ctx, s.Name(), d, res, start)
	return res, nil
}

// relax applies one projected update to r and returns |Δλ|.
func relax(r *constraints.Row, omega float64, v []float64) float64 {
	g := r.EffectiveMass()
	if g <= 0 {
		return 0
	}
	l := r.Multiplier()
	nl := r.Project(l - omega*r.Violation(v)/g)
	dl := nl - l
	if dl == 0 {
		return 0
	}
	r.IncrementVelocities(dl, v)
	r.SetMultiplier(nl)
	return math.Abs(dl)
}

type sweepFunc func(v []float64) (float64, error)

func (s *PSOR) sweeper(ctx context.Context, d *descriptor.Descriptor) (sweepFunc, error) {
	rows := d.Constraints()
	omega := s.cfg.Omega

	switch s.cfg.SweepOrder {
	case Random:
		rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))
		order := make([]int, len(rows))
		for i := range order {
			order[i] = i
		}
		return func(v []float64) (float64, error) {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			worst := 0.0
			for _, i := range order {
				worst = math.Max(worst, relax(rows[i], omega, v))
			}
			return worst, nil
		}, nil

	case Colored:
		groups := d.Coloring()
		workers := s.cfg.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		return func(v []float64) (float64, error) {
			worst := 0.0
			for _, group := range groups {
				delta, err := relaxGroup(ctx, rows, group, omega, v, workers)
				if err != nil {
					return 0, err
				}
				worst = math.Max(worst, delta)
			}
			return worst, nil
		}, nil
	}

	return func(v []float64) (float64, error) {
		worst := 0.0
		for _, r := range rows {
			worst = math.Max(worst, relax(r, omega, v))
		}
		return worst, nil
	}, nil
}

// relaxGroup updates the rows of one color. The rows share no variables,
// so each worker writes a disjoint part of v.
func relaxGroup(ctx context.Context, rows []*constraints.Row, group []int, omega float64, v []float64, workers int) (float64, error) {
	if len(group) < 2*minColorChunk || workers == 1 {
		worst := 0.0
		for _, i := range group {
			worst = math.Max(worst, relax(rows[i], omega, v))
		}
		return worst, nil
	}

	chunk := (len(group) + workers - 1) / workers
	if chunk < minColorChunk {
		chunk = minColorChunk
	}
	n := (len(group) + chunk - 1) / chunk
	deltas := make([]float64, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < n; c++ {
		lo := c * chunk
		hi := min(lo+chunk, len(group))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			worst := 0.0
			for _, i := range group[lo:hi] {
				worst = math.Max(worst, relax(rows[i], omega, v))
			}
			deltas[c] = worst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	worst := 0.0
	for _, d := range deltas {
		worst = math.Max(worst, d)
	}
	return worst, nil
}
