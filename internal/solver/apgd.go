package solver

import (
	"context"
	"math"
	"time"

	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/dynamo"
)

const (
	// apgdShrink relaxes the Lipschitz estimate after every accepted step.
	apgdShrink = 0.9
	// apgdMaxBacktrack bounds the step-halving inside one iteration.
	apgdMaxBacktrack = 50
)

// APGD is accelerated projected gradient descent on
//
//	f(λ) = ½·λᵀ·N·λ + λᵀ·r,  N = J·M⁻¹·Jᵀ + E,  r = J·v_free + b
//
// whose gradient N·λ + r is the row violation vector. It uses only the
// matrix-free Schur product, backtracks on the Lipschitz estimate and
// restarts the momentum when the gradient opposes the last step.
// SweepOrder and Omega are ignored.
type APGD struct {
	cfg  Config
	opts options
}

func NewAPGD(cfg Config, opts ...Option) (*APGD, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &APGD{cfg: cfg, opts: buildOptions(opts)}, nil
}

func (s *APGD) Name() string   { return "apgd" }
func (s *APGD) Config() Config { return s.cfg }

func (s *APGD) Solve(ctx context.Context, d *descriptor.Descriptor, free []float64) (res *Result, err error) {
	start := time.Now()
	if err := prepare(d, free); err != nil {
		return nil, err
	}
	ctx, span := startSolveSpan(ctx, "APGD", d.ConstraintCount(), d.Dof())
	defer func() {
		setSolveSpanResult(span, res, err)
		span.End()
	}()

	rows := d.Constraints()
	m := len(rows)
	if m == 0 {
		res = trivial(free)
		s.opts.report(ctx, s.Name(), d, res, start)
		return res, nil
	}

	rhs := make(dynamo.Vector, m)
	if err := d.ConstraintRHS(rhs, free); err != nil {
		return nil, err
	}

	gamma := make(dynamo.Vector, m)
	if s.cfg.WarmStart {
		for i, r := range rows {
			gamma[i] = r.Multiplier()
		}
	}
	project(rows, gamma)

	// f(λ) = ½·λᵀ·(N·λ + 2r)
	objective := func(l, nl dynamo.Vector) float64 {
		return 0.5*l.Dot(nl) + l.Dot(rhs)
	}

	L := 0.0
	for _, r := range rows {
		L = math.Max(L, r.EffectiveMass())
	}
	if L <= 0 {
		L = 1
	}

	y := gamma.Clone()
	x := make(dynamo.Vector, m)
	gy := make(dynamo.Vector, m)
	nx := make(dynamo.Vector, m)
	ny := make(dynamo.Vector, m)
	step := make(dynamo.Vector, m)
	theta := 1.0

	res = &Result{}
	if s.cfg.RecordHistory {
		res.History = make([]float64, 0, s.cfg.MaxIterations)
	}

	for it := 1; it <= s.cfg.MaxIterations; it++ {
		if err := d.SchurTimes(ny, y); err != nil {
			return nil, err
		}
		fy := objective(y, ny)
		// the gradient N·y + r is the violation at y
		copy(gy, ny)
		gy.AddScaled(1, rhs)

		for bt := 0; ; bt++ {
			for i := range x {
				x[i] = y[i] - gy[i]/L
			}
			project(rows, x)
			if err := d.SchurTimes(nx, x); err != nil {
				return nil, err
			}
			for i := range step {
				step[i] = x[i] - y[i]
			}
			bound := fy + gy.Dot(step) + 0.5*L*step.Dot(step)
			if objective(x, nx) <= bound+1e-14*math.Max(1, math.Abs(bound)) || bt >= apgdMaxBacktrack {
				break
			}
			L *= 2
		}

		thetaNext := 0.5 * (-theta*theta + theta*math.Sqrt(theta*theta+4))
		beta := theta * (1 - theta) / (theta*theta + thetaNext)

		delta := 0.0
		restart := 0.0
		for i := range x {
			dx := x[i] - gamma[i]
			delta = math.Max(delta, math.Abs(dx))
			restart += gy[i] * dx
		}
		if restart > 0 {
			copy(y, x)
			thetaNext = 1
		} else {
			for i := range y {
				y[i] = x[i] + beta*(x[i]-gamma[i])
			}
		}
		copy(gamma, x)
		theta = thetaNext
		L *= apgdShrink

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

	// leave the final iterate in the rows and rebuild velocities from it
	project(rows, gamma)
	v := dynamo.Vector(free).Clone()
	for i, r := range rows {
		r.IncrementVelocities(gamma[i], v)
	}
	res.Velocities = v
	finalize(d, res)
	s.opts.report(ctx, s.Name(), d, res, start)
	return res, nil
}

// project clamps l in place. Non-friction rows go first so friction bounds
// read the projected normal multipliers. The projected values are stored
// in the rows.
func project(rows []*constraints.Row, l []float64) {
	for i, r := range rows {
		if r.Kind() != constraints.Friction {
			l[i] = r.Project(l[i])
			r.SetMultiplier(l[i])
		}
	}
	for i, r := range rows {
		if r.Kind() == constraints.Friction {
			l[i] = r.Project(l[i])
			r.SetMultiplier(l[i])
		}
	}
}
