package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/sparse"
	"gonum.org/v1/gonum/mat"
)

// Direct solves the KKT system of an equality-only descriptor with a dense
// LU factorization. It is a diagnostic reference for the iterative
// solvers and scales cubically with the system size.
type Direct struct {
	opts options
}

func NewDirect(opts ...Option) *Direct {
	return &Direct{opts: buildOptions(opts)}
}

func (s *Direct) Name() string { return "direct" }

func (s *Direct) Solve(ctx context.Context, d *descriptor.Descriptor, free []float64) (res *Result, err error) {
	start := time.Now()
	if err := prepare(d, free); err != nil {
		return nil, err
	}
	ctx, span := startSolveSpan(ctx, "Direct", d.ConstraintCount(), d.Dof())
	defer func() {
		setSolveSpanResult(span, res, err)
		span.End()
	}()

	rows := d.Constraints()
	for i, r := range rows {
		if r.Kind() != constraints.Equality {
			return nil, fmt.Errorf("direct solver: row %d is %s: %w", i, r.Kind(), dynamo.ErrUnsupportedConstraint)
		}
	}
	if len(rows) == 0 {
		res = trivial(free)
		s.opts.report(ctx, s.Name(), d, res, start)
		return res, nil
	}

	kkt, rhs, err := d.KKT(free)
	if err != nil {
		return nil, err
	}
	n := d.Dof()
	size := n + len(rows)

	var lu mat.LU
	lu.Factorize(kkt.ToDense())
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(size, rhs)); err != nil {
		return nil, fmt.Errorf("direct solver: %v: %w", err, dynamo.ErrDegenerateSystem)
	}

	raw := x.RawVector().Data
	res = &Result{
		Velocities: append([]float64(nil), raw[:n]...),
		Iterations: 1,
		Residual:   kktResidual(kkt, raw, rhs),
		Converged:  true,
	}
	if err := d.SetMultipliers(raw[n:size]); err != nil {
		return nil, err
	}
	finalize(d, res)
	s.opts.report(ctx, s.Name(), d, res, start)
	return res, nil
}

// kktResidual is max |K·x - rhs| of the factorized solution.
func kktResidual(kkt *sparse.COO, x, rhs []float64) float64 {
	kx := make([]float64, len(x))
	kkt.MulVec(kx, x)
	worst := 0.0
	for i := range rhs {
		worst = math.Max(worst, math.Abs(kx[i]-rhs[i]))
	}
	return worst
}
