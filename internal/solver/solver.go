package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/metrics"
)

// Solver computes velocities and multipliers for a descriptor given the
// unconstrained velocities. An unassembled descriptor is assembled first.
// Running out of iterations is not an error: the result reports
// Converged false with the final residual.
type Solver interface {
	Name() string
	Solve(ctx context.Context, d *descriptor.Descriptor, free []float64) (*Result, error)
}

type Result struct {
	Velocities  []float64
	Multipliers []float64
	Iterations  int
	// Residual is the largest multiplier change of the last iteration, or
	// max |K·x - rhs| for the direct solver.
	Residual float64
	// Violation is the largest per-row complementarity error at exit.
	Violation float64
	Converged bool
	// History holds the residual of every iteration when
	// Config.RecordHistory is set.
	History []float64
}

type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder metrics.Recorder
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder reports every finished solve to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// prepare assembles d when needed, refreshes its row caches from the
// current masses and checks free against its size.
func prepare(d *descriptor.Descriptor, free []float64) error {
	if d == nil {
		return fmt.Errorf("nil descriptor: %w", dynamo.ErrDegenerateSystem)
	}
	if !d.Assembled() {
		if err := d.Assemble(); err != nil {
			return err
		}
	} else if err := d.Refresh(); err != nil {
		return err
	}
	if len(free) != d.Dof() {
		return fmt.Errorf("free velocities length %d, dof %d: %w", len(free), d.Dof(), dynamo.ErrDimensionMismatch)
	}
	if !dynamo.Vector(free).IsValid() {
		return fmt.Errorf("free velocities contain NaN or Inf: %w", dynamo.ErrDegenerateSystem)
	}
	return nil
}

// trivial is the result for a system without active rows: the free
// velocities are already admissible.
func trivial(free []float64) *Result {
	return &Result{
		Velocities:  dynamo.Vector(free).Clone(),
		Multipliers: []float64{},
		Converged:   true,
	}
}

// finalize refreshes per-row residuals and fills the result's violation
// and multipliers from the rows.
func finalize(d *descriptor.Descriptor, res *Result) {
	worst := 0.0
	for _, r := range d.Constraints() {
		e := r.ComplementarityError(r.Violation(res.Velocities))
		r.SetResidual(e)
		worst = math.Max(worst, e)
	}
	res.Violation = worst
	res.Multipliers = d.Multipliers()
}

func (o options) report(ctx context.Context, name string, d *descriptor.Descriptor, res *Result, start time.Time) {
	elapsed := time.Since(start)
	attrs := []any{
		slog.String("solver", name),
		slog.Int("rows", d.ConstraintCount()),
		slog.Int("dof", d.Dof()),
		slog.Int("iterations", res.Iterations),
		slog.Float64("residual", res.Residual),
	}
	if res.Converged {
		o.logger.DebugContext(ctx, "solve finished", attrs...)
	} else {
		o.logger.WarnContext(ctx, "solve did not converge", attrs...)
	}
	if o.recorder != nil {
		o.recorder.ObserveSolve(name, res.Iterations, res.Residual, res.Converged, elapsed)
	}
}
