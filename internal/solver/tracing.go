package solver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("mbsolve/solver")

func startSolveSpan(ctx context.Context, name string, rows, dof int) (context.Context, trace.Span) {
	return tracer.Start(ctx, name+".Solve",
		trace.WithAttributes(
			attribute.Int("solver.rows", rows),
			attribute.Int("solver.dof", dof),
		),
	)
}

func setSolveSpanResult(span trace.Span, res *Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("solver.iterations", res.Iterations),
		attribute.Float64("solver.residual", res.Residual),
		attribute.Bool("solver.converged", res.Converged),
	)
}
