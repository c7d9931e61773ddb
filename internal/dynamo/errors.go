package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for mass, assembly and solver operations.
var (
	// ErrInvalidMass indicates a non-positive or non-finite mass value.
	ErrInvalidMass = errors.New("dynamo: mass must be positive and finite")

	// ErrInvalidInertia indicates an inertia (or dense mass) that is not symmetric positive-definite.
	ErrInvalidInertia = errors.New("dynamo: inertia must be symmetric positive-definite")

	// ErrDanglingReference indicates a constraint referencing variables outside the descriptor.
	ErrDanglingReference = errors.New("dynamo: constraint references variables not in descriptor")

	// ErrDuplicateInsertion indicates the same variables or row were inserted twice.
	ErrDuplicateInsertion = errors.New("dynamo: item inserted more than once")

	// ErrInvalidConfig indicates a solver configuration outside valid bounds.
	ErrInvalidConfig = errors.New("dynamo: invalid solver configuration")

	// ErrDimensionMismatch indicates mismatched vector or jacobian dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrDegenerateSystem indicates a system that cannot be solved as given.
	ErrDegenerateSystem = errors.New("dynamo: degenerate system")

	// ErrUnsupportedConstraint indicates a row kind a solver cannot handle.
	ErrUnsupportedConstraint = errors.New("dynamo: constraint kind not supported by solver")
)

// AssemblyError wraps an error with the location that triggered it during
// descriptor assembly. Row or Variable is -1 when not applicable.
type AssemblyError struct {
	Row      int
	Variable int
	Wrapped  error
}

func (e *AssemblyError) Error() string {
	switch {
	case e.Row >= 0 && e.Variable >= 0:
		return fmt.Sprintf("row %d, variables %d: %v", e.Row, e.Variable, e.Wrapped)
	case e.Row >= 0:
		return fmt.Sprintf("row %d: %v", e.Row, e.Wrapped)
	case e.Variable >= 0:
		return fmt.Sprintf("variables %d: %v", e.Variable, e.Wrapped)
	}
	return e.Wrapped.Error()
}

func (e *AssemblyError) Unwrap() error {
	return e.Wrapped
}
