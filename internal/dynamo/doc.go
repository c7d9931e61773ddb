// Package dynamo provides the shared primitives of the multibody solver.
//
// The package defines the vector type and the error taxonomy used by the
// variable, constraint, descriptor and solver layers:
//
//   - [Vector]: dense float64 vector for velocities, forces and multipliers
//   - [ParallelFor]: chunked parallel loop for matrix-free products
//   - sentinel errors such as [ErrInvalidMass] and [ErrDanglingReference]
//   - [AssemblyError]: wraps an assembly failure with its location
//
// # Error Handling
//
// Configuration errors are returned eagerly and should be tested with
// [errors.Is]. Numerical quality is never reported as an error; solvers
// return residuals as data.
//
//	if err := desc.Assemble(); errors.Is(err, dynamo.ErrDanglingReference) {
//	    var ae *dynamo.AssemblyError
//	    errors.As(err, &ae)
//	}
package dynamo
