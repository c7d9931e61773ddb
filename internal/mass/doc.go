// Package mass provides the inertial blocks of the solver's coordinate groups.
//
// Every block implements [Block], a small capability interface used by the
// variables layer. The set of kinds is closed:
//
//   - [Body]: 6-DOF rigid body, scalar mass plus 3x3 inertia
//   - [Diagonal]: generic n-DOF diagonal mass
//   - [Dense]: generic n-DOF symmetric positive-definite mass
//   - [Shared]: non-owning reference to a [Body] stored in a [Pool]
//
// Setters validate and recompute the cached inverses together, so forward and
// inverse values never drift apart.
//
// # Shared Mass
//
// A [Pool] owns bodies for populations of identical parts. Mutating a pooled
// body through [Pool.SetMass] or [Pool.SetInertia] changes the effective mass
// of every [Shared] referencing that handle. This is intentional. Two pool
// entries with equal values are still independent.
//
//	pool := mass.NewPool()
//	h, _ := pool.Add(1.0, mgl64.Ident3())
//	a, _ := pool.Ref(h)
//	b, _ := pool.Ref(h)
//	pool.SetMass(h, 2.0) // both a and b now weigh 2
package mass
