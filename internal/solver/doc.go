// Package solver computes constraint multipliers for an assembled
// descriptor.
//
// All solvers share one sign convention: an impulse λ on row i changes the
// velocities by M⁻¹·J_iᵀ·λ, and the row is satisfied when its violation
// c_i = J_i·v + b_i + cfm_i·λ_i meets the complementarity condition of its
// kind. PSOR is the reference solver; APGD trades per-row updates for whole
// vector steps; Direct factors the KKT matrix and is limited to equality
// rows.
package solver
