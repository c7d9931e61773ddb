// Package constraints implements scalar constraint rows coupling one or two
// variable groups through a velocity-level jacobian.
//
// Sign conventions: a multiplier λ acts on the bodies as v += M⁻¹·Jᵀ·λ, and
// the row's violation is c = J·v + b + cfm·λ. A contact row is satisfied when
// c ≥ 0 (separating) and pushes with λ ≥ 0.
//
// Row kinds form a closed set:
//
//   - [Equality]: bilateral joint row, λ free, c = 0
//   - [Unilateral]: contact normal, 0 ≤ λ ⟂ c ≥ 0
//   - [Friction]: |λ| ≤ μ·λn, where λn is the current multiplier of a named
//     normal row
//   - [Box]: fixed finite bounds lo ≤ λ ≤ hi, e.g. a torque-limited motor
package constraints
