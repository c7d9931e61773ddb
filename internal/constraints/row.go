package constraints

import (
	"fmt"
	"math"

	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/variables"
)

type Kind int

const (
	Equality Kind = iota
	Unilateral
	Friction
	Box
)

func (k Kind) String() string {
	switch k {
	case Equality:
		return "equality"
	case Unilateral:
		return "unilateral"
	case Friction:
		return "friction"
	case Box:
		return "box"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Segment is the jacobian block of a row for one variable group.
type Segment struct {
	Vars     *variables.Variables
	Jacobian []float64
}

type Row struct {
	kind     Kind
	segs     []Segment
	invMJt   [][]float64
	g        float64
	lambda   float64
	lo, hi   float64
	mu       float64
	normal   *Row
	bias     float64
	cfm      float64
	residual float64
	disabled bool
	name     string
}

func newRow(kind Kind, segs []Segment) (*Row, error) {
	if len(segs) == 0 || len(segs) > 2 {
		return nil, fmt.Errorf("row needs one or two segments, got %d: %w", len(segs), dynamo.ErrDimensionMismatch)
	}
	r := &Row{
		kind:   kind,
		segs:   make([]Segment, len(segs)),
		invMJt: make([][]float64, len(segs)),
		lo:     math.Inf(-1),
		hi:     math.Inf(1),
	}
	for i, s := range segs {
		if s.Vars == nil {
			return nil, fmt.Errorf("segment %d has no variables: %w", i, dynamo.ErrDanglingReference)
		}
		if len(s.Jacobian) != s.Vars.Dof() {
			return nil, fmt.Errorf("segment %d jacobian length %d, dof %d: %w",
				i, len(s.Jacobian), s.Vars.Dof(), dynamo.ErrDimensionMismatch)
		}
		r.segs[i] = Segment{Vars: s.Vars, Jacobian: append([]float64(nil), s.Jacobian...)}
		r.invMJt[i] = make([]float64, len(s.Jacobian))
	}
	if len(segs) == 2 && segs[0].Vars == segs[1].Vars {
		return nil, fmt.Errorf("row couples variables with itself: %w", dynamo.ErrDimensionMismatch)
	}
	return r, nil
}

// NewEquality returns a bilateral row enforcing J·v + b = 0.
func NewEquality(segs ...Segment) (*Row, error) {
	return newRow(Equality, segs)
}

// NewContact returns a unilateral non-penetration row.
func NewContact(segs ...Segment) (*Row, error) {
	r, err := newRow(Unilateral, segs)
	if err != nil {
		return nil, err
	}
	r.lo = 0
	return r, nil
}

// NewFriction returns a tangential row bounded by mu times the multiplier
// of normal.
func NewFriction(normal *Row, mu float64, segs ...Segment) (*Row, error) {
	if normal == nil || normal.kind != Unilateral {
		return nil, fmt.Errorf("friction row needs a unilateral normal row: %w", dynamo.ErrDanglingReference)
	}
	if !(mu >= 0) || math.IsInf(mu, 0) {
		return nil, fmt.Errorf("friction coefficient %g: %w", mu, dynamo.ErrInvalidConfig)
	}
	r, err := newRow(Friction, segs)
	if err != nil {
		return nil, err
	}
	r.normal = normal
	r.mu = mu
	return r, nil
}

// NewBox returns a row with fixed multiplier bounds.
func NewBox(lo, hi float64, segs ...Segment) (*Row, error) {
	r, err := newRow(Box, segs)
	if err != nil {
		return nil, err
	}
	if err := r.SetBounds(lo, hi); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Row) Kind() Kind             { return r.kind }
func (r *Row) Segments() []Segment    { return r.segs }
func (r *Row) Normal() *Row           { return r.normal }
func (r *Row) Friction() float64      { return r.mu }
func (r *Row) Bias() float64          { return r.bias }
func (r *Row) Compliance() float64    { return r.cfm }
func (r *Row) Multiplier() float64    { return r.lambda }
func (r *Row) Residual() float64      { return r.residual }
func (r *Row) EffectiveMass() float64 { return r.g }
func (r *Row) Name() string           { return r.name }

func (r *Row) SetName(n string)        { r.name = n }
func (r *Row) SetBias(b float64)       { r.bias = b }
func (r *Row) SetMultiplier(l float64) { r.lambda = l }
func (r *Row) ResetMultiplier()        { r.lambda = 0 }
func (r *Row) SetResidual(res float64) { r.residual = res }
func (r *Row) SetDisabled(d bool)      { r.disabled = d }

func (r *Row) SetCompliance(cfm float64) error {
	if !(cfm >= 0) || math.IsInf(cfm, 0) {
		return fmt.Errorf("compliance %g: %w", cfm, dynamo.ErrInvalidConfig)
	}
	r.cfm = cfm
	return nil
}

func (r *Row) SetFriction(mu float64) error {
	if r.kind != Friction {
		return fmt.Errorf("set friction on %s row: %w", r.kind, dynamo.ErrUnsupportedConstraint)
	}
	if !(mu >= 0) || math.IsInf(mu, 0) {
		return fmt.Errorf("friction coefficient %g: %w", mu, dynamo.ErrInvalidConfig)
	}
	r.mu = mu
	return nil
}

// SetBounds changes the limits of a Box row.
func (r *Row) SetBounds(lo, hi float64) error {
	if r.kind != Box {
		return fmt.Errorf("set bounds on %s row: %w", r.kind, dynamo.ErrUnsupportedConstraint)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return fmt.Errorf("bounds [%g, %g]: %w", lo, hi, dynamo.ErrInvalidConfig)
	}
	r.lo, r.hi = lo, hi
	return nil
}

// IsActive reports whether the row takes part in the next assembly.
func (r *Row) IsActive() bool {
	if r.disabled {
		return false
	}
	for _, s := range r.segs {
		if s.Vars.IsActive() {
			return true
		}
	}
	return false
}

// Variables returns the referenced groups in segment order.
func (r *Row) Variables() []*variables.Variables {
	out := make([]*variables.Variables, len(r.segs))
	for i, s := range r.segs {
		out[i] = s.Vars
	}
	return out
}

// Bounds returns the admissible multiplier interval. Friction bounds are
// derived from the normal row's current multiplier on every call and
// collapse to zero while the normal is inactive.
func (r *Row) Bounds() (lo, hi float64) {
	switch r.kind {
	case Equality:
		return math.Inf(-1), math.Inf(1)
	case Unilateral:
		return 0, math.Inf(1)
	case Friction:
		if !r.normal.IsActive() {
			return 0, 0
		}
		m := r.mu * math.Max(0, r.normal.lambda)
		return -m, m
	}
	return r.lo, r.hi
}

// Project clamps l into Bounds().
func (r *Row) Project(l float64) float64 {
	lo, hi := r.Bounds()
	if l < lo {
		return lo
	}
	if l > hi {
		return hi
	}
	return l
}

// ComputeJacobianTimes returns J·v over the assembled segments.
func (r *Row) ComputeJacobianTimes(v []float64) float64 {
	sum := 0.0
	for _, s := range r.segs {
		if !s.Vars.Assembled() {
			continue
		}
		off := s.Vars.Offset()
		for k, j := range s.Jacobian {
			sum += j * v[off+k]
		}
	}
	return sum
}

// Violation returns c = J·v + b + cfm·λ for the current multiplier.
func (r *Row) Violation(v []float64) float64 {
	return r.ComputeJacobianTimes(v) + r.bias + r.cfm*r.lambda
}

// ComputeJacobianTransposeTimes sets result += Jᵀ·l at the segment offsets.
func (r *Row) ComputeJacobianTransposeTimes(l float64, result []float64) {
	for _, s := range r.segs {
		if !s.Vars.Assembled() {
			continue
		}
		off := s.Vars.Offset()
		for k, j := range s.Jacobian {
			result[off+k] += j * l
		}
	}
}

// UpdateAuxiliary caches M⁻¹·Jᵀ per segment and the effective inverse mass
// g = J·M⁻¹·Jᵀ + cfm. It must run after offsets and masses are final.
func (r *Row) UpdateAuxiliary() {
	r.g = r.cfm
	for i, s := range r.segs {
		eq := r.invMJt[i]
		if !s.Vars.Assembled() {
			for k := range eq {
				eq[k] = 0
			}
			continue
		}
		s.Vars.Block().MulInverse(eq, s.Jacobian)
		for k, j := range s.Jacobian {
			r.g += j * eq[k]
		}
	}
}

// IncrementVelocities sets v += M⁻¹·Jᵀ·dl using the cached auxiliary data.
func (r *Row) IncrementVelocities(dl float64, v []float64) {
	for i, s := range r.segs {
		if !s.Vars.Assembled() {
			continue
		}
		off := s.Vars.Offset()
		for k, e := range r.invMJt[i] {
			v[off+k] += e * dl
		}
	}
}

// ComplementarityError measures how far violation c is from the condition
// implied by the current multiplier: |c| in the interior, and only the
// inadmissible sign of c at an active bound.
func (r *Row) ComplementarityError(c float64) float64 {
	lo, hi := r.Bounds()
	const slack = 1e-12
	atLo := !math.IsInf(lo, -1) && r.lambda <= lo+slack*math.Max(1, math.Abs(lo))
	atHi := !math.IsInf(hi, 1) && r.lambda >= hi-slack*math.Max(1, math.Abs(hi))
	switch {
	case atLo && atHi:
		return 0
	case atLo:
		return math.Max(0, -c)
	case atHi:
		return math.Max(0, c)
	}
	return math.Abs(c)
}
