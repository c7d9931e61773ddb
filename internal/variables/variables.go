// Package variables wraps mass blocks with the velocity unknowns of one
// coordinate group and its placement in the global unknown vector.
package variables

import (
	"fmt"

	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/mass"
	"github.com/san-kum/mbsolve/internal/sparse"
)

// Unassigned is the offset of variables outside an assembled descriptor.
const Unassigned = -1

// Variables is one coordinate group. Offset is owned by the descriptor.
// All global-vector operations are no-ops while the group is disabled or
// not assembled.
type Variables struct {
	block    mass.Block
	offset   int
	disabled bool
	name     string
}

func New(block mass.Block) *Variables {
	return &Variables{block: block, offset: Unassigned}
}

// NewBody wraps a dedicated rigid body.
func NewBody(b *mass.Body) *Variables {
	return New(b)
}

// NewShared wraps the pool entry h. The pool must outlive the result.
func NewShared(pool *mass.Pool, h mass.Handle) (*Variables, error) {
	ref, err := pool.Ref(h)
	if err != nil {
		return nil, err
	}
	return New(ref), nil
}

func (v *Variables) Block() mass.Block { return v.block }
func (v *Variables) Dof() int          { return v.block.Dof() }
func (v *Variables) Offset() int       { return v.offset }

func (v *Variables) Name() string     { return v.name }
func (v *Variables) SetName(n string) { v.name = n }

// SetOffset is called by descriptor assembly only.
func (v *Variables) SetOffset(off int) { v.offset = off }
func (v *Variables) ResetOffset()      { v.offset = Unassigned }

func (v *Variables) IsActive() bool { return !v.disabled }

// SetDisabled excludes the group from the next assembly, e.g. a fixed or
// sleeping body. It takes effect when the descriptor is reassembled.
func (v *Variables) SetDisabled(d bool) { v.disabled = d }

// Assembled reports whether the group owns a valid slice of the global vector.
func (v *Variables) Assembled() bool { return !v.disabled && v.offset >= 0 }

func (v *Variables) Validate() error {
	if v.block == nil {
		return fmt.Errorf("variables without mass block: %w", dynamo.ErrInvalidMass)
	}
	return v.block.Validate()
}

func (v *Variables) span(vect []float64) []float64 {
	return vect[v.offset : v.offset+v.block.Dof()]
}

// ComputeInverseMassTimes returns M⁻¹·vect[offset:offset+dof] as a new
// dof-sized slice, or nil when the group is not assembled.
func (v *Variables) ComputeInverseMassTimes(vect []float64) []float64 {
	if !v.Assembled() {
		return nil
	}
	out := make([]float64, v.block.Dof())
	v.block.MulInverse(out, v.span(vect))
	return out
}

// InverseMassTimesInto sets result[offset:] = M⁻¹·vect[offset:] on global vectors.
func (v *Variables) InverseMassTimesInto(result, vect []float64) {
	if !v.Assembled() {
		return
	}
	v.block.MulInverse(v.span(result), v.span(vect))
}

// AccumulateMassTimes sets result[offset:] += scale·M·vect[offset:].
func (v *Variables) AccumulateMassTimes(vect []float64, scale float64, result []float64) {
	if !v.Assembled() {
		return
	}
	v.block.MulAdd(v.span(result), v.span(vect), scale)
}

// WriteMassIntoSparseMatrix adds scale·M at (rowOffset+offset, colOffset+offset).
func (v *Variables) WriteMassIntoSparseMatrix(storage sparse.Writer, rowOffset, colOffset int, scale float64) {
	if !v.Assembled() {
		return
	}
	r0 := rowOffset + v.offset
	c0 := colOffset + v.offset
	v.block.Entries(func(row, col int, val float64) {
		storage.Add(r0+row, c0+col, scale*val)
	})
}

// WriteDiagonalInto adds the scaled mass diagonal into result[offset:].
func (v *Variables) WriteDiagonalInto(result []float64, scale float64) {
	if !v.Assembled() {
		return
	}
	v.block.AddDiagonal(v.span(result), scale)
}
