package descriptor

import (
	"fmt"

	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/sparse"
)

// SparseView is an explicit export of the assembled system, for
// diagnostics and direct solvers. Iterative solvers never build it.
type SparseView struct {
	Mass       *sparse.COO // dof × dof
	Jacobian   *sparse.COO // rows × dof
	Compliance []float64
	Bias       []float64
}

func (d *Descriptor) BuildSparse() (*SparseView, error) {
	if !d.assembled {
		return nil, fmt.Errorf("sparse export on unassembled descriptor: %w", dynamo.ErrDegenerateSystem)
	}
	m := len(d.activeRows)
	view := &SparseView{
		Mass:       sparse.NewCOO(d.dof, d.dof),
		Jacobian:   sparse.NewCOO(m, d.dof),
		Compliance: make([]float64, m),
		Bias:       make([]float64, m),
	}
	for _, v := range d.activeVars {
		v.WriteMassIntoSparseMatrix(view.Mass, 0, 0, 1)
	}
	for i, r := range d.activeRows {
		writeRow(view.Jacobian, i, r.Segments(), 1)
		view.Compliance[i] = r.Compliance()
		view.Bias[i] = r.Bias()
	}
	return view, nil
}

func writeRow(w sparse.Writer, row int, segs []constraints.Segment, scale float64) {
	for _, s := range segs {
		if !s.Vars.Assembled() {
			continue
		}
		off := s.Vars.Offset()
		for k, j := range s.Jacobian {
			w.Add(row, off+k, scale*j)
		}
	}
}

func writeTranspose(w sparse.Writer, col int, segs []constraints.Segment, scale float64) {
	for _, s := range segs {
		if !s.Vars.Assembled() {
			continue
		}
		off := s.Vars.Offset()
		for k, j := range s.Jacobian {
			w.Add(off+k, col, scale*j)
		}
	}
}

// KKT exports the saddle-point system
//
//	[ M   -Jᵀ ] [ v ]   [ M·free ]
//	[ J    E  ] [ λ ] = [  -b    ]
//
// whose solution matches v = free + M⁻¹Jᵀλ with J·v + b + E·λ = 0.
func (d *Descriptor) KKT(free []float64) (*sparse.COO, []float64, error) {
	if err := d.checkDof("kkt export", free); err != nil {
		return nil, nil, err
	}
	n, m := d.dof, len(d.activeRows)
	kkt := sparse.NewCOO(n+m, n+m)
	rhs := make([]float64, n+m)

	for _, v := range d.activeVars {
		v.WriteMassIntoSparseMatrix(kkt, 0, 0, 1)
		v.AccumulateMassTimes(free, 1, rhs[:n])
	}
	jac, jacT, comp := sparse.Offset(kkt, n, 0), sparse.Offset(kkt, 0, n), sparse.Offset(kkt, n, n)
	for i, r := range d.activeRows {
		writeRow(jac, i, r.Segments(), 1)
		writeTranspose(jacT, i, r.Segments(), -1)
		comp.Add(i, i, r.Compliance())
		rhs[n+i] = -r.Bias()
	}
	return kkt, rhs, nil
}
