package descriptor

import (
	"fmt"

	"github.com/san-kum/mbsolve/internal/dynamo"
)

func (d *Descriptor) checkDof(name string, vs ...[]float64) error {
	if !d.assembled {
		return fmt.Errorf("%s on unassembled descriptor: %w", name, dynamo.ErrDegenerateSystem)
	}
	for _, v := range vs {
		if len(v) != d.dof {
			return fmt.Errorf("%s: vector length %d, dof %d: %w", name, len(v), d.dof, dynamo.ErrDimensionMismatch)
		}
	}
	return nil
}

func (d *Descriptor) checkRows(name string, vs ...[]float64) error {
	if !d.assembled {
		return fmt.Errorf("%s on unassembled descriptor: %w", name, dynamo.ErrDegenerateSystem)
	}
	for _, v := range vs {
		if len(v) != len(d.activeRows) {
			return fmt.Errorf("%s: vector length %d, rows %d: %w", name, len(v), len(d.activeRows), dynamo.ErrDimensionMismatch)
		}
	}
	return nil
}

// MassTimes sets dst = M·src.
func (d *Descriptor) MassTimes(dst, src []float64) error {
	if err := d.checkDof("mass product", dst, src); err != nil {
		return err
	}
	vars := d.activeVars
	dynamo.ParallelFor(len(vars), minParallelChunk, func(start, end int) {
		for _, v := range vars[start:end] {
			off := v.Offset()
			for k := off; k < off+v.Dof(); k++ {
				dst[k] = 0
			}
			v.AccumulateMassTimes(src, 1, dst)
		}
	})
	return nil
}

// InverseMassTimes sets dst = M⁻¹·src.
func (d *Descriptor) InverseMassTimes(dst, src []float64) error {
	if err := d.checkDof("inverse mass product", dst, src); err != nil {
		return err
	}
	vars := d.activeVars
	dynamo.ParallelFor(len(vars), minParallelChunk, func(start, end int) {
		for _, v := range vars[start:end] {
			v.InverseMassTimesInto(dst, src)
		}
	})
	return nil
}

// MassDiagonal sets dst to the diagonal of M.
func (d *Descriptor) MassDiagonal(dst []float64) error {
	if err := d.checkDof("mass diagonal", dst); err != nil {
		return err
	}
	dynamo.Vector(dst).Zero()
	for _, v := range d.activeVars {
		v.WriteDiagonalInto(dst, 1)
	}
	return nil
}

// JacobianTimes sets dst[i] = J_i·v for every active row.
func (d *Descriptor) JacobianTimes(dst, v []float64) error {
	if err := d.checkDof("jacobian product", v); err != nil {
		return err
	}
	if err := d.checkRows("jacobian product", dst); err != nil {
		return err
	}
	rows := d.activeRows
	dynamo.ParallelFor(len(rows), minParallelChunk, func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = rows[i].ComputeJacobianTimes(v)
		}
	})
	return nil
}

// JacobianTransposeTimes sets dst = Jᵀ·lambda. Rows share variables, so the
// scatter runs sequentially.
func (d *Descriptor) JacobianTransposeTimes(dst, lambda []float64) error {
	if err := d.checkDof("jacobian transpose product", dst); err != nil {
		return err
	}
	if err := d.checkRows("jacobian transpose product", lambda); err != nil {
		return err
	}
	dynamo.Vector(dst).Zero()
	for i, r := range d.activeRows {
		r.ComputeJacobianTransposeTimes(lambda[i], dst)
	}
	return nil
}

// SchurTimes sets dst = (J·M⁻¹·Jᵀ + E)·lambda using the rows' cached M⁻¹Jᵀ.
func (d *Descriptor) SchurTimes(dst, lambda []float64) error {
	if err := d.checkRows("schur product", dst, lambda); err != nil {
		return err
	}
	w := dynamo.Vector(d.work)
	w.Zero()
	for i, r := range d.activeRows {
		r.IncrementVelocities(lambda[i], w)
	}
	rows := d.activeRows
	dynamo.ParallelFor(len(rows), minParallelChunk, func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = rows[i].ComputeJacobianTimes(w) + rows[i].Compliance()*lambda[i]
		}
	})
	return nil
}

// ConstraintRHS sets dst[i] = J_i·v + b_i, the violation of each row at
// zero multipliers.
func (d *Descriptor) ConstraintRHS(dst, v []float64) error {
	if err := d.JacobianTimes(dst, v); err != nil {
		return err
	}
	for i, r := range d.activeRows {
		dst[i] += r.Bias()
	}
	return nil
}

// FreeVelocities returns v + dt·M⁻¹·f, the unconstrained velocities.
func (d *Descriptor) FreeVelocities(v, f []float64, dt float64) ([]float64, error) {
	if err := d.checkDof("free velocities", v, f); err != nil {
		return nil, err
	}
	out := make([]float64, d.dof)
	if err := d.InverseMassTimes(out, f); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = v[i] + dt*out[i]
	}
	return out, nil
}

// Multipliers returns the active rows' multipliers in row order.
func (d *Descriptor) Multipliers() []float64 {
	out := make([]float64, len(d.activeRows))
	for i, r := range d.activeRows {
		out[i] = r.Multiplier()
	}
	return out
}

func (d *Descriptor) SetMultipliers(lambda []float64) error {
	if err := d.checkRows("set multipliers", lambda); err != nil {
		return err
	}
	for i, r := range d.activeRows {
		r.SetMultiplier(lambda[i])
	}
	return nil
}

// KineticEnergy returns ½·vᵀ·M·v.
func (d *Descriptor) KineticEnergy(v []float64) (float64, error) {
	if err := d.checkDof("kinetic energy", v); err != nil {
		return 0, err
	}
	mv := make([]float64, d.dof)
	for _, vr := range d.activeVars {
		vr.AccumulateMassTimes(v, 1, mv)
	}
	return 0.5 * dynamo.Vector(v).Dot(mv), nil
}
