// Package descriptor assembles variables and constraint rows into one
// coupled system and exposes matrix-free and sparse views of it.
package descriptor

import (
	"fmt"

	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/variables"
)

// minParallelChunk is the smallest number of items handed to one worker by
// the matrix-free products.
const minParallelChunk = 64

// Descriptor holds variables and rows in insertion order. Any structural
// change (insert, remove, enable, disable) requires a new Assemble, which
// re-traverses everything.
//
// A Descriptor is not safe for concurrent use.
type Descriptor struct {
	vars []*variables.Variables
	rows []*constraints.Row

	activeVars []*variables.Variables
	activeRows []*constraints.Row
	dof        int
	assembled  bool

	work []float64
}

func New() *Descriptor {
	return &Descriptor{}
}

func (d *Descriptor) InsertVariables(vs ...*variables.Variables) {
	d.vars = append(d.vars, vs...)
	d.assembled = false
}

func (d *Descriptor) InsertConstraints(rs ...*constraints.Row) {
	d.rows = append(d.rows, rs...)
	d.assembled = false
}

// RemoveVariables drops v and resets its offset. Rows still referencing v
// fail the next Assemble.
func (d *Descriptor) RemoveVariables(v *variables.Variables) bool {
	for i, x := range d.vars {
		if x == v {
			d.vars = append(d.vars[:i], d.vars[i+1:]...)
			v.ResetOffset()
			d.assembled = false
			return true
		}
	}
	return false
}

func (d *Descriptor) RemoveConstraints(r *constraints.Row) bool {
	for i, x := range d.rows {
		if x == r {
			d.rows = append(d.rows[:i], d.rows[i+1:]...)
			d.assembled = false
			return true
		}
	}
	return false
}

// Reset removes everything. Multipliers stay with their rows.
func (d *Descriptor) Reset() {
	d.resetOffsets()
	d.vars = nil
	d.rows = nil
	d.activeVars = nil
	d.activeRows = nil
	d.dof = 0
	d.assembled = false
}

func (d *Descriptor) Assembled() bool { return d.assembled }

// Dof is the size of the global unknown vector of the last assembly.
func (d *Descriptor) Dof() int { return d.dof }

// ConstraintCount is the number of active rows of the last assembly.
func (d *Descriptor) ConstraintCount() int { return len(d.activeRows) }

// Variables returns the active variables in offset order.
func (d *Descriptor) Variables() []*variables.Variables { return d.activeVars }

// Constraints returns the active rows in insertion order.
func (d *Descriptor) Constraints() []*constraints.Row { return d.activeRows }

func (d *Descriptor) AllVariables() []*variables.Variables { return d.vars }
func (d *Descriptor) AllConstraints() []*constraints.Row   { return d.rows }

func (d *Descriptor) resetOffsets() {
	for _, v := range d.vars {
		v.ResetOffset()
	}
}

// Assemble validates the system and assigns offsets as the running DOF sum
// of preceding active variables. On error no offset is left assigned.
func (d *Descriptor) Assemble() error {
	d.assembled = false
	d.activeVars = d.activeVars[:0]
	d.activeRows = d.activeRows[:0]
	d.dof = 0
	d.resetOffsets()

	if err := d.assemble(); err != nil {
		d.resetOffsets()
		d.activeVars = nil
		d.activeRows = nil
		d.dof = 0
		return err
	}

	if cap(d.work) < d.dof {
		d.work = make([]float64, d.dof)
	}
	d.work = d.work[:d.dof]

	d.updateAuxiliary()
	d.assembled = true
	return nil
}

// Refresh recomputes the cached row data (M⁻¹Jᵀ and effective mass) from the
// current masses and compliances without reassigning offsets. Solvers call it
// before every solve, so mass and compliance changes after Assemble are seen.
func (d *Descriptor) Refresh() error {
	if !d.assembled {
		return fmt.Errorf("refresh on unassembled descriptor: %w", dynamo.ErrDegenerateSystem)
	}
	d.updateAuxiliary()
	return nil
}

func (d *Descriptor) updateAuxiliary() {
	rows := d.activeRows
	dynamo.ParallelFor(len(rows), minParallelChunk, func(start, end int) {
		for _, r := range rows[start:end] {
			r.UpdateAuxiliary()
		}
	})
}

func (d *Descriptor) assemble() error {
	member := make(map[*variables.Variables]struct{}, len(d.vars))
	for i, v := range d.vars {
		if v == nil {
			return &dynamo.AssemblyError{Row: -1, Variable: i, Wrapped: fmt.Errorf("nil variables: %w", dynamo.ErrDanglingReference)}
		}
		if _, dup := member[v]; dup {
			return &dynamo.AssemblyError{Row: -1, Variable: i, Wrapped: dynamo.ErrDuplicateInsertion}
		}
		member[v] = struct{}{}
		if !v.IsActive() {
			continue
		}
		if err := v.Validate(); err != nil {
			return &dynamo.AssemblyError{Row: -1, Variable: i, Wrapped: err}
		}
		v.SetOffset(d.dof)
		d.dof += v.Dof()
		d.activeVars = append(d.activeVars, v)
	}

	rowSet := make(map[*constraints.Row]struct{}, len(d.rows))
	for i, r := range d.rows {
		if r == nil {
			return &dynamo.AssemblyError{Row: i, Variable: -1, Wrapped: fmt.Errorf("nil row: %w", dynamo.ErrDanglingReference)}
		}
		if _, dup := rowSet[r]; dup {
			return &dynamo.AssemblyError{Row: i, Variable: -1, Wrapped: dynamo.ErrDuplicateInsertion}
		}
		rowSet[r] = struct{}{}
	}

	for i, r := range d.rows {
		for _, v := range r.Variables() {
			if _, ok := member[v]; !ok {
				return &dynamo.AssemblyError{Row: i, Variable: -1, Wrapped: dynamo.ErrDanglingReference}
			}
		}
		if n := r.Normal(); n != nil {
			if _, ok := rowSet[n]; !ok {
				return &dynamo.AssemblyError{Row: i, Variable: -1, Wrapped: fmt.Errorf("friction normal row: %w", dynamo.ErrDanglingReference)}
			}
		}
		if !r.IsActive() {
			continue
		}
		// friction without an active normal has no force to bound it
		if n := r.Normal(); n != nil && !n.IsActive() {
			r.ResetMultiplier()
			continue
		}
		d.activeRows = append(d.activeRows, r)
	}
	return nil
}
