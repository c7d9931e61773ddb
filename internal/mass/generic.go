package mass

import (
	"fmt"
	"math"

	"github.com/san-kum/mbsolve/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Diagonal is a generic block with one independent mass per coordinate.
type Diagonal struct {
	masses []float64
	inv    []float64
}

func NewDiagonal(masses ...float64) (*Diagonal, error) {
	if len(masses) == 0 {
		return nil, fmt.Errorf("diagonal block with no coordinates: %w", dynamo.ErrDimensionMismatch)
	}
	d := &Diagonal{
		masses: make([]float64, len(masses)),
		inv:    make([]float64, len(masses)),
	}
	for i, m := range masses {
		if err := d.SetMass(i, m); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Diagonal) SetMass(i int, m float64) error {
	if !(m > 0) || math.IsInf(m, 0) {
		return fmt.Errorf("set mass[%d] %g: %w", i, m, dynamo.ErrInvalidMass)
	}
	d.masses[i] = m
	d.inv[i] = 1 / m
	return nil
}

func (d *Diagonal) Mass(i int) float64 { return d.masses[i] }
func (d *Diagonal) Dof() int           { return len(d.masses) }

func (d *Diagonal) MulInverse(dst, src []float64) {
	for i, w := range d.inv {
		dst[i] = w * src[i]
	}
}

func (d *Diagonal) MulAddInverse(dst, src []float64) {
	for i, w := range d.inv {
		dst[i] += w * src[i]
	}
}

func (d *Diagonal) MulAdd(dst, src []float64, scale float64) {
	for i, m := range d.masses {
		dst[i] += scale * m * src[i]
	}
}

func (d *Diagonal) AddDiagonal(dst []float64, scale float64) {
	for i, m := range d.masses {
		dst[i] += scale * m
	}
}

func (d *Diagonal) Entries(fn func(row, col int, v float64)) {
	for i, m := range d.masses {
		fn(i, i, m)
	}
}

func (d *Diagonal) Validate() error {
	if len(d.masses) == 0 {
		return fmt.Errorf("empty diagonal block: %w", dynamo.ErrInvalidMass)
	}
	for i, m := range d.masses {
		if !(m > 0) {
			return fmt.Errorf("mass[%d] %g: %w", i, m, dynamo.ErrInvalidMass)
		}
	}
	return nil
}

// Dense is a generic block with a full symmetric positive-definite mass
// matrix, inverted through a cached Cholesky factorization.
type Dense struct {
	m    *mat.SymDense
	chol mat.Cholesky
}

func NewDense(m *mat.SymDense) (*Dense, error) {
	d := &Dense{}
	if err := d.SetMatrix(m); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dense) SetMatrix(m *mat.SymDense) error {
	if m == nil || m.SymmetricDim() == 0 {
		return fmt.Errorf("empty dense block: %w", dynamo.ErrDimensionMismatch)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return fmt.Errorf("dense mass factorization: %w", dynamo.ErrInvalidInertia)
	}
	d.m = mat.NewSymDense(m.SymmetricDim(), nil)
	d.m.CopySym(m)
	d.chol = chol
	return nil
}

func (d *Dense) Matrix() mat.Symmetric { return d.m }

func (d *Dense) Dof() int {
	if d.m == nil {
		return 0
	}
	return d.m.SymmetricDim()
}

func (d *Dense) MulInverse(dst, src []float64) {
	n := d.Dof()
	x := mat.NewVecDense(n, dst[:n:n])
	if err := d.chol.SolveVecTo(x, mat.NewVecDense(n, append([]float64(nil), src[:n]...))); err != nil {
		panic(fmt.Sprintf("mass: dense solve: %v", err))
	}
}

func (d *Dense) MulAddInverse(dst, src []float64) {
	n := d.Dof()
	tmp := make([]float64, n)
	d.MulInverse(tmp, src)
	for i := range tmp {
		dst[i] += tmp[i]
	}
}

func (d *Dense) MulAdd(dst, src []float64, scale float64) {
	n := d.Dof()
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += d.m.At(i, j) * src[j]
		}
		dst[i] += scale * sum
	}
}

func (d *Dense) AddDiagonal(dst []float64, scale float64) {
	for i := 0; i < d.Dof(); i++ {
		dst[i] += scale * d.m.At(i, i)
	}
}

func (d *Dense) Entries(fn func(row, col int, v float64)) {
	n := d.Dof()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if v := d.m.At(i, j); v != 0 {
				fn(i, j, v)
			}
		}
	}
}

func (d *Dense) Validate() error {
	if d.m == nil {
		return fmt.Errorf("dense block not initialized: %w", dynamo.ErrInvalidMass)
	}
	return nil
}
