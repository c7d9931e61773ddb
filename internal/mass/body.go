package mass

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/mbsolve/internal/dynamo"
)

// BodyDof is the number of velocity unknowns of a rigid body:
// three translational followed by three rotational.
const BodyDof = 6

const symmetryTolerance = 1e-9

// Body holds the mass and inertia of a rigid body with their inverses.
// The zero value is invalid; use NewBody.
type Body struct {
	mass       float64
	invMass    float64
	inertia    mgl64.Mat3
	invInertia mgl64.Mat3
}

func NewBody(mass float64, inertia mgl64.Mat3) (*Body, error) {
	b := &Body{}
	if err := b.SetMass(mass); err != nil {
		return nil, err
	}
	if err := b.SetInertia(inertia); err != nil {
		return nil, err
	}
	return b, nil
}

// NewPointBody returns a body with an isotropic unit-scaled inertia, for
// coordinate groups whose rotation is never constrained.
func NewPointBody(mass float64) (*Body, error) {
	return NewBody(mass, mgl64.Ident3())
}

func (b *Body) SetMass(m float64) error {
	if !(m > 0) || math.IsInf(m, 0) {
		return fmt.Errorf("set mass %g: %w", m, dynamo.ErrInvalidMass)
	}
	b.mass = m
	b.invMass = 1 / m
	return nil
}

func (b *Body) SetInertia(I mgl64.Mat3) error {
	if err := CheckSPD(I); err != nil {
		return err
	}
	b.inertia = I
	b.invInertia = I.Inv()
	return nil
}

func (b *Body) Mass() float64          { return b.mass }
func (b *Body) InvMass() float64       { return b.invMass }
func (b *Body) Inertia() mgl64.Mat3    { return b.inertia }
func (b *Body) InvInertia() mgl64.Mat3 { return b.invInertia }

func (b *Body) Dof() int { return BodyDof }

func (b *Body) MulInverse(dst, src []float64) {
	dst[0] = b.invMass * src[0]
	dst[1] = b.invMass * src[1]
	dst[2] = b.invMass * src[2]
	w := b.invInertia.Mul3x1(mgl64.Vec3{src[3], src[4], src[5]})
	dst[3], dst[4], dst[5] = w[0], w[1], w[2]
}

func (b *Body) MulAddInverse(dst, src []float64) {
	dst[0] += b.invMass * src[0]
	dst[1] += b.invMass * src[1]
	dst[2] += b.invMass * src[2]
	w := b.invInertia.Mul3x1(mgl64.Vec3{src[3], src[4], src[5]})
	dst[3] += w[0]
	dst[4] += w[1]
	dst[5] += w[2]
}

func (b *Body) MulAdd(dst, src []float64, scale float64) {
	sm := scale * b.mass
	dst[0] += sm * src[0]
	dst[1] += sm * src[1]
	dst[2] += sm * src[2]
	w := b.inertia.Mul3x1(mgl64.Vec3{src[3], src[4], src[5]})
	dst[3] += scale * w[0]
	dst[4] += scale * w[1]
	dst[5] += scale * w[2]
}

func (b *Body) AddDiagonal(dst []float64, scale float64) {
	for i := 0; i < 3; i++ {
		dst[i] += scale * b.mass
		dst[3+i] += scale * b.inertia.At(i, i)
	}
}

func (b *Body) Entries(fn func(row, col int, v float64)) {
	for i := 0; i < 3; i++ {
		fn(i, i, b.mass)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if v := b.inertia.At(i, j); v != 0 {
				fn(3+i, 3+j, v)
			}
		}
	}
}

func (b *Body) Validate() error {
	if !(b.mass > 0) || math.Abs(b.mass*b.invMass-1) > 1e-12 {
		return fmt.Errorf("body mass %g: %w", b.mass, dynamo.ErrInvalidMass)
	}
	return CheckSPD(b.inertia)
}

// CheckSPD reports whether I is symmetric and positive-definite using the
// leading principal minors.
func CheckSPD(I mgl64.Mat3) error {
	scale := 1.0
	for _, v := range I {
		if !dynamo.IsFinite(v) {
			return fmt.Errorf("inertia has non-finite entry: %w", dynamo.ErrInvalidInertia)
		}
		scale = math.Max(scale, math.Abs(v))
	}
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if math.Abs(I.At(i, j)-I.At(j, i)) > symmetryTolerance*scale {
				return fmt.Errorf("inertia not symmetric at (%d,%d): %w", i, j, dynamo.ErrInvalidInertia)
			}
		}
	}
	m1 := I.At(0, 0)
	m2 := I.At(0, 0)*I.At(1, 1) - I.At(0, 1)*I.At(1, 0)
	m3 := I.Det()
	if !(m1 > 0 && m2 > 0 && m3 > 0) {
		return fmt.Errorf("inertia minors (%g, %g, %g): %w", m1, m2, m3, dynamo.ErrInvalidInertia)
	}
	return nil
}
