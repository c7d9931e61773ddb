package mass

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/mbsolve/internal/dynamo"
)

// Handle indexes a body inside a Pool.
type Handle int

// Pool is an arena of rigid-body mass properties shared by many variables.
// The pool must outlive every Shared that references it. Entries are never
// removed, so handles stay valid for the pool's lifetime.
type Pool struct {
	bodies []Body
}

func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) Add(m float64, inertia mgl64.Mat3) (Handle, error) {
	var b Body
	if err := b.SetMass(m); err != nil {
		return -1, err
	}
	if err := b.SetInertia(inertia); err != nil {
		return -1, err
	}
	p.bodies = append(p.bodies, b)
	return Handle(len(p.bodies) - 1), nil
}

func (p *Pool) Len() int { return len(p.bodies) }

func (p *Pool) valid(h Handle) bool { return h >= 0 && int(h) < len(p.bodies) }

// Body returns the pooled body for h, or nil if h is out of range. The
// pointer is only stable until the next Add.
func (p *Pool) Body(h Handle) *Body {
	if !p.valid(h) {
		return nil
	}
	return &p.bodies[h]
}

// SetMass mutates the shared entry; every Shared referencing h observes it.
func (p *Pool) SetMass(h Handle, m float64) error {
	if !p.valid(h) {
		return p.badHandle(h)
	}
	return p.bodies[h].SetMass(m)
}

func (p *Pool) SetInertia(h Handle, I mgl64.Mat3) error {
	if !p.valid(h) {
		return p.badHandle(h)
	}
	return p.bodies[h].SetInertia(I)
}

// Ref returns a non-owning block bound to h.
func (p *Pool) Ref(h Handle) (Shared, error) {
	if !p.valid(h) {
		return Shared{}, p.badHandle(h)
	}
	return Shared{pool: p, handle: h}, nil
}

func (p *Pool) badHandle(h Handle) error {
	return fmt.Errorf("mass pool handle %d (size %d): %w", h, len(p.bodies), dynamo.ErrDanglingReference)
}

// Shared is a rigid-body block whose values live in a Pool. Copying a Shared
// copies the reference, not the mass properties.
type Shared struct {
	pool   *Pool
	handle Handle
}

func (s Shared) Pool() *Pool    { return s.pool }
func (s Shared) Handle() Handle { return s.handle }

func (s Shared) body() *Body { return &s.pool.bodies[s.handle] }

func (s Shared) Dof() int { return BodyDof }

func (s Shared) MulInverse(dst, src []float64)            { s.body().MulInverse(dst, src) }
func (s Shared) MulAddInverse(dst, src []float64)         { s.body().MulAddInverse(dst, src) }
func (s Shared) MulAdd(dst, src []float64, scale float64) { s.body().MulAdd(dst, src, scale) }
func (s Shared) AddDiagonal(dst []float64, scale float64) { s.body().AddDiagonal(dst, scale) }
func (s Shared) Entries(fn func(row, col int, v float64)) { s.body().Entries(fn) }

func (s Shared) Validate() error {
	if s.pool == nil {
		return fmt.Errorf("shared mass without pool: %w", dynamo.ErrDanglingReference)
	}
	if !s.pool.valid(s.handle) {
		return s.pool.badHandle(s.handle)
	}
	return s.body().Validate()
}
