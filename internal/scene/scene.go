// Package scene builds hand-made constrained systems: joints, contacts and
// motors laid out by fixed geometry instead of collision detection.
package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/mass"
	"github.com/san-kum/mbsolve/internal/variables"
)

// StandardGravity is the default gravity magnitude along -y.
const StandardGravity = 9.81

// Scene is an assembled descriptor with its initial state. Rows are also
// grouped by role for inspection.
type Scene struct {
	Name       string
	Descriptor *descriptor.Descriptor
	Velocities []float64
	Forces     []float64

	Bodies   []*variables.Variables
	Joints   []*constraints.Row
	Contacts []*constraints.Row
	Friction []*constraints.Row
	Motors   []*constraints.Row

	// Pool is set when the bodies share mass properties.
	Pool *mass.Pool
}

func newScene(name string) *Scene {
	return &Scene{Name: name, Descriptor: descriptor.New()}
}

func (s *Scene) addBody(v *variables.Variables, name string) *variables.Variables {
	v.SetName(name)
	s.Bodies = append(s.Bodies, v)
	s.Descriptor.InsertVariables(v)
	return v
}

func (s *Scene) newBody(m float64, inertia mgl64.Mat3, name string) (*variables.Variables, error) {
	b, err := mass.NewBody(m, inertia)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s.addBody(variables.NewBody(b), name), nil
}

func (s *Scene) addRow(r *constraints.Row, err error, name string) (*constraints.Row, error) {
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	r.SetName(name)
	s.Descriptor.InsertConstraints(r)
	switch r.Kind() {
	case constraints.Equality:
		s.Joints = append(s.Joints, r)
	case constraints.Unilateral:
		s.Contacts = append(s.Contacts, r)
	case constraints.Friction:
		s.Friction = append(s.Friction, r)
	case constraints.Box:
		s.Motors = append(s.Motors, r)
	}
	return r, nil
}

// finish assembles the descriptor and sizes the state vectors.
func (s *Scene) finish() (*Scene, error) {
	if err := s.Descriptor.Assemble(); err != nil {
		return nil, fmt.Errorf("scene %s: %w", s.Name, err)
	}
	n := s.Descriptor.Dof()
	s.Velocities = make([]float64, n)
	s.Forces = make([]float64, n)
	return s, nil
}

// SetGravity replaces the forces with m·g along -y on every body. The mass
// is read from the body's block, so call it again after a mass change.
func (s *Scene) SetGravity(g float64) {
	dynamo.Vector(s.Forces).Zero()
	for _, b := range s.Bodies {
		if !b.Assembled() {
			continue
		}
		s.Forces[b.Offset()+1] = -linearMass(b) * g
	}
}

// linearMass is the diagonal mass entry of the y translation.
func linearMass(v *variables.Variables) float64 {
	diag := make([]float64, v.Dof())
	v.Block().AddDiagonal(diag, 1)
	return diag[1]
}

// SetLinearVelocity sets body i's linear velocity.
func (s *Scene) SetLinearVelocity(i int, v mgl64.Vec3) {
	off := s.Bodies[i].Offset()
	copy(s.Velocities[off:off+3], v[:])
}

func (s *Scene) SetAngularVelocity(i int, w mgl64.Vec3) {
	off := s.Bodies[i].Offset()
	copy(s.Velocities[off+3:off+6], w[:])
}

// LinearVelocity reads body i's linear velocity from v.
func (s *Scene) LinearVelocity(v []float64, i int) mgl64.Vec3 {
	off := s.Bodies[i].Offset()
	return mgl64.Vec3{v[off], v[off+1], v[off+2]}
}

func (s *Scene) AngularVelocity(v []float64, i int) mgl64.Vec3 {
	off := s.Bodies[i].Offset()
	return mgl64.Vec3{v[off+3], v[off+4], v[off+5]}
}

// pointJacobian is the 6-DOF row of a body for direction n applied at arm r
// from its center: [n, r×n].
func pointJacobian(r, n mgl64.Vec3) []float64 {
	a := r.Cross(n)
	return []float64{n[0], n[1], n[2], a[0], a[1], a[2]}
}

func scaled(j []float64, s float64) []float64 {
	out := make([]float64, len(j))
	for i, x := range j {
		out[i] = s * x
	}
	return out
}

// relative returns segments measuring the velocity of the point on a
// (arm ra) relative to the point on b (arm rb) along n. A nil b means
// the world.
func relative(a *variables.Variables, ra mgl64.Vec3, b *variables.Variables, rb, n mgl64.Vec3) []constraints.Segment {
	segs := []constraints.Segment{{Vars: a, Jacobian: pointJacobian(ra, n)}}
	if b != nil {
		segs = append(segs, constraints.Segment{Vars: b, Jacobian: scaled(pointJacobian(rb, n), -1)})
	}
	return segs
}

var axes = [3]mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// ballJoint pins the point at ra on a to the point at rb on b with three
// equality rows.
func (s *Scene) ballJoint(a *variables.Variables, ra mgl64.Vec3, b *variables.Variables, rb mgl64.Vec3, name string) error {
	for k, e := range axes {
		r, err := constraints.NewEquality(relative(a, ra, b, rb, e)...)
		if _, err := s.addRow(r, err, fmt.Sprintf("%s.%c", name, "xyz"[k])); err != nil {
			return err
		}
	}
	return nil
}

// contact adds a normal row along n and two friction rows along the
// tangents t1, t2 for a point contact between a and b (nil for ground).
func (s *Scene) contact(a *variables.Variables, ra mgl64.Vec3, b *variables.Variables, rb mgl64.Vec3, n, t1, t2 mgl64.Vec3, mu float64, name string) error {
	r, err := constraints.NewContact(relative(a, ra, b, rb, n)...)
	normal, err := s.addRow(r, err, name+".n")
	if err != nil {
		return err
	}
	for k, t := range [2]mgl64.Vec3{t1, t2} {
		f, err := constraints.NewFriction(normal, mu, relative(a, ra, b, rb, t)...)
		if _, err := s.addRow(f, err, fmt.Sprintf("%s.t%d", name, k+1)); err != nil {
			return err
		}
	}
	return nil
}

func boxInertia(m float64, size mgl64.Vec3) mgl64.Mat3 {
	x, y, z := size[0]*size[0], size[1]*size[1], size[2]*size[2]
	return mgl64.Diag3(mgl64.Vec3{m * (y + z) / 12, m * (x + z) / 12, m * (x + y) / 12})
}

func sphereInertia(m, radius float64) mgl64.Mat3 {
	i := 0.4 * m * radius * radius
	return mgl64.Diag3(mgl64.Vec3{i, i, i})
}
