package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/mass"
	"github.com/san-kum/mbsolve/internal/variables"
)

var (
	up    = mgl64.Vec3{0, 1, 0}
	right = mgl64.Vec3{1, 0, 0}
	front = mgl64.Vec3{0, 0, 1}
	zero  = mgl64.Vec3{}
)

func positive(name string, x float64) error {
	if !(x > 0) || !dynamo.IsFinite(x) {
		return fmt.Errorf("%s must be positive, got %g: %w", name, x, dynamo.ErrInvalidConfig)
	}
	return nil
}

func nonNegative(name string, x float64) error {
	if !(x >= 0) || !dynamo.IsFinite(x) {
		return fmt.Errorf("%s must be non-negative, got %g: %w", name, x, dynamo.ErrInvalidConfig)
	}
	return nil
}

func atLeast(name string, n, min int) error {
	if n < min {
		return fmt.Errorf("%s must be at least %d, got %d: %w", name, min, n, dynamo.ErrInvalidConfig)
	}
	return nil
}

// Pair joins two point-like bodies moving along x with one equality row
// that removes their relative x velocity.
func Pair(m1, m2, v1, v2 float64) (*Scene, error) {
	if err := positive("m1", m1); err != nil {
		return nil, err
	}
	if err := positive("m2", m2); err != nil {
		return nil, err
	}
	s := newScene("pair")
	a, err := s.newBody(m1, mgl64.Ident3(), "a")
	if err != nil {
		return nil, err
	}
	b, err := s.newBody(m2, mgl64.Ident3(), "b")
	if err != nil {
		return nil, err
	}
	r, err := constraints.NewEquality(relative(a, zero, b, zero, right)...)
	if _, err := s.addRow(r, err, "weld.x"); err != nil {
		return nil, err
	}
	if _, err := s.finish(); err != nil {
		return nil, err
	}
	s.SetLinearVelocity(0, mgl64.Vec3{v1, 0, 0})
	s.SetLinearVelocity(1, mgl64.Vec3{v2, 0, 0})
	return s, nil
}

// Chain hangs n links of the given mass and length from a pin at the
// origin. Each joint is a ball joint at the shared link end. The bottom
// link starts with a sideways velocity swing.
func Chain(n int, linkMass, linkLength, swing float64) (*Scene, error) {
	if err := atLeast("links", n, 1); err != nil {
		return nil, err
	}
	if err := positive("link mass", linkMass); err != nil {
		return nil, err
	}
	if err := positive("link length", linkLength); err != nil {
		return nil, err
	}
	s := newScene("chain")
	w := 0.1 * linkLength
	inertia := boxInertia(linkMass, mgl64.Vec3{w, linkLength, w})
	top := mgl64.Vec3{0, linkLength / 2, 0}
	bottom := mgl64.Vec3{0, -linkLength / 2, 0}

	var prev *variables.Variables
	for i := 0; i < n; i++ {
		link, err := s.newBody(linkMass, inertia, fmt.Sprintf("link%d", i))
		if err != nil {
			return nil, err
		}
		if prev == nil {
			err = s.ballJoint(link, top, nil, zero, "pin")
		} else {
			err = s.ballJoint(link, top, prev, bottom, fmt.Sprintf("joint%d", i))
		}
		if err != nil {
			return nil, err
		}
		prev = link
	}
	if _, err := s.finish(); err != nil {
		return nil, err
	}
	s.SetLinearVelocity(n-1, mgl64.Vec3{swing, 0, 0})
	s.SetGravity(StandardGravity)
	return s, nil
}

// Stack piles n unit cubes on the ground. Every interface has a contact
// at each of the four bottom corners of the upper box.
func Stack(n int, boxMass, mu, push float64) (*Scene, error) {
	if err := atLeast("boxes", n, 1); err != nil {
		return nil, err
	}
	if err := positive("box mass", boxMass); err != nil {
		return nil, err
	}
	if err := nonNegative("friction", mu); err != nil {
		return nil, err
	}
	s := newScene("stack")
	const h = 0.5
	inertia := boxInertia(boxMass, mgl64.Vec3{2 * h, 2 * h, 2 * h})
	corners := [4]mgl64.Vec3{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}

	var below *variables.Variables
	for i := 0; i < n; i++ {
		box, err := s.newBody(boxMass, inertia, fmt.Sprintf("box%d", i))
		if err != nil {
			return nil, err
		}
		for k, c := range corners {
			// the same point seen from the box below sits on its top face
			rb := mgl64.Vec3{c[0], h, c[2]}
			if err := s.contact(box, c, below, rb, up, right, front, mu, fmt.Sprintf("box%d.c%d", i, k)); err != nil {
				return nil, err
			}
		}
		below = box
	}
	if _, err := s.finish(); err != nil {
		return nil, err
	}
	s.SetLinearVelocity(n-1, mgl64.Vec3{push, 0, 0})
	s.SetGravity(StandardGravity)
	return s, nil
}

// Pile stacks n spheres in a column on the ground. All spheres reference a
// single entry of a shared mass pool, so changing it changes them all.
func Pile(n int, sphereMass, radius, mu float64) (*Scene, error) {
	if err := atLeast("spheres", n, 1); err != nil {
		return nil, err
	}
	if err := positive("sphere mass", sphereMass); err != nil {
		return nil, err
	}
	if err := positive("radius", radius); err != nil {
		return nil, err
	}
	if err := nonNegative("friction", mu); err != nil {
		return nil, err
	}
	s := newScene("pile")
	s.Pool = mass.NewPool()
	h, err := s.Pool.Add(sphereMass, sphereInertia(sphereMass, radius))
	if err != nil {
		return nil, err
	}
	bottom := mgl64.Vec3{0, -radius, 0}
	top := mgl64.Vec3{0, radius, 0}

	var below *variables.Variables
	for i := 0; i < n; i++ {
		v, err := variables.NewShared(s.Pool, h)
		if err != nil {
			return nil, err
		}
		sphere := s.addBody(v, fmt.Sprintf("sphere%d", i))
		if err := s.contact(sphere, bottom, below, top, up, right, front, mu, fmt.Sprintf("sphere%d.c", i)); err != nil {
			return nil, err
		}
		below = sphere
	}
	if _, err := s.finish(); err != nil {
		return nil, err
	}
	s.SetGravity(StandardGravity)
	return s, nil
}

// Motor spins a wheel about z on a fixed axle. The drive row is a Box row
// whose bounds cap the impulse per step; its bias asks for targetSpeed.
func Motor(inertia, maxImpulse, targetSpeed float64) (*Scene, error) {
	if err := positive("inertia", inertia); err != nil {
		return nil, err
	}
	if err := positive("max impulse", maxImpulse); err != nil {
		return nil, err
	}
	s := newScene("motor")
	wheel, err := s.newBody(1, mgl64.Diag3(mgl64.Vec3{inertia, inertia, inertia}), "wheel")
	if err != nil {
		return nil, err
	}
	if err := s.ballJoint(wheel, zero, nil, zero, "axle"); err != nil {
		return nil, err
	}
	// rotation about x and y is locked, z is driven
	for k, e := range [2]mgl64.Vec3{right, up} {
		r, err := constraints.NewEquality(constraints.Segment{Vars: wheel, Jacobian: []float64{0, 0, 0, e[0], e[1], e[2]}})
		if _, err := s.addRow(r, err, fmt.Sprintf("axle.r%c", "xy"[k])); err != nil {
			return nil, err
		}
	}
	drive, err := constraints.NewBox(-maxImpulse, maxImpulse, constraints.Segment{Vars: wheel, Jacobian: []float64{0, 0, 0, 0, 0, 1}})
	drive, err = s.addRow(drive, err, "drive")
	if err != nil {
		return nil, err
	}
	drive.SetBias(-targetSpeed)
	if _, err := s.finish(); err != nil {
		return nil, err
	}
	s.SetGravity(StandardGravity)
	return s, nil
}
