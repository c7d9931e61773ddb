package solver_test

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/gomega"
	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/mass"
	"github.com/san-kum/mbsolve/internal/variables"
)

func pointBody(m float64) *variables.Variables {
	b, err := mass.NewPointBody(m)
	Expect(err).NotTo(HaveOccurred())
	return variables.NewBody(b)
}

func boxBody(m float64) *variables.Variables {
	b, err := mass.NewBody(m, mgl64.Diag3(mgl64.Vec3{m / 6, m / 6, m / 6}))
	Expect(err).NotTo(HaveOccurred())
	return variables.NewBody(b)
}

func axis(i int, s float64) []float64 {
	j := make([]float64, mass.BodyDof)
	j[i] = s
	return j
}

func seg(v *variables.Variables, j []float64) constraints.Segment {
	return constraints.Segment{Vars: v, Jacobian: j}
}

func mustRow(r *constraints.Row, err error) *constraints.Row {
	Expect(err).NotTo(HaveOccurred())
	return r
}

// pairSystem joins a (mass 1) and b (mass 2) along x, a moving at 5.
func pairSystem() (*descriptor.Descriptor, []float64, *constraints.Row) {
	a, b := pointBody(1), pointBody(2)
	r := mustRow(constraints.NewEquality(seg(a, axis(0, 1)), seg(b, axis(0, -1))))
	d := descriptor.New()
	d.InsertVariables(a, b)
	d.InsertConstraints(r)
	Expect(d.Assemble()).To(Succeed())
	free := make([]float64, 12)
	free[0] = 5
	return d, free, r
}

// chainSystem links n point bodies of the given masses along x with
// equality rows and gives the first body velocity 1.
func chainSystem(masses ...float64) (*descriptor.Descriptor, []float64, []*constraints.Row) {
	d := descriptor.New()
	vars := make([]*variables.Variables, len(masses))
	for i, m := range masses {
		vars[i] = pointBody(m)
	}
	d.InsertVariables(vars...)
	var rows []*constraints.Row
	for i := 0; i+1 < len(vars); i++ {
		r := mustRow(constraints.NewEquality(seg(vars[i], axis(0, 1)), seg(vars[i+1], axis(0, -1))))
		rows = append(rows, r)
	}
	d.InsertConstraints(rows...)
	Expect(d.Assemble()).To(Succeed())
	free := make([]float64, d.Dof())
	free[0] = 1
	return d, free, rows
}

// restingBox puts one box on the ground with a normal row along y and two
// friction rows, falling at vy and sliding at vx.
func restingBox(vx, vy, mu float64) (*descriptor.Descriptor, []float64, *constraints.Row, []*constraints.Row) {
	box := boxBody(1)
	n := mustRow(constraints.NewContact(seg(box, axis(1, 1))))
	fx := mustRow(constraints.NewFriction(n, mu, seg(box, axis(0, 1))))
	fz := mustRow(constraints.NewFriction(n, mu, seg(box, axis(2, 1))))
	d := descriptor.New()
	d.InsertVariables(box)
	d.InsertConstraints(n, fx, fz)
	Expect(d.Assemble()).To(Succeed())
	free := make([]float64, 6)
	free[0], free[1] = vx, vy
	return d, free, n, []*constraints.Row{fx, fz}
}

// ladder builds n independent pairs, all rows falling in one color.
func ladder(n int) (*descriptor.Descriptor, []float64) {
	d := descriptor.New()
	for i := 0; i < n; i++ {
		a, b := pointBody(1), pointBody(1)
		d.InsertVariables(a, b)
		d.InsertConstraints(mustRow(constraints.NewEquality(seg(a, axis(0, 1)), seg(b, axis(0, -1)))))
	}
	Expect(d.Assemble()).To(Succeed())
	free := make([]float64, d.Dof())
	for i := 0; i < len(free); i += 12 {
		free[i] = 1
	}
	return d, free
}

type countingRecorder struct {
	calls     int
	lastName  string
	converged bool
}

func (c *countingRecorder) ObserveSolve(solver string, iterations int, residual float64, converged bool, elapsed time.Duration) {
	c.calls++
	c.lastName = solver
	c.converged = converged
}
