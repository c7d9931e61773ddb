package descriptor

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/mass"
	"github.com/san-kum/mbsolve/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func body(t *testing.T, m float64) *variables.Variables {
	t.Helper()
	b, err := mass.NewBody(m, mgl64.Diag3(mgl64.Vec3{m, 2 * m, 3 * m}))
	require.NoError(t, err)
	return variables.NewBody(b)
}

func axis(i int, s float64) []float64 {
	j := make([]float64, mass.BodyDof)
	j[i] = s
	return j
}

func pair(t *testing.T) (*Descriptor, *variables.Variables, *variables.Variables, *constraints.Row) {
	t.Helper()
	a, b := body(t, 1), body(t, 2)
	r, err := constraints.NewEquality(
		constraints.Segment{Vars: a, Jacobian: axis(0, 1)},
		constraints.Segment{Vars: b, Jacobian: axis(0, -1)},
	)
	require.NoError(t, err)
	d := New()
	d.InsertVariables(a, b)
	d.InsertConstraints(r)
	return d, a, b, r
}

func TestAssemble_OffsetsTile(t *testing.T) {
	a, b, c := body(t, 1), body(t, 2), body(t, 3)
	diag, err := mass.NewDiagonal(1, 2, 3)
	require.NoError(t, err)
	g := variables.New(diag)

	d := New()
	d.InsertVariables(a, b, g, c)
	b.SetDisabled(true)
	require.NoError(t, d.Assemble())

	assert.Equal(t, 0, a.Offset())
	assert.Equal(t, variables.Unassigned, b.Offset())
	assert.Equal(t, 6, g.Offset())
	assert.Equal(t, 9, c.Offset())
	assert.Equal(t, 15, d.Dof())
	assert.Len(t, d.Variables(), 3)
	assert.Len(t, d.AllVariables(), 4)

	b.SetDisabled(false)
	require.NoError(t, d.Assemble())
	assert.Equal(t, 6, b.Offset())
	assert.Equal(t, 12, g.Offset())
	assert.Equal(t, 21, d.Dof())
}

func TestAssemble_InactiveRowDropped(t *testing.T) {
	d, a, b, r := pair(t)
	a.SetDisabled(true)
	b.SetDisabled(true)
	require.NoError(t, d.Assemble())
	assert.Equal(t, 0, d.ConstraintCount())
	assert.False(t, r.IsActive())

	a.SetDisabled(false)
	b.SetDisabled(false)
	r.SetDisabled(true)
	require.NoError(t, d.Assemble())
	assert.Equal(t, 0, d.ConstraintCount())
	assert.Equal(t, 12, d.Dof())
}

func TestAssemble_FrictionDroppedWithNormal(t *testing.T) {
	box := body(t, 1)
	n, err := constraints.NewContact(constraints.Segment{Vars: box, Jacobian: axis(1, 1)})
	require.NoError(t, err)
	f, err := constraints.NewFriction(n, 0.5, constraints.Segment{Vars: box, Jacobian: axis(0, 1)})
	require.NoError(t, err)

	d := New()
	d.InsertVariables(box)
	d.InsertConstraints(n, f)
	require.NoError(t, d.Assemble())
	assert.Equal(t, 2, d.ConstraintCount())

	n.SetMultiplier(1)
	f.SetMultiplier(-0.5)
	n.SetDisabled(true)
	require.NoError(t, d.Assemble())
	assert.Equal(t, 0, d.ConstraintCount())
	assert.Zero(t, f.Multiplier())
}

func TestRefresh_SeesMassAndCompliance(t *testing.T) {
	d, a, _, r := pair(t)
	assert.ErrorIs(t, d.Refresh(), dynamo.ErrDegenerateSystem)

	require.NoError(t, d.Assemble())
	assert.InDelta(t, 1.5, r.EffectiveMass(), 1e-12)

	require.NoError(t, a.Block().(*mass.Body).SetMass(4))
	require.NoError(t, d.Refresh())
	assert.InDelta(t, 0.75, r.EffectiveMass(), 1e-12)

	require.NoError(t, r.SetCompliance(0.5))
	require.NoError(t, d.Refresh())
	assert.InDelta(t, 1.25, r.EffectiveMass(), 1e-12)
	assert.Equal(t, 0, a.Offset())
}

func TestAssemble_Errors(t *testing.T) {
	t.Run("dangling", func(t *testing.T) {
		d, _, b, _ := pair(t)
		require.True(t, d.RemoveVariables(b))
		err := d.Assemble()
		require.ErrorIs(t, err, dynamo.ErrDanglingReference)
		var ae *dynamo.AssemblyError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 0, ae.Row)
	})

	t.Run("duplicate variables", func(t *testing.T) {
		d, a, _, _ := pair(t)
		d.InsertVariables(a)
		assert.ErrorIs(t, d.Assemble(), dynamo.ErrDuplicateInsertion)
	})

	t.Run("duplicate row", func(t *testing.T) {
		d, _, _, r := pair(t)
		d.InsertConstraints(r)
		assert.ErrorIs(t, d.Assemble(), dynamo.ErrDuplicateInsertion)
	})

	t.Run("friction without normal", func(t *testing.T) {
		d, a, b, _ := pair(t)
		n, err := constraints.NewContact(
			constraints.Segment{Vars: a, Jacobian: axis(1, 1)},
			constraints.Segment{Vars: b, Jacobian: axis(1, -1)},
		)
		require.NoError(t, err)
		f, err := constraints.NewFriction(n, 0.5,
			constraints.Segment{Vars: a, Jacobian: axis(2, 1)},
			constraints.Segment{Vars: b, Jacobian: axis(2, -1)},
		)
		require.NoError(t, err)
		d.InsertConstraints(f)
		assert.ErrorIs(t, d.Assemble(), dynamo.ErrDanglingReference)
	})

	t.Run("invalid mass leaves nothing assigned", func(t *testing.T) {
		d, a, b, _ := pair(t)
		diag, err := mass.NewDiagonal(1)
		require.NoError(t, err)
		extra := variables.New(diag)
		d.InsertVariables(extra)
		require.NoError(t, d.Assemble())
		require.Equal(t, 12, extra.Offset())

		d.InsertVariables(variables.New(nil))
		err = d.Assemble()
		require.ErrorIs(t, err, dynamo.ErrInvalidMass)
		var ae *dynamo.AssemblyError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 3, ae.Variable)
		assert.False(t, d.Assembled())
		assert.Equal(t, variables.Unassigned, a.Offset())
		assert.Equal(t, variables.Unassigned, b.Offset())
		assert.Equal(t, variables.Unassigned, extra.Offset())
	})
}

func TestProducts_Unassembled(t *testing.T) {
	d, _, _, _ := pair(t)
	dst := make([]float64, 12)
	assert.ErrorIs(t, d.MassTimes(dst, dst), dynamo.ErrDegenerateSystem)

	require.NoError(t, d.Assemble())
	assert.ErrorIs(t, d.MassTimes(dst[:3], dst), dynamo.ErrDimensionMismatch)
	assert.ErrorIs(t, d.JacobianTimes(make([]float64, 2), dst), dynamo.ErrDimensionMismatch)
}

func TestProducts_MatchSparse(t *testing.T) {
	d, _, _, r := pair(t)
	r.SetBias(0.5)
	require.NoError(t, r.SetCompliance(0.1))
	require.NoError(t, d.Assemble())

	view, err := d.BuildSparse()
	require.NoError(t, err)
	rows, cols := view.Jacobian.Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 12, cols)
	assert.Equal(t, []float64{0.5}, view.Bias)
	assert.Equal(t, []float64{0.1}, view.Compliance)

	x := make([]float64, 12)
	for i := range x {
		x[i] = float64(i + 1)
	}

	got := make([]float64, 12)
	want := make([]float64, 12)
	require.NoError(t, d.MassTimes(got, x))
	view.Mass.MulVec(want, x)
	assert.InDeltaSlice(t, want, got, 1e-12)

	// M⁻¹·M·x == x
	back := make([]float64, 12)
	require.NoError(t, d.InverseMassTimes(back, got))
	assert.InDeltaSlice(t, x, back, 1e-9)

	diag := make([]float64, 12)
	require.NoError(t, d.MassDiagonal(diag))
	for i := range diag {
		assert.InDelta(t, view.Mass.At(i, i), diag[i], 1e-12)
	}

	jv := make([]float64, 1)
	require.NoError(t, d.JacobianTimes(jv, x))
	assert.InDelta(t, x[0]-x[6], jv[0], 1e-12)

	rhs := make([]float64, 1)
	require.NoError(t, d.ConstraintRHS(rhs, x))
	assert.InDelta(t, x[0]-x[6]+0.5, rhs[0], 1e-12)

	jt := make([]float64, 12)
	require.NoError(t, d.JacobianTransposeTimes(jt, []float64{3}))
	assert.Equal(t, 3.0, jt[0])
	assert.Equal(t, -3.0, jt[6])
}

func TestSchurTimes_MatchesDense(t *testing.T) {
	a, b, c := body(t, 1), body(t, 2), body(t, 4)
	r1, err := constraints.NewEquality(
		constraints.Segment{Vars: a, Jacobian: axis(0, 1)},
		constraints.Segment{Vars: b, Jacobian: axis(0, -1)},
	)
	require.NoError(t, err)
	r2, err := constraints.NewContact(
		constraints.Segment{Vars: b, Jacobian: []float64{0, 1, 0, 0, 0, 1}},
		constraints.Segment{Vars: c, Jacobian: axis(1, -1)},
	)
	require.NoError(t, err)
	require.NoError(t, r2.SetCompliance(0.25))

	d := New()
	d.InsertVariables(a, b, c)
	d.InsertConstraints(r1, r2)
	require.NoError(t, d.Assemble())

	view, err := d.BuildSparse()
	require.NoError(t, err)
	M := view.Mass.ToDense()
	J := view.Jacobian.ToDense()

	var inv mat.Dense
	require.NoError(t, inv.Inverse(M))
	var tmp, S mat.Dense
	tmp.Mul(&inv, J.T())
	S.Mul(J, &tmp)
	S.Set(1, 1, S.At(1, 1)+0.25)

	lambda := []float64{1.5, -2}
	got := make([]float64, 2)
	require.NoError(t, d.SchurTimes(got, lambda))

	var want mat.VecDense
	want.MulVec(&S, mat.NewVecDense(2, lambda))
	assert.InDelta(t, want.AtVec(0), got[0], 1e-9)
	assert.InDelta(t, want.AtVec(1), got[1], 1e-9)
	assert.InDelta(t, S.At(0, 0), r1.EffectiveMass(), 1e-9)
	assert.InDelta(t, S.At(1, 1), r2.EffectiveMass(), 1e-9)
}

func TestKKT_SolvesPair(t *testing.T) {
	d, _, _, _ := pair(t)
	require.NoError(t, d.Assemble())

	free := make([]float64, 12)
	free[0] = 5
	K, rhs, err := d.KKT(free)
	require.NoError(t, err)
	n, _ := K.Dims()
	require.Equal(t, 13, n)

	var x mat.VecDense
	require.NoError(t, x.SolveVec(K.ToDense(), mat.NewVecDense(n, rhs)))
	assert.InDelta(t, 5.0/3.0, x.AtVec(0), 1e-9)
	assert.InDelta(t, 5.0/3.0, x.AtVec(6), 1e-9)
	assert.InDelta(t, -10.0/3.0, x.AtVec(12), 1e-9)
}

func TestFreeVelocities(t *testing.T) {
	d, _, _, _ := pair(t)
	require.NoError(t, d.Assemble())

	v := make([]float64, 12)
	f := make([]float64, 12)
	f[1], f[7] = -9.81, -2*9.81
	out, err := d.FreeVelocities(v, f, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, -0.981, out[1], 1e-12)
	assert.InDelta(t, -0.981, out[7], 1e-12)

	ke, err := d.KineticEnergy(out)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*(1+2)*0.981*0.981, ke, 1e-12)
}

func TestMultipliers_RoundTrip(t *testing.T) {
	d, _, _, r := pair(t)
	require.NoError(t, d.Assemble())
	require.NoError(t, d.SetMultipliers([]float64{4}))
	assert.Equal(t, 4.0, r.Multiplier())
	assert.Equal(t, []float64{4}, d.Multipliers())
	assert.ErrorIs(t, d.SetMultipliers(nil), dynamo.ErrDimensionMismatch)
}

func TestColoring_Disjoint(t *testing.T) {
	bodies := make([]*variables.Variables, 5)
	for i := range bodies {
		bodies[i] = body(t, float64(i+1))
	}
	d := New()
	d.InsertVariables(bodies...)

	var normals []*constraints.Row
	for i := 0; i+1 < len(bodies); i++ {
		n, err := constraints.NewContact(
			constraints.Segment{Vars: bodies[i], Jacobian: axis(1, 1)},
			constraints.Segment{Vars: bodies[i+1], Jacobian: axis(1, -1)},
		)
		require.NoError(t, err)
		normals = append(normals, n)
	}
	// friction rows inserted before their normals
	for _, n := range normals {
		segs := n.Segments()
		f, err := constraints.NewFriction(n, 0.3,
			constraints.Segment{Vars: segs[0].Vars, Jacobian: axis(0, 1)},
			constraints.Segment{Vars: segs[1].Vars, Jacobian: axis(0, -1)},
		)
		require.NoError(t, err)
		d.InsertConstraints(f)
	}
	d.InsertConstraints(normals...)
	require.NoError(t, d.Assemble())

	groups := d.Coloring()
	rows := d.Constraints()
	seen := make(map[int]int)
	for c, g := range groups {
		used := make(map[*variables.Variables]bool)
		for _, i := range g {
			seen[i] = c
			for _, v := range rows[i].Variables() {
				assert.False(t, used[v], "color %d shares variables", c)
				used[v] = true
			}
		}
	}
	assert.Len(t, seen, len(rows))
	for i, r := range rows {
		if n := r.Normal(); n != nil {
			for j, other := range rows {
				if other == n {
					assert.NotEqual(t, seen[i], seen[j])
				}
			}
		}
	}
}
