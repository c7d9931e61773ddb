package variables

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/mass"
	"github.com/san-kum/mbsolve/internal/sparse"
)

func newBody(t *testing.T, m float64) *Variables {
	t.Helper()
	b, err := mass.NewBody(m, mgl64.Diag3(mgl64.Vec3{m, 2 * m, 3 * m}))
	if err != nil {
		t.Fatal(err)
	}
	return NewBody(b)
}

func TestVariables_InverseMassAtOffset(t *testing.T) {
	v := newBody(t, 2.0)
	if v.Assembled() {
		t.Fatal("fresh variables should not be assembled")
	}
	if got := v.ComputeInverseMassTimes(make([]float64, 6)); got != nil {
		t.Errorf("unassembled result = %v, want nil", got)
	}

	v.SetOffset(3)
	vect := []float64{9, 9, 9, 2, 4, 6, 2, 4, 6}
	got := v.ComputeInverseMassTimes(vect)
	want := []float64{1, 2, 3, 1, 1, 1}
	if len(got) != 6 {
		t.Fatalf("result length %d, want 6", len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestVariables_AccumulateMassTimes(t *testing.T) {
	v := newBody(t, 1.0)
	v.SetOffset(1)

	vect := []float64{0, 1, 1, 1, 1, 1, 1}
	result := []float64{5, 0, 0, 0, 0, 0, 0}
	v.AccumulateMassTimes(vect, 2, result)

	want := []float64{5, 2, 2, 2, 2, 4, 6}
	for i := range want {
		if result[i] != want[i] {
			t.Errorf("result[%d] = %v, want %v", i, result[i], want[i])
		}
	}
}

func TestVariables_SparseAndDiagonal(t *testing.T) {
	v := newBody(t, 3.0)
	v.SetOffset(0)

	m := sparse.NewCOO(8, 8)
	v.WriteMassIntoSparseMatrix(m, 2, 2, 0.5)
	if got := m.At(2, 2); got != 1.5 {
		t.Errorf("M[2,2] = %v, want 1.5", got)
	}
	if got := m.At(7, 7); got != 4.5 {
		t.Errorf("M[7,7] = %v, want 4.5", got)
	}
	if got := m.At(0, 0); got != 0 {
		t.Errorf("entry outside placement: %v", got)
	}

	diag := make([]float64, 6)
	v.WriteDiagonalInto(diag, 1)
	if diag[0] != 3 || diag[4] != 6 {
		t.Errorf("diagonal = %v", diag)
	}
}

func TestVariables_DisabledIsNoop(t *testing.T) {
	v := newBody(t, 1.0)
	v.SetOffset(0)
	v.SetDisabled(true)

	vect := []float64{1, 1, 1, 1, 1, 1}
	result := make([]float64, 6)
	v.AccumulateMassTimes(vect, 1, result)
	v.WriteDiagonalInto(result, 1)
	v.InverseMassTimesInto(result, vect)
	m := sparse.NewCOO(6, 6)
	v.WriteMassIntoSparseMatrix(m, 0, 0, 1)

	if dynamo.Vector(result).MaxAbs() != 0 || m.Len() != 0 {
		t.Error("disabled variables wrote into global storage")
	}
	if v.ComputeInverseMassTimes(vect) != nil {
		t.Error("disabled variables returned a result")
	}
}

func TestVariables_SharedAndValidate(t *testing.T) {
	pool := mass.NewPool()
	h, _ := pool.Add(2.0, mgl64.Ident3())
	v, err := NewShared(pool, h)
	if err != nil {
		t.Fatal(err)
	}
	if v.Dof() != mass.BodyDof {
		t.Errorf("dof = %d", v.Dof())
	}
	if _, err := NewShared(pool, 5); !errors.Is(err, dynamo.ErrDanglingReference) {
		t.Errorf("bad handle: %v", err)
	}

	bad := New(&mass.Body{})
	if err := bad.Validate(); !errors.Is(err, dynamo.ErrInvalidMass) {
		t.Errorf("zero body: %v", err)
	}
	if err := New(nil).Validate(); !errors.Is(err, dynamo.ErrInvalidMass) {
		t.Errorf("nil block: %v", err)
	}
}
