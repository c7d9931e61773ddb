// Package sparse holds triplet (COO) storage for exported system matrices.
package sparse

import (
	"gonum.org/v1/gonum/mat"
)

// Writer accepts additive entries; implementations must not depend on the
// order in which entries arrive.
type Writer interface {
	Add(row, col int, v float64)
}

type Triplet struct {
	Row, Col int
	Value    float64
}

// COO is an append-only coordinate matrix. Repeated (row, col) pairs are summed.
type COO struct {
	rows, cols int
	entries    []Triplet
}

func NewCOO(rows, cols int) *COO {
	return &COO{rows: rows, cols: cols}
}

func (m *COO) Dims() (int, int) { return m.rows, m.cols }
func (m *COO) Len() int         { return len(m.entries) }

func (m *COO) Entries() []Triplet { return m.entries }

func (m *COO) Add(row, col int, v float64) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic("sparse: index out of range")
	}
	if v == 0 {
		return
	}
	m.entries = append(m.entries, Triplet{Row: row, Col: col, Value: v})
}

// At sums all entries stored at (row, col). It is O(nnz), so COO serves as a
// mat.Matrix only for printing and small-matrix comparisons.
func (m *COO) At(row, col int) float64 {
	sum := 0.0
	for _, e := range m.entries {
		if e.Row == row && e.Col == col {
			sum += e.Value
		}
	}
	return sum
}

// T returns the implicit transpose.
func (m *COO) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// MulVec sets dst = m*x.
func (m *COO) MulVec(dst, x []float64) {
	for i := range dst[:m.rows] {
		dst[i] = 0
	}
	for _, e := range m.entries {
		dst[e.Row] += e.Value * x[e.Col]
	}
}

func (m *COO) ToDense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	for _, e := range m.entries {
		d.Set(e.Row, e.Col, d.At(e.Row, e.Col)+e.Value)
	}
	return d
}

// Offset wraps w so that entries land shifted by (row, col).
func Offset(w Writer, row, col int) Writer {
	return offsetWriter{w: w, row: row, col: col}
}

type offsetWriter struct {
	w        Writer
	row, col int
}

func (o offsetWriter) Add(row, col int, v float64) { o.w.Add(o.row+row, o.col+col, v) }
