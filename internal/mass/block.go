package mass

// Block is the capability set of an inertial block. src and dst are local
// slices of length Dof().
type Block interface {
	Dof() int
	// MulInverse sets dst = M⁻¹·src.
	MulInverse(dst, src []float64)
	// MulAddInverse sets dst += M⁻¹·src.
	MulAddInverse(dst, src []float64)
	// MulAdd sets dst += scale·M·src.
	MulAdd(dst, src []float64, scale float64)
	// AddDiagonal sets dst[i] += scale·M[i][i].
	AddDiagonal(dst []float64, scale float64)
	// Entries enumerates the nonzero entries of M in row-major order.
	Entries(fn func(row, col int, v float64))
	Validate() error
}
