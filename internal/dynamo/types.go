package dynamo

import "math"

// Vector is a dense vector of generalized velocities, forces or multipliers.
type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// MaxAbs returns the infinity norm.
func (v Vector) MaxAbs() float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

func (v Vector) Dot(other Vector) float64 {
	sum := 0.0
	for i := range v {
		if i < len(other) {
			sum += v[i] * other[i]
		}
	}
	return sum
}

// AddScaled sets v += s*other in place and returns v.
func (v Vector) AddScaled(s float64, other Vector) Vector {
	for i := range v {
		if i < len(other) {
			v[i] += s * other[i]
		}
	}
	return v
}

func (v Vector) Sub(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] - other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

func (v Vector) Scale(factor float64) Vector {
	result := make(Vector, len(v))
	for i := range v {
		result[i] = v[i] * factor
	}
	return result
}

func (v Vector) Zero() {
	for i := range v {
		v[i] = 0
	}
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
