package metrics

import "math"

// MaxViolation is the worst complementarity error over all steps.
type MaxViolation struct {
	name  string
	worst float64
}

func NewMaxViolation() *MaxViolation {
	return &MaxViolation{name: "max_violation"}
}

func (m *MaxViolation) Name() string { return m.name }

func (m *MaxViolation) Observe(s Sample) {
	m.worst = math.Max(m.worst, s.Violation)
}

func (m *MaxViolation) Value() float64 { return m.worst }
func (m *MaxViolation) Reset()         { m.worst = 0 }

// IterationCount averages solver iterations per step and counts steps that
// hit the iteration cap.
type IterationCount struct {
	name        string
	total       int
	samples     int
	unconverged int
}

func NewIterationCount() *IterationCount {
	return &IterationCount{name: "mean_iterations"}
}

func (c *IterationCount) Name() string { return c.name }

func (c *IterationCount) Observe(s Sample) {
	c.total += s.Iterations
	c.samples++
	if !s.Converged {
		c.unconverged++
	}
}

func (c *IterationCount) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return float64(c.total) / float64(c.samples)
}

func (c *IterationCount) Unconverged() int { return c.unconverged }

func (c *IterationCount) Reset() {
	c.total = 0
	c.samples = 0
	c.unconverged = 0
}
