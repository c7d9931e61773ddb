package metrics

// Sample is what the stepper reports to harness metrics after each step.
type Sample struct {
	Step       int
	Time       float64
	Energy     float64
	Iterations int
	Residual   float64
	Violation  float64
	Converged  bool
}
