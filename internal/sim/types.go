package sim

import (
	"fmt"

	"github.com/san-kum/mbsolve/internal/metrics"
)

// Metric accumulates a scalar over a run.
type Metric interface {
	Name() string
	Observe(s metrics.Sample)
	Value() float64
	Reset()
}

// Observer sees every finished step together with the adopted velocities.
// The slice is owned by the simulator and must not be retained.
type Observer interface {
	OnStep(rec StepRecord, v []float64)
}

type Config struct {
	Dt    float64
	Steps int
	// ValidateState stops the run at the first step producing NaN or Inf
	// velocities.
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		Steps:         100,
		ValidateState: true,
	}
}

type StepRecord struct {
	Step       int     `json:"step"`
	Time       float64 `json:"time"`
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"`
	Violation  float64 `json:"violation"`
	Energy     float64 `json:"energy"`
	Converged  bool    `json:"converged"`
}

func (r StepRecord) sample() metrics.Sample {
	return metrics.Sample{
		Step:       r.Step,
		Time:       r.Time,
		Energy:     r.Energy,
		Iterations: r.Iterations,
		Residual:   r.Residual,
		Violation:  r.Violation,
		Converged:  r.Converged,
	}
}

type Result struct {
	Steps      []StepRecord
	Velocities []float64
	Metrics    map[string]float64
	Errors     []error
	StepsTaken int
	// EnergyGain is final minus initial kinetic energy.
	EnergyGain float64
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
