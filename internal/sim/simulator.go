package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/solver"
)

// Simulator advances a descriptor at velocity level. Each step computes
// the free velocities v + dt·M⁻¹·f, hands them to the solver and adopts
// the constrained result.
type Simulator struct {
	desc      *descriptor.Descriptor
	solver    solver.Solver
	cfg       Config
	logger    *slog.Logger
	metrics   []Metric
	observers []Observer

	v      []float64
	forces []float64
	step   int
	t      float64
}

func New(d *descriptor.Descriptor, s solver.Solver, cfg Config) (*Simulator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if d == nil || s == nil {
		return nil, fmt.Errorf("simulator needs a descriptor and a solver: %w", dynamo.ErrInvalidConfig)
	}
	if !d.Assembled() {
		if err := d.Assemble(); err != nil {
			return nil, err
		}
	}
	return &Simulator{
		desc:   d,
		solver: s,
		cfg:    cfg,
		logger: slog.Default(),
		v:      make([]float64, d.Dof()),
		forces: make([]float64, d.Dof()),
	}, nil
}

func (s *Simulator) AddMetric(m Metric)                 { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer)             { s.observers = append(s.observers, o) }
func (s *Simulator) SetLogger(l *slog.Logger)           { s.logger = l }
func (s *Simulator) Config() Config                     { return s.cfg }
func (s *Simulator) Descriptor() *descriptor.Descriptor { return s.desc }

// Velocities returns the current velocity vector. It changes on every step.
func (s *Simulator) Velocities() []float64 { return s.v }

func (s *Simulator) Time() float64 { return s.t }

// SetState replaces the velocities and the external forces. A nil forces
// vector means no forces.
func (s *Simulator) SetState(v, forces []float64) error {
	n := s.desc.Dof()
	if len(v) != n || (forces != nil && len(forces) != n) {
		return fmt.Errorf("state length %d/%d, dof %d: %w", len(v), len(forces), n, dynamo.ErrDimensionMismatch)
	}
	copy(s.v, v)
	if forces == nil {
		dynamo.Vector(s.forces).Zero()
	} else {
		copy(s.forces, forces)
	}
	s.step = 0
	s.t = 0
	return nil
}

// Step advances one time step and notifies metrics and observers.
func (s *Simulator) Step(ctx context.Context) (StepRecord, error) {
	free, err := s.desc.FreeVelocities(s.v, s.forces, s.cfg.Dt)
	if err != nil {
		return StepRecord{}, err
	}
	if s.cfg.ValidateState && !dynamo.Vector(free).IsValid() {
		return StepRecord{}, SimError{Time: s.t, Step: s.step, Message: "invalid free velocities (NaN/Inf)"}
	}
	res, err := s.solver.Solve(ctx, s.desc, free)
	if err != nil {
		return StepRecord{}, fmt.Errorf("step %d: %w", s.step, err)
	}

	if s.cfg.ValidateState && !dynamo.Vector(res.Velocities).IsValid() {
		return StepRecord{}, SimError{Time: s.t, Step: s.step, Message: "invalid velocities (NaN/Inf)"}
	}
	copy(s.v, res.Velocities)
	s.t += s.cfg.Dt

	energy, err := s.desc.KineticEnergy(s.v)
	if err != nil {
		return StepRecord{}, err
	}
	rec := StepRecord{
		Step:       s.step,
		Time:       s.t,
		Iterations: res.Iterations,
		Residual:   res.Residual,
		Violation:  res.Violation,
		Energy:     energy,
		Converged:  res.Converged,
	}
	s.step++

	sample := rec.sample()
	for _, m := range s.metrics {
		m.Observe(sample)
	}
	for _, obs := range s.observers {
		obs.OnStep(rec, s.v)
	}
	return rec, nil
}

// Run takes cfg.Steps steps from the current state. Cancellation is checked
// between steps and returns the partial result with ctx.Err().
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		Steps:   make([]StepRecord, 0, s.cfg.Steps),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	initial, err := s.desc.KineticEnergy(s.v)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("run started",
		slog.Int("steps", s.cfg.Steps),
		slog.Float64("dt", s.cfg.Dt),
		slog.String("solver", s.solver.Name()),
		slog.Int("dof", s.desc.Dof()),
		slog.Int("rows", s.desc.ConstraintCount()),
	)

	for i := 0; i < s.cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			s.finish(result, initial)
			return result, ctx.Err()
		default:
		}

		rec, err := s.Step(ctx)
		if err != nil {
			var simErr SimError
			if errors.As(err, &simErr) {
				result.Errors = append(result.Errors, simErr)
				break
			}
			s.finish(result, initial)
			return result, err
		}
		result.Steps = append(result.Steps, rec)
		result.StepsTaken++
	}

	s.finish(result, initial)
	return result, nil
}

func (s *Simulator) finish(result *Result, initial float64) {
	result.Velocities = dynamo.Vector(s.v).Clone()
	if final, err := s.desc.KineticEnergy(s.v); err == nil {
		result.EnergyGain = final - initial
	}
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

func validateConfig(cfg Config) error {
	if !(cfg.Dt > 0) || !dynamo.IsFinite(cfg.Dt) {
		return fmt.Errorf("dt must be positive, got %f: %w", cfg.Dt, dynamo.ErrInvalidConfig)
	}
	if cfg.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d: %w", cfg.Steps, dynamo.ErrInvalidConfig)
	}
	return nil
}
