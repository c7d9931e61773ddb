package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/mbsolve/internal/config"
	"github.com/san-kum/mbsolve/internal/scene"
	"github.com/san-kum/mbsolve/internal/sim"
	"github.com/san-kum/mbsolve/internal/solver"
)

// Experiment wires a config to a scene, a solver and a simulator.
type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	scene     *scene.Scene
	solver    solver.Solver
	simulator *sim.Simulator
}

func New(cfg *config.Config, registry *Registry) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Experiment{cfg: cfg, registry: registry}
}

// Setup builds everything the run needs. Metrics are added to the
// simulator in order; solver options are passed through.
func (e *Experiment) Setup(logger *slog.Logger, metrics []sim.Metric, opts ...solver.Option) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := e.registry.GetScene(e.cfg)
	if err != nil {
		return err
	}
	opts = append([]solver.Option{solver.WithLogger(logger)}, opts...)
	slv, err := e.registry.GetSolver(e.cfg.Solver, e.cfg.SolverConfig(), opts...)
	if err != nil {
		return err
	}
	simulator, err := sim.New(s.Descriptor, slv, sim.Config{
		Dt:            e.cfg.Dt,
		Steps:         e.cfg.Steps,
		ValidateState: true,
	})
	if err != nil {
		return err
	}
	if err := simulator.SetState(s.Velocities, s.Forces); err != nil {
		return err
	}
	simulator.SetLogger(logger)
	for _, m := range metrics {
		simulator.AddMetric(m)
	}

	e.scene = s
	e.solver = slv
	e.simulator = simulator
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx)
}

func (e *Experiment) Config() *config.Config    { return e.cfg }
func (e *Experiment) Scene() *scene.Scene       { return e.scene }
func (e *Experiment) Solver() solver.Solver     { return e.solver }
func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }
