package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/mbsolve/internal/config"
	"github.com/san-kum/mbsolve/internal/metrics"
	"github.com/san-kum/mbsolve/internal/scene"
	"github.com/san-kum/mbsolve/internal/sim"
	"github.com/san-kum/mbsolve/internal/solver"
)

type Registry struct {
	scenes  map[string]func(cfg *config.Config) (*scene.Scene, error)
	solvers map[string]func(cfg solver.Config, opts ...solver.Option) (solver.Solver, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		scenes:  make(map[string]func(*config.Config) (*scene.Scene, error)),
		solvers: make(map[string]func(solver.Config, ...solver.Option) (solver.Solver, error)),
	}

	r.scenes["pair"] = func(c *config.Config) (*scene.Scene, error) {
		return scene.Pair(c.Param("m1", 1), c.Param("m2", 2), c.Param("v1", 5), c.Param("v2", 0))
	}
	r.scenes["chain"] = func(c *config.Config) (*scene.Scene, error) {
		return scene.Chain(int(c.Param("links", 4)), c.Param("mass", 1), c.Param("length", 0.5), c.Param("swing", 2))
	}
	r.scenes["stack"] = func(c *config.Config) (*scene.Scene, error) {
		return scene.Stack(int(c.Param("boxes", 5)), c.Param("mass", 1), c.Param("mu", 0.6), c.Param("push", 0))
	}
	r.scenes["pile"] = func(c *config.Config) (*scene.Scene, error) {
		return scene.Pile(int(c.Param("spheres", 6)), c.Param("mass", 1), c.Param("radius", 0.25), c.Param("mu", 0.5))
	}
	r.scenes["motor"] = func(c *config.Config) (*scene.Scene, error) {
		return scene.Motor(c.Param("inertia", 0.5), c.Param("max_impulse", 0.05), c.Param("target", 20))
	}

	r.solvers["psor"] = func(cfg solver.Config, opts ...solver.Option) (solver.Solver, error) {
		return solver.NewPSOR(cfg, opts...)
	}
	r.solvers["apgd"] = func(cfg solver.Config, opts ...solver.Option) (solver.Solver, error) {
		return solver.NewAPGD(cfg, opts...)
	}
	r.solvers["direct"] = func(cfg solver.Config, opts ...solver.Option) (solver.Solver, error) {
		return solver.NewDirect(opts...), nil
	}

	return r
}

// GetScene builds the configured scenario with the configured gravity.
func (r *Registry) GetScene(cfg *config.Config) (*scene.Scene, error) {
	fn, ok := r.scenes[cfg.Scenario]
	if !ok {
		return nil, fmt.Errorf("unknown scenario: %s", cfg.Scenario)
	}
	s, err := fn(cfg)
	if err != nil {
		return nil, err
	}
	s.SetGravity(cfg.Gravity)
	return s, nil
}

func (r *Registry) GetSolver(name string, cfg solver.Config, opts ...solver.Option) (solver.Solver, error) {
	fn, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
	return fn(cfg, opts...)
}

func (r *Registry) ListScenes() []string  { return sortedKeys(r.scenes) }
func (r *Registry) ListSolvers() []string { return sortedKeys(r.solvers) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics() []sim.Metric {
	return []sim.Metric{
		metrics.NewKineticEnergy(),
		metrics.NewMaxViolation(),
		metrics.NewIterationCount(),
	}
}
