package config

import (
	"sort"

	"github.com/san-kum/mbsolve/internal/solver"
)

func preset(scenario string, steps int, params map[string]float64, tune func(*solver.Config)) *Config {
	cfg := DefaultConfig()
	cfg.Scenario = scenario
	cfg.Steps = steps
	cfg.Params = params
	if tune != nil {
		tune(&cfg.Solve)
	}
	return cfg
}

var Presets = map[string]map[string]*Config{
	"pair": {
		"textbook": preset("pair", 1, map[string]float64{"m1": 1, "m2": 2, "v1": 5, "v2": 0}, nil),
		"headon":   preset("pair", 1, map[string]float64{"m1": 1, "m2": 1, "v1": 3, "v2": -3}, nil),
		"heavy":    preset("pair", 1, map[string]float64{"m1": 1, "m2": 1000, "v1": 1, "v2": 0}, nil),
	},
	"chain": {
		"short": preset("chain", 200, map[string]float64{"links": 4, "mass": 1, "length": 0.5, "swing": 2}, nil),
		"long": preset("chain", 300, map[string]float64{"links": 20, "mass": 1, "length": 0.25, "swing": 3}, func(s *solver.Config) {
			s.MaxIterations = 200
		}),
		"relaxed": preset("chain", 200, map[string]float64{"links": 8, "mass": 1, "length": 0.5, "swing": 1}, func(s *solver.Config) {
			s.MaxIterations = 400
			s.Omega = 1.3
		}),
	},
	"stack": {
		"tower": preset("stack", 200, map[string]float64{"boxes": 5, "mass": 1, "mu": 0.6}, nil),
		"slide": preset("stack", 200, map[string]float64{"boxes": 2, "mass": 1, "mu": 0.2, "push": 2}, nil),
		"tall": preset("stack", 200, map[string]float64{"boxes": 16, "mass": 1, "mu": 0.8}, func(s *solver.Config) {
			s.MaxIterations = 300
			s.SweepOrder = solver.Colored
		}),
	},
	"pile": {
		"column": preset("pile", 200, map[string]float64{"spheres": 6, "mass": 1, "radius": 0.25, "mu": 0.5}, nil),
		"tall": preset("pile", 200, map[string]float64{"spheres": 24, "mass": 0.5, "radius": 0.1, "mu": 0.5}, func(s *solver.Config) {
			s.MaxIterations = 300
			s.SweepOrder = solver.Random
		}),
	},
	"motor": {
		"spinup": preset("motor", 300, map[string]float64{"inertia": 0.5, "max_impulse": 0.05, "target": 20}, nil),
		"strong": preset("motor", 100, map[string]float64{"inertia": 0.5, "max_impulse": 10, "target": 20}, nil),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(scenario, preset string) *Config {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	cfg, ok := scenarioPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(scenario string) []string {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scenarioPresets))
	for name := range scenarioPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
