package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/solver"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt      = 0.01
	DefaultSteps   = 200
	DefaultGravity = 9.81
)

type Config struct {
	Scenario string             `yaml:"scenario" validate:"required,oneof=pair chain stack pile motor"`
	Solver   string             `yaml:"solver" validate:"required,oneof=psor apgd direct"`
	Steps    int                `yaml:"steps" validate:"gt=0"`
	Dt       float64            `yaml:"dt" validate:"gt=0"`
	Gravity  float64            `yaml:"gravity" validate:"gte=0"`
	Seed     uint64             `yaml:"seed"`
	Params   map[string]float64 `yaml:"params,omitempty"`
	Solve    solver.Config      `yaml:"solve"`
}

func DefaultConfig() *Config {
	return &Config{
		Scenario: "stack",
		Solver:   "psor",
		Steps:    DefaultSteps,
		Dt:       DefaultDt,
		Gravity:  DefaultGravity,
		Solve:    solver.DefaultConfig(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("config: %s fails %q (got %v): %w", fe.Namespace(), fe.Tag(), fe.Value(), dynamo.ErrInvalidConfig)
	}
	return fmt.Errorf("config: %v: %w", err, dynamo.ErrInvalidConfig)
}

// SolverConfig returns the solve settings with the run seed applied.
func (c *Config) SolverConfig() solver.Config {
	s := c.Solve
	if c.Seed != 0 {
		s.Seed = c.Seed
	}
	return s
}

// Param returns the named scenario parameter or def when unset.
func (c *Config) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}

// Clone returns a deep copy, so presets can be modified safely.
func (c *Config) Clone() *Config {
	out := *c
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return &out
}
