package solver

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"gopkg.in/yaml.v3"
)

// SweepOrder selects the row traversal order of a PSOR sweep.
type SweepOrder int

const (
	// Sequential visits rows in insertion order.
	Sequential SweepOrder = iota
	// Random visits rows in a shuffled order, reshuffled every sweep from
	// a generator seeded with Config.Seed.
	Random
	// Colored relaxes the rows of one color group concurrently.
	Colored
)

var sweepOrderNames = map[SweepOrder]string{
	Sequential: "sequential",
	Random:     "random",
	Colored:    "colored",
}

func (o SweepOrder) String() string {
	if s, ok := sweepOrderNames[o]; ok {
		return s
	}
	return fmt.Sprintf("order(%d)", int(o))
}

func ParseSweepOrder(s string) (SweepOrder, error) {
	for o, name := range sweepOrderNames {
		if strings.EqualFold(s, name) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown sweep order %q: %w", s, dynamo.ErrInvalidConfig)
}

func (o SweepOrder) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}

func (o *SweepOrder) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseSweepOrder(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

type Config struct {
	MaxIterations int        `yaml:"max_iterations" validate:"gt=0"`
	Tolerance     float64    `yaml:"tolerance" validate:"gte=0"`
	WarmStart     bool       `yaml:"warm_start"`
	SweepOrder    SweepOrder `yaml:"order" validate:"gte=0,lte=2"`
	Omega         float64    `yaml:"omega" validate:"gt=0,lt=2"`
	Seed          uint64     `yaml:"seed"`
	Workers       int        `yaml:"workers" validate:"gte=0"`
	RecordHistory bool       `yaml:"record_history"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations: 100,
		Tolerance:     1e-8,
		WarmStart:     true,
		SweepOrder:    Sequential,
		Omega:         1.0,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first offending field wrapped in
// dynamo.ErrInvalidConfig.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("solver config: %s fails %q (got %v): %w", fe.Field(), fe.Tag(), fe.Value(), dynamo.ErrInvalidConfig)
		}
		return fmt.Errorf("solver config: %v: %w", err, dynamo.ErrInvalidConfig)
	}
	return nil
}
