package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"goplan/internal/testkit"
)

// Scenario describes one benchmark run: the world to plan in, the case
// base to warm-start from, and the per-query solve budget.
type Scenario struct {
	Name    string       `yaml:"name"`
	World   WorldConfig  `yaml:"world"`
	Queries int          `yaml:"queries"`
	Cases   int          `yaml:"cases"`
	KNN     int          `yaml:"knn"`
	Solver  SolverConfig `yaml:"solver"`
	Seed    int64        `yaml:"seed"`
	Report  string       `yaml:"report"`
}

// WorldConfig selects and sizes the scenario world. Kind is "arm" for a
// planar manipulator or "point" for a free-flying point in a box.
type WorldConfig struct {
	Kind           string             `yaml:"kind"`
	Lengths        []float64          `yaml:"lengths"`
	SpheresPerLink int                `yaml:"spheres_per_link"`
	SphereRadius   float64            `yaml:"sphere_radius"`
	SelfCollision  bool               `yaml:"self_collision"`
	Lower          []float64          `yaml:"lower"`
	Upper          []float64          `yaml:"upper"`
	Start          []float64          `yaml:"start"`
	Obstacles      []testkit.Obstacle `yaml:"obstacles"`
}

// SolverConfig carries the per-query solve budget.
type SolverConfig struct {
	MaxCalls  int    `yaml:"max_calls"`
	Timeout   string `yaml:"timeout"`
	Waypoints int    `yaml:"waypoints"`
	Workers   int    `yaml:"workers"`
}

// DefaultScenario is the built-in benchmark: a two-link arm reaching past
// a single overhead obstacle.
func DefaultScenario() Scenario {
	return Scenario{
		Name: "two-link-reach",
		World: WorldConfig{
			Kind:           "arm",
			Lengths:        []float64{1.0, 1.0},
			SpheresPerLink: 3,
			SphereRadius:   0.1,
			Obstacles: []testkit.Obstacle{
				{Center: []float64{0.0, 1.5}, Radius: 0.25},
			},
		},
		Queries: 20,
		Cases:   100,
		KNN:     1,
		Solver: SolverConfig{
			MaxCalls:  2000,
			Timeout:   "5s",
			Waypoints: 20,
			Workers:   4,
		},
		Seed:   42,
		Report: "solvebench.xlsx",
	}
}

// LoadScenario reads a YAML scenario file. Fields omitted from the file
// keep their DefaultScenario values.
func LoadScenario(path string) (Scenario, error) {
	sc := DefaultScenario()

	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (s Scenario) validate() error {
	if s.Queries < 1 {
		return fmt.Errorf("scenario %q: queries must be positive, got %d", s.Name, s.Queries)
	}
	if s.Cases < 1 {
		return fmt.Errorf("scenario %q: cases must be positive, got %d", s.Name, s.Cases)
	}
	if _, err := s.timeout(); err != nil {
		return err
	}
	if _, err := s.buildWorld(); err != nil {
		return err
	}
	return nil
}

// timeout parses the per-query solve budget. An empty string means no
// deadline.
func (s Scenario) timeout() (time.Duration, error) {
	if s.Solver.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Solver.Timeout)
	if err != nil {
		return 0, fmt.Errorf("scenario %q: bad solver timeout: %w", s.Name, err)
	}
	return d, nil
}

// buildWorld constructs the configured world.
func (s Scenario) buildWorld() (testkit.ProblemSource, error) {
	switch s.World.Kind {
	case "arm":
		config := testkit.ArmConfig{
			Lengths:        s.World.Lengths,
			SpheresPerLink: s.World.SpheresPerLink,
			SphereRadius:   s.World.SphereRadius,
			SelfCollision:  s.World.SelfCollision,
		}
		return testkit.NewArmWorld(config, s.World.Obstacles)
	case "point":
		return testkit.NewPointWorld(s.World.Lower, s.World.Upper, s.World.Start, s.World.Obstacles)
	default:
		return nil, fmt.Errorf("scenario %q: unknown world kind %q", s.Name, s.World.Kind)
	}
}
