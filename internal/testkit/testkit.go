// Package testkit builds deterministic planning scenarios shared by package
// tests and the benchmark harness: point robots and planar arms in
// sphere-obstacle worlds, plus case-base generation by solving sampled goals.
package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"goplan/adapters/geometry"
	"goplan/adapters/kinematics"
	"goplan/domain/casebase"
	"goplan/domain/constraint"
	"goplan/domain/planning"
	"goplan/solver"
	"goplan/solver/descent"
)

// Obstacle is a sphere blocking task space
type Obstacle struct {
	Center []float64
	Radius float64
}

// StaticRobot exposes fixed joint angles as a robot model
type StaticRobot struct {
	Angles map[string]float64
}

// JointAngle returns the held angle for a named joint
func (r StaticRobot) JointAngle(name string) (float64, error) {
	angle, ok := r.Angles[name]
	if !ok {
		return 0, fmt.Errorf("unknown joint %q", name)
	}
	return angle, nil
}

// ProblemSource builds problems toward sampled goal configurations
type ProblemSource interface {
	// SampleGoal draws a goal configuration within the world bounds
	SampleGoal(rng *rand.Rand) []float64

	// Problem builds the planning problem targeting a goal configuration
	Problem(goal []float64) (*planning.Problem, error)
}

// unionField merges obstacle spheres into one signed distance field. Worlds
// without obstacles get a nil field.
func unionField(dim int, obstacles []Obstacle) (constraint.SignedDistance, error) {
	if len(obstacles) == 0 {
		return nil, nil
	}
	fields := make([]constraint.SignedDistance, 0, len(obstacles))
	for i, o := range obstacles {
		if len(o.Center) != dim {
			return nil, fmt.Errorf("obstacle %d: center has %d dims, world has %d", i, len(o.Center), dim)
		}
		f, err := geometry.Sphere(o.Center, o.Radius)
		if err != nil {
			return nil, fmt.Errorf("obstacle %d: %w", i, err)
		}
		fields = append(fields, f)
	}
	return geometry.Union(fields...)
}

// ============================================================================
// POINT ROBOT WORLDS
// ============================================================================

// PointWorld is a point robot in a bounded box among sphere obstacles. The
// configuration space is the task space.
type PointWorld struct {
	Start  []float64
	Bounds *constraint.Box
	Field  constraint.SignedDistance
}

// NewPointWorld builds a point-robot world starting at start
func NewPointWorld(lb, ub, start []float64, obstacles []Obstacle) (*PointWorld, error) {
	bounds, err := constraint.NewBox(lb, ub)
	if err != nil {
		return nil, err
	}
	if len(start) != len(lb) {
		return nil, fmt.Errorf("start has %d dims, bounds have %d", len(start), len(lb))
	}
	field, err := unionField(len(lb), obstacles)
	if err != nil {
		return nil, err
	}
	return &PointWorld{
		Start:  append([]float64(nil), start...),
		Bounds: bounds,
		Field:  field,
	}, nil
}

// SampleGoal draws a goal configuration within the world bounds
func (w *PointWorld) SampleGoal(rng *rand.Rand) []float64 {
	return w.Bounds.Sample(rng)
}

// Problem targets a goal point while staying outside every obstacle
func (w *PointWorld) Problem(goal []float64) (*planning.Problem, error) {
	goalConst, err := constraint.NewConfigPoint(goal)
	if err != nil {
		return nil, err
	}
	var ineq constraint.Constraint
	if w.Field != nil {
		pc, err := constraint.NewPointCollisionFree(w.Field)
		if err != nil {
			return nil, err
		}
		ineq = pc
	}
	return planning.NewProblem(w.Start, w.Bounds, goalConst, ineq, nil)
}

// ============================================================================
// PLANAR ARM WORLDS
// ============================================================================

// ArmConfig sizes a planar arm scenario. Zero values select defaults:
// three collision spheres per link with radius a tenth of the shortest link.
type ArmConfig struct {
	Lengths        []float64
	SpheresPerLink int
	SphereRadius   float64
	SelfCollision  bool
}

// ArmWorld is a planar arm among sphere obstacles. Joint bounds are +-pi and
// the start is the zero configuration.
type ArmWorld struct {
	Arm       *kinematics.PlanarArm
	Collision *kinematics.CollisionArm
	Start     []float64
	Bounds    *constraint.Box
	Field     constraint.SignedDistance

	selfCollision bool
}

// NewArmWorld builds an arm world from the scenario config
func NewArmWorld(config ArmConfig, obstacles []Obstacle) (*ArmWorld, error) {
	arm, err := kinematics.NewPlanarArm(config.Lengths)
	if err != nil {
		return nil, err
	}
	perLink := config.SpheresPerLink
	if perLink < 1 {
		perLink = 3
	}
	radius := config.SphereRadius
	if radius <= 0 {
		shortest := config.Lengths[0]
		for _, l := range config.Lengths {
			shortest = math.Min(shortest, l)
		}
		radius = shortest / 10
	}
	radii := make([]float64, len(config.Lengths))
	for i := range radii {
		radii[i] = radius
	}
	colArm, err := kinematics.NewCollisionArm(arm, perLink, radii)
	if err != nil {
		return nil, err
	}

	dof := arm.Dof()
	lb := make([]float64, dof)
	ub := make([]float64, dof)
	for i := range lb {
		lb[i] = -math.Pi
		ub[i] = math.Pi
	}
	bounds, err := constraint.NewBox(lb, ub)
	if err != nil {
		return nil, err
	}

	field, err := unionField(2, obstacles)
	if err != nil {
		return nil, err
	}
	return &ArmWorld{
		Arm:           arm,
		Collision:     colArm,
		Start:         make([]float64, dof),
		Bounds:        bounds,
		Field:         field,
		selfCollision: config.SelfCollision,
	}, nil
}

// SampleGoal draws a goal configuration within the joint bounds
func (w *ArmWorld) SampleGoal(rng *rand.Rand) []float64 {
	return w.Bounds.Sample(rng)
}

// Problem targets a goal joint configuration, keeping every collision sphere
// outside the obstacles and, when enabled, the arm off itself
func (w *ArmWorld) Problem(goal []float64) (*planning.Problem, error) {
	goalConst, err := constraint.NewConfigPoint(goal)
	if err != nil {
		return nil, err
	}
	model := StaticRobot{}

	var members []constraint.Constraint
	if w.Field != nil {
		cf, err := constraint.NewCollisionFree(w.Collision, w.Field, model)
		if err != nil {
			return nil, err
		}
		members = append(members, cf)
	}
	if w.selfCollision {
		sc, err := constraint.NewPairwiseCollisionFree(w.Collision, model)
		if err != nil {
			return nil, err
		}
		members = append(members, sc)
	}

	var ineq constraint.Constraint
	switch len(members) {
	case 0:
	case 1:
		ineq = members[0]
	default:
		comp, err := constraint.NewIneqComposite(members...)
		if err != nil {
			return nil, err
		}
		ineq = comp
	}
	return planning.NewProblem(w.Start, w.Bounds, goalConst, ineq, nil)
}

// ============================================================================
// CASE-BASE GENERATION
// ============================================================================

// GeneratorConfig configures case-base generation
type GeneratorConfig struct {
	Count     int
	MaxCalls  int
	Waypoints int
	Seed      int64
}

// DefaultGeneratorConfig returns sensible defaults for case generation
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Count:    100,
		MaxCalls: 2000,
		Seed:     42,
	}
}

// CaseGenerator samples goals, solves each from scratch, and records the
// outcomes as retrieval cases keyed by goal descriptor. Failed solves are
// recorded with nil trajectories; feasibility prediction needs them.
type CaseGenerator struct {
	config GeneratorConfig
	rng    *rand.Rand
}

// NewCaseGenerator creates a case generator
func NewCaseGenerator(config GeneratorConfig) *CaseGenerator {
	if config.Count < 1 {
		config.Count = DefaultGeneratorConfig().Count
	}
	return &CaseGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the case base from one problem source
func (g *CaseGenerator) Generate(ctx context.Context, src ProblemSource) ([]casebase.Case, error) {
	if src == nil {
		return nil, fmt.Errorf("case generation requires a problem source")
	}
	eng := descent.New(solver.Config{MaxCalls: g.config.MaxCalls}, g.config.Waypoints)
	eng.Seed(g.rng.Int63())

	cases := make([]casebase.Case, 0, g.config.Count)
	for i := 0; i < g.config.Count; i++ {
		goal := src.SampleGoal(g.rng)
		prob, err := src.Problem(goal)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i, err)
		}
		if err := eng.Prepare(prob); err != nil {
			return nil, err
		}
		res, err := eng.Run(ctx, nil)
		if err != nil {
			return nil, err
		}
		c, err := casebase.NewCase(goal, res.Traj)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}
