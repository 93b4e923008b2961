// Package constraint provides batched differentiable constraints over robot configurations
package constraint

import (
	"gonum.org/v1/gonum/mat"

	"goplan/domain/core"
)

// ============================================================================
// CONSTRAINT CONTRACT
// ============================================================================

// Polarity tags a constraint as inequality (valid when positive) or equality
// (valid when zero)
type Polarity int

const (
	Inequality Polarity = iota
	Equality
)

// String returns the polarity name
func (p Polarity) String() string {
	if p == Equality {
		return "equality"
	}
	return "inequality"
}

// RobotState exposes the joint state of an externally owned robot model.
// Constraints never mutate it.
type RobotState interface {
	// JointAngle returns the current angle of the named joint
	JointAngle(name string) (float64, error)
}

// Constraint evaluates a residual over a batch of configurations.
//
// Evaluate takes an n x d matrix of configurations (one per row) and returns
// an n x m residual matrix plus, when withJacobian is set, one m x d Jacobian
// per configuration. When withJacobian is false the Jacobian slice is nil and
// must not be dereferenced.
//
// INVARIANTS:
// - output dimension m is fixed per constraint instance (Dim)
// - Evaluate before the first Reflect returns a not-reflected state error
// - batch evaluation equals row-wise single evaluation
type Constraint interface {
	Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error)
	Polarity() Polarity
	Dim() int

	// Reflect propagates robot model state into the constraint and arms it
	// for evaluation. Constraints with no robot dependency accept nil.
	Reflect(model RobotState) error
}

// Descriptable is implemented by constraints whose target can be summarized
// as a flat feature vector, used as the lookup key for warm-start case bases.
type Descriptable interface {
	Description() []float64
}

// EvaluateSingle lifts one configuration to a batch of one and unwraps the result
func EvaluateSingle(c Constraint, q []float64, withJacobian bool) (*mat.VecDense, *mat.Dense, error) {
	qs := mat.NewDense(1, len(q), append([]float64(nil), q...))
	values, jacs, err := c.Evaluate(qs, withJacobian)
	if err != nil {
		return nil, nil, err
	}
	_, m := values.Dims()
	row := mat.NewVecDense(m, mat.Row(nil, 0, values))
	if !withJacobian {
		return row, nil, nil
	}
	return row, jacs[0], nil
}

// ============================================================================
// REFLECTION GATE
// ============================================================================

// reflectGate guards evaluation until a robot model has been reflected
type reflectGate struct {
	kind  string
	ready bool
}

func (g *reflectGate) markReflected() {
	g.ready = true
}

func (g *reflectGate) assertReflected() error {
	if !g.ready {
		return core.NewNotReflectedError(g.kind)
	}
	return nil
}

// checkBatch validates the configuration dimension of a batch
func checkBatch(qs *mat.Dense, wantDim int) (n int, err error) {
	n, d := qs.Dims()
	if d != wantDim {
		return 0, core.NewDimensionError(wantDim, d)
	}
	return n, nil
}
