package constraint

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// GEOMETRIC SELF COLLISION
// ============================================================================

// pairFilterMargin scales the radius sum when excluding born-colliding pairs.
// Large spheres get a proportionally large margin, small ones a tight one.
const pairFilterMargin = 3.0

// PairwiseCollisionFree keeps collision spheres of the same robot apart.
// Residual per configuration is sqdist(a, b) - (r_a + r_b)^2 over the checked
// pair set. Pairs already within the margin at the zero configuration are
// excluded at construction: they belong to adjacent links and would never
// separate.
type PairwiseCollisionFree struct {
	reflectGate
	colkin  CollisionMap
	pairs   []FeaturePair
	sqdists []float64
}

// NewPairwiseCollisionFree enumerates sphere pairs, filters the ones already
// near collision at q = 0, and reflects the robot model
func NewPairwiseCollisionFree(colkin CollisionMap, model RobotState) (*PairwiseCollisionFree, error) {
	radii := colkin.Radii()
	nf := colkin.NFeatures()

	allPairs := make([]FeaturePair, 0, nf*(nf-1)/2)
	radiusSums := make([]float64, 0, nf*(nf-1)/2)
	for a := 0; a < nf; a++ {
		for b := a + 1; b < nf; b++ {
			allPairs = append(allPairs, FeaturePair{A: a, B: b})
			radiusSums = append(radiusSums, radii[a]+radii[b])
		}
	}

	qZero := mat.NewDense(1, colkin.ConfigDim(), nil)
	sq, _, err := colkin.PairwiseSquaredDists(qZero, allPairs, false)
	if err != nil {
		return nil, fmt.Errorf("pair filtering at zero configuration: %w", err)
	}

	var pairs []FeaturePair
	var sqsums []float64
	for idx, pair := range allPairs {
		dist := math.Sqrt(sq.At(0, idx))
		if dist-pairFilterMargin*radiusSums[idx] < 0 {
			continue
		}
		pairs = append(pairs, pair)
		sqsums = append(sqsums, radiusSums[idx]*radiusSums[idx])
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no checkable sphere pairs remain after filtering %d candidates", len(allPairs))
	}

	c := &PairwiseCollisionFree{
		reflectGate: reflectGate{kind: "PairwiseCollisionFree"},
		colkin:      colkin,
		pairs:       pairs,
		sqdists:     sqsums,
	}
	if err := c.Reflect(model); err != nil {
		return nil, err
	}
	return c, nil
}

// Polarity identifies the constraint as an inequality
func (c *PairwiseCollisionFree) Polarity() Polarity { return Inequality }

// Dim returns one residual entry per checked pair
func (c *PairwiseCollisionFree) Dim() int { return len(c.pairs) }

// Pairs returns a copy of the checked pair set
func (c *PairwiseCollisionFree) Pairs() []FeaturePair {
	return append([]FeaturePair(nil), c.pairs...)
}

// Reflect forwards robot state into the collision map
func (c *PairwiseCollisionFree) Reflect(model RobotState) error {
	if model == nil {
		return fmt.Errorf("self collision constraint requires a robot model")
	}
	if err := c.colkin.Reflect(model); err != nil {
		return err
	}
	c.markReflected()
	return nil
}

// Evaluate returns squared-distance margins per checked pair
func (c *PairwiseCollisionFree) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := c.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, err := checkBatch(qs, c.colkin.ConfigDim())
	if err != nil {
		return nil, nil, err
	}

	sq, grads, err := c.colkin.PairwiseSquaredDists(qs, c.pairs, withJacobian)
	if err != nil {
		return nil, nil, err
	}
	values := mat.NewDense(n, len(c.pairs), nil)
	for i := 0; i < n; i++ {
		for p := range c.pairs {
			values.Set(i, p, sq.At(i, p)-c.sqdists[p])
		}
	}
	if !withJacobian {
		return values, nil, nil
	}
	return values, grads, nil
}

// ============================================================================
// LEARNED SELF COLLISION
// ============================================================================

// neuralThreshold is the score above which a configuration is considered
// self-colliding
const neuralThreshold = 0.5

// NeuralCollisionFree keeps a robot out of self collision using a learned
// scoring model. Residual is threshold - score, positive when safe. With a
// floating base the three trailing base dimensions are irrelevant to self
// collision: they are stripped before inference and zero-padded back into
// the gradient.
type NeuralCollisionFree struct {
	reflectGate
	inferencer CollisionInferencer
	withBase   bool
}

// NewNeuralCollisionFree builds the constraint and reflects the robot model
func NewNeuralCollisionFree(inferencer CollisionInferencer, model RobotState, withBase bool) (*NeuralCollisionFree, error) {
	if inferencer == nil {
		return nil, fmt.Errorf("neural collision constraint requires an inferencer")
	}
	c := &NeuralCollisionFree{
		reflectGate: reflectGate{kind: "NeuralCollisionFree"},
		inferencer:  inferencer,
		withBase:    withBase,
	}
	if err := c.Reflect(model); err != nil {
		return nil, err
	}
	return c, nil
}

// Polarity identifies the constraint as an inequality
func (c *NeuralCollisionFree) Polarity() Polarity { return Inequality }

// Dim returns the residual dimension
func (c *NeuralCollisionFree) Dim() int { return 1 }

// Reflect feeds the model's current joint angles to the inferencer as the
// context for joints outside the evaluated set
func (c *NeuralCollisionFree) Reflect(model RobotState) error {
	if model == nil {
		return fmt.Errorf("neural collision constraint requires a robot model")
	}
	names := c.inferencer.JointNames()
	angles := make([]float64, len(names))
	for i, name := range names {
		angle, err := model.JointAngle(name)
		if err != nil {
			return fmt.Errorf("reading joint %q: %w", name, err)
		}
		angles[i] = angle
	}
	if err := c.inferencer.SetContext(angles); err != nil {
		return err
	}
	c.markReflected()
	return nil
}

// Evaluate scores each configuration and negates the gradient so that the
// residual grows as the robot moves away from self collision
func (c *NeuralCollisionFree) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := c.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, dim := qs.Dims()
	evalDim := dim
	if c.withBase {
		if dim <= 3 {
			return nil, nil, fmt.Errorf("floating base requires more than 3 configuration dimensions, got %d", dim)
		}
		evalDim = dim - 3
	}

	values := mat.NewDense(n, 1, nil)
	var jacs []*mat.Dense
	if withJacobian {
		jacs = make([]*mat.Dense, n)
	}
	q := make([]float64, evalDim)
	for i := 0; i < n; i++ {
		for k := 0; k < evalDim; k++ {
			q[k] = qs.At(i, k)
		}
		score, grad, err := c.inferencer.Infer(q, withJacobian)
		if err != nil {
			return nil, nil, err
		}
		values.Set(i, 0, neuralThreshold-score)
		if withJacobian {
			jac := mat.NewDense(1, dim, nil)
			for k := 0; k < evalDim; k++ {
				jac.Set(0, k, -grad[k])
			}
			jacs[i] = jac
		}
	}
	return values, jacs, nil
}
