package constraint

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// newSelfCollisionMap places three spheres so that exactly one pair is born
// within the filter margin at q = 0
func newSelfCollisionMap() *linearMap {
	m := &linearMap{taskDim: 2, configDim: 3, radii: []float64{0.1, 0.1, 0.1}}
	jac := func(vals ...float64) *mat.Dense { return mat.NewDense(2, 3, vals) }
	m.mats = append(m.mats,
		jac(1, 0, 0.2, 0, 1, 0),
		jac(0, 1, 0, 0.3, 0, 1),
		jac(1, 0.5, 0, 0, 0, 1),
	)
	// spheres 0 and 1 sit 0.3 apart at q=0: under the 3*(0.1+0.1) margin.
	// sphere 2 is far from both.
	m.offs = append(m.offs, []float64{0, 0}, []float64{0.3, 0}, []float64{5, 5})
	return m
}

// TestPairwiseFilterExcludesBornColliding verifies constructor-time filtering
func TestPairwiseFilterExcludesBornColliding(t *testing.T) {
	colkin := newSelfCollisionMap()
	c, err := NewPairwiseCollisionFree(colkin, &fakeRobot{})
	if err != nil {
		t.Fatalf("NewPairwiseCollisionFree failed: %v", err)
	}

	pairs := c.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("Expected 2 checked pairs after filtering, got %d", len(pairs))
	}
	for _, pair := range pairs {
		if pair.A == 0 && pair.B == 1 {
			t.Error("Born-colliding pair (0,1) should have been filtered out")
		}
	}

	// checked pairs yield strictly positive residuals at the zero configuration
	f, _, err := EvaluateSingle(c, []float64{0, 0, 0}, false)
	if err != nil {
		t.Fatalf("EvaluateSingle failed: %v", err)
	}
	for i := 0; i < f.Len(); i++ {
		if f.AtVec(i) <= 0 {
			t.Errorf("Checked pair %d has non-positive residual %g at zero config", i, f.AtVec(i))
		}
	}
}

// TestPairwiseAllPairsFiltered verifies construction fails when nothing remains
func TestPairwiseAllPairsFiltered(t *testing.T) {
	m := &linearMap{taskDim: 2, configDim: 2, radii: []float64{1, 1}}
	m.mats = append(m.mats,
		mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		mat.NewDense(2, 2, []float64{0, 1, 1, 0}),
	)
	m.offs = append(m.offs, []float64{0, 0}, []float64{0.5, 0})

	if _, err := NewPairwiseCollisionFree(m, &fakeRobot{}); err == nil {
		t.Error("Expected error when every pair is filtered out")
	}
}

// TestPairwiseResidualSemantics verifies sqdist minus squared radius sum
func TestPairwiseResidualSemantics(t *testing.T) {
	colkin := newSelfCollisionMap()
	c, err := NewPairwiseCollisionFree(colkin, &fakeRobot{})
	if err != nil {
		t.Fatalf("NewPairwiseCollisionFree failed: %v", err)
	}

	q := []float64{0.2, -0.3, 0.4}
	f, _, err := EvaluateSingle(c, q, false)
	if err != nil {
		t.Fatalf("EvaluateSingle failed: %v", err)
	}

	sq, _, err := colkin.PairwiseSquaredDists(mat.NewDense(1, 3, q), c.Pairs(), false)
	if err != nil {
		t.Fatalf("PairwiseSquaredDists failed: %v", err)
	}
	radii := colkin.Radii()
	for p, pair := range c.Pairs() {
		rsum := radii[pair.A] + radii[pair.B]
		want := sq.At(0, p) - rsum*rsum
		if math.Abs(f.AtVec(p)-want) > 1e-12 {
			t.Errorf("Pair %d: want %g, got %g", p, want, f.AtVec(p))
		}
	}
}

// TestPairwiseNumericalJacobian checks gradients against central differences
func TestPairwiseNumericalJacobian(t *testing.T) {
	colkin := newSelfCollisionMap()
	c, err := NewPairwiseCollisionFree(colkin, &fakeRobot{})
	if err != nil {
		t.Fatalf("NewPairwiseCollisionFree failed: %v", err)
	}
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		q := make([]float64, 3)
		for k := range q {
			q[k] = rng.NormFloat64() * 0.5
		}
		checkJacobian(t, c, q, jacCheckTol)
	}
	checkBatchMatchesSingle(t, c, randomConfigs(rng, 8, 3, 0.5))
}

// TestNeuralResidualAndGradient verifies threshold - score with negated gradient
func TestNeuralResidualAndGradient(t *testing.T) {
	inferencer := &fakeInferencer{
		names: []string{"j1", "j2"},
		w:     []float64{0.3, -0.2},
		b:     0.1,
	}
	robot := &fakeRobot{angles: map[string]float64{"j1": 0.5, "j2": -0.5}}
	c, err := NewNeuralCollisionFree(inferencer, robot, false)
	if err != nil {
		t.Fatalf("NewNeuralCollisionFree failed: %v", err)
	}

	q := []float64{0.4, 0.6}
	f, jac, err := EvaluateSingle(c, q, true)
	if err != nil {
		t.Fatalf("EvaluateSingle failed: %v", err)
	}
	score := 0.1 + 0.3*q[0] - 0.2*q[1]
	if math.Abs(f.AtVec(0)-(0.5-score)) > 1e-12 {
		t.Errorf("Residual: want %g, got %g", 0.5-score, f.AtVec(0))
	}
	if math.Abs(jac.At(0, 0)+0.3) > 1e-12 || math.Abs(jac.At(0, 1)-0.2) > 1e-12 {
		t.Errorf("Gradient should be negated weights, got [%g %g]", jac.At(0, 0), jac.At(0, 1))
	}

	checkJacobian(t, c, q, jacCheckTol)
}

// TestNeuralWithBaseStripsTrailingDims verifies base stripping and zero padding
func TestNeuralWithBaseStripsTrailingDims(t *testing.T) {
	inferencer := &fakeInferencer{
		names: []string{"j1", "j2"},
		w:     []float64{0.3, -0.2},
		b:     0.1,
	}
	robot := &fakeRobot{angles: map[string]float64{"j1": 0, "j2": 0}}
	c, err := NewNeuralCollisionFree(inferencer, robot, true)
	if err != nil {
		t.Fatalf("NewNeuralCollisionFree failed: %v", err)
	}

	// 2 joint dims + 3 base dims
	q := []float64{0.4, 0.6, 9, 9, 9}
	f, jac, err := EvaluateSingle(c, q, true)
	if err != nil {
		t.Fatalf("EvaluateSingle failed: %v", err)
	}
	score := 0.1 + 0.3*0.4 - 0.2*0.6
	if math.Abs(f.AtVec(0)-(0.5-score)) > 1e-12 {
		t.Errorf("Base dims leaked into the score: want %g, got %g", 0.5-score, f.AtVec(0))
	}
	for k := 2; k < 5; k++ {
		if jac.At(0, k) != 0 {
			t.Errorf("Base gradient %d should be zero padded, got %g", k, jac.At(0, k))
		}
	}

	// too few dims for a floating base is an error
	if _, _, err := c.Evaluate(mat.NewDense(1, 3, []float64{1, 2, 3}), false); err == nil {
		t.Error("Expected error for configuration without room for base dims")
	}
}

// TestNeuralReflectFeedsContext verifies joint angles reach the inferencer
// in its declared joint order
func TestNeuralReflectFeedsContext(t *testing.T) {
	inferencer := &fakeInferencer{
		names: []string{"torso", "head"},
		w:     []float64{1, 1},
	}
	robot := &fakeRobot{angles: map[string]float64{"torso": 0.7, "head": -0.3}}
	if _, err := NewNeuralCollisionFree(inferencer, robot, false); err != nil {
		t.Fatalf("NewNeuralCollisionFree failed: %v", err)
	}
	if len(inferencer.context) != 2 || inferencer.context[0] != 0.7 || inferencer.context[1] != -0.3 {
		t.Errorf("Expected context [0.7 -0.3], got %v", inferencer.context)
	}

	// a model missing a required joint fails reflection
	bad := &fakeRobot{angles: map[string]float64{"torso": 0.7}}
	if _, err := NewNeuralCollisionFree(&fakeInferencer{names: []string{"torso", "head"}, w: []float64{1, 1}}, bad, false); err == nil {
		t.Error("Expected error for model missing a joint")
	}
}
