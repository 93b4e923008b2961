package planning

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/constraint"
	"goplan/domain/core"
)

// ValidMotionStep checks the straight segment between two configurations
// against an inequality constraint at the given per-dimension resolution.
// The segment is subdivided so no dimension moves more than its step between
// samples; interior samples are batch-evaluated and must all be strictly
// feasible. Segments already finer than the resolution have no interior
// samples and pass, since the endpoints are checked separately.
func ValidMotionStep(step, q1, q2 []float64, ineq constraint.Constraint) (bool, error) {
	d := len(q1)
	if len(q2) != d {
		return false, core.NewDimensionError(d, len(q2))
	}
	if len(step) != d {
		return false, core.NewDimensionError(d, len(step))
	}

	maxRatio := 0.0
	for i := 0; i < d; i++ {
		if step[i] <= 0 {
			return false, fmt.Errorf("motion step must be positive, got %v at dimension %d", step[i], i)
		}
		r := math.Abs(q2[i]-q1[i]) / step[i]
		if r > maxRatio {
			maxRatio = r
		}
	}
	nDiv := int(math.Ceil(maxRatio))
	if nDiv <= 1 {
		return true, nil
	}

	samples := mat.NewDense(nDiv-1, d, nil)
	for k := 1; k < nDiv; k++ {
		alpha := float64(k) / float64(nDiv)
		for i := 0; i < d; i++ {
			samples.Set(k-1, i, q1[i]+alpha*(q2[i]-q1[i]))
		}
	}

	values, _, err := ineq.Evaluate(samples, false)
	if err != nil {
		return false, err
	}
	rows, cols := values.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if values.At(r, c) <= 0 {
				return false, nil
			}
		}
	}
	return true, nil
}
