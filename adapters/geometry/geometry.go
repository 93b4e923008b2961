// Package geometry provides signed distance field primitives for obstacle
// worlds. Fields are pure functions over batches of task-space points and
// plug directly into constraint.SignedDistance consumers.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/constraint"
	"goplan/domain/core"
)

// Sphere returns the field of a ball: |p - center| - radius.
func Sphere(center []float64, radius float64) (constraint.SignedDistance, error) {
	if len(center) == 0 {
		return nil, fmt.Errorf("%w: empty sphere center", core.ErrDimensionMismatch)
	}
	if radius < 0 {
		return nil, fmt.Errorf("sphere radius must be non-negative, got %g", radius)
	}
	c := append([]float64(nil), center...)
	return func(points *mat.Dense) ([]float64, error) {
		n, dim := points.Dims()
		if dim != len(c) {
			return nil, core.NewDimensionError(len(c), dim)
		}
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			var sum float64
			for k := 0; k < dim; k++ {
				d := points.At(i, k) - c[k]
				sum += d * d
			}
			out[i] = math.Sqrt(sum) - radius
		}
		return out, nil
	}, nil
}

// AABox returns the field of an axis-aligned box between lb and ub. The
// distance is exact on both sides: positive outside, negative inside.
func AABox(lb, ub []float64) (constraint.SignedDistance, error) {
	if len(lb) == 0 || len(lb) != len(ub) {
		return nil, core.NewDimensionError(len(lb), len(ub))
	}
	for k := range lb {
		if lb[k] > ub[k] {
			return nil, fmt.Errorf("%w: lower %g above upper %g at dimension %d",
				core.ErrBoundsMismatch, lb[k], ub[k], k)
		}
	}
	lo := append([]float64(nil), lb...)
	hi := append([]float64(nil), ub...)
	return func(points *mat.Dense) ([]float64, error) {
		n, dim := points.Dims()
		if dim != len(lo) {
			return nil, core.NewDimensionError(len(lo), dim)
		}
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			// Per-axis signed excursion beyond the faces.
			outside := 0.0
			inside := math.Inf(-1)
			for k := 0; k < dim; k++ {
				d := math.Max(lo[k]-points.At(i, k), points.At(i, k)-hi[k])
				if d > 0 {
					outside += d * d
				}
				if d > inside {
					inside = d
				}
			}
			if outside > 0 {
				out[i] = math.Sqrt(outside)
			} else {
				out[i] = inside
			}
		}
		return out, nil
	}, nil
}

// Union returns the pointwise minimum over the member fields, the field of
// the combined obstacle set.
func Union(fields ...constraint.SignedDistance) (constraint.SignedDistance, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("union requires at least one field")
	}
	for i, f := range fields {
		if f == nil {
			return nil, fmt.Errorf("union field %d is nil", i)
		}
	}
	members := append([]constraint.SignedDistance(nil), fields...)
	return func(points *mat.Dense) ([]float64, error) {
		out, err := members[0](points)
		if err != nil {
			return nil, err
		}
		for _, f := range members[1:] {
			vals, err := f(points)
			if err != nil {
				return nil, err
			}
			for i, v := range vals {
				if v < out[i] {
					out[i] = v
				}
			}
		}
		return out, nil
	}, nil
}

// Offset shifts a field by margin. Positive margins inflate the obstacle,
// negative ones shrink it.
func Offset(field constraint.SignedDistance, margin float64) (constraint.SignedDistance, error) {
	if field == nil {
		return nil, fmt.Errorf("offset requires a field")
	}
	return func(points *mat.Dense) ([]float64, error) {
		vals, err := field(points)
		if err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] -= margin
		}
		return vals, nil
	}, nil
}
