// Package trajectory provides waypoint sequences with arclength-based operations
package trajectory

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/core"
)

// lengthTol absorbs floating point drift when sampling at the far end
const lengthTol = 1e-6

// Metric measures distance between two configurations
type Metric func(a, b []float64) float64

// Euclidean is the default configuration-space metric
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Trajectory is an ordered sequence of waypoints with uniform dimension
type Trajectory struct {
	points [][]float64
	dim    int
}

// New creates a trajectory from waypoints (copied; at least two, uniform dimension)
func New(points [][]float64) (*Trajectory, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: got %d", core.ErrTrajectoryLength, len(points))
	}
	dim := len(points[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional waypoint", core.ErrDimensionMismatch)
	}
	copied := make([][]float64, len(points))
	for i, p := range points {
		if len(p) != dim {
			return nil, core.NewDimensionError(dim, len(p))
		}
		copied[i] = append([]float64(nil), p...)
	}
	return &Trajectory{points: copied, dim: dim}, nil
}

// FromTwoPoints linearly interpolates n waypoints from start to goal inclusive
func FromTwoPoints(start, goal []float64, n int) (*Trajectory, error) {
	if len(start) != len(goal) {
		return nil, core.NewDimensionError(len(start), len(goal))
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", core.ErrTrajectoryLength, n)
	}
	points := make([][]float64, n)
	for i := 0; i < n; i++ {
		alpha := float64(i) / float64(n-1)
		p := make([]float64, len(start))
		for k := range p {
			p[k] = start[k] + alpha*(goal[k]-start[k])
		}
		points[i] = p
	}
	return &Trajectory{points: points, dim: len(start)}, nil
}

// Len returns the number of waypoints
func (t *Trajectory) Len() int { return len(t.points) }

// Dim returns the configuration dimension
func (t *Trajectory) Dim() int { return t.dim }

// Point returns a copy of waypoint i
func (t *Trajectory) Point(i int) []float64 {
	return append([]float64(nil), t.points[i]...)
}

// First returns a copy of the first waypoint
func (t *Trajectory) First() []float64 { return t.Point(0) }

// Last returns a copy of the final waypoint
func (t *Trajectory) Last() []float64 { return t.Point(len(t.points) - 1) }

// Points returns a deep copy of all waypoints
func (t *Trajectory) Points() [][]float64 {
	out := make([][]float64, len(t.points))
	for i := range t.points {
		out[i] = t.Point(i)
	}
	return out
}

// Matrix returns the waypoints as an n x dim dense matrix for batch evaluation
func (t *Trajectory) Matrix() *mat.Dense {
	m := mat.NewDense(len(t.points), t.dim, nil)
	for i, p := range t.points {
		m.SetRow(i, p)
	}
	return m
}

// Length returns the polyline length under the given metric (nil means Euclidean)
func (t *Trajectory) Length(metric Metric) float64 {
	if metric == nil {
		metric = Euclidean
	}
	var total float64
	for i := 0; i+1 < len(t.points); i++ {
		total += metric(t.points[i], t.points[i+1])
	}
	return total
}

// SamplePoint returns the configuration at arclength dist from the start.
// Interpolation is linear in configuration space within each edge, with edge
// lengths measured by the metric.
func (t *Trajectory) SamplePoint(dist float64, metric Metric) ([]float64, error) {
	if metric == nil {
		metric = Euclidean
	}
	total := t.Length(metric)
	if dist < 0 || dist > total+lengthTol {
		return nil, fmt.Errorf("sample distance %g outside trajectory length %g", dist, total)
	}
	if dist > total {
		dist = total
	}
	var cum float64
	for i := 0; i+1 < len(t.points); i++ {
		edge := metric(t.points[i], t.points[i+1])
		cum += edge
		if dist <= cum {
			if edge == 0 {
				return t.Point(i + 1), nil
			}
			// walk back from the edge end by the overshoot ratio
			alpha := (cum - dist) / edge
			p := make([]float64, t.dim)
			for k := 0; k < t.dim; k++ {
				p[k] = t.points[i+1][k] + alpha*(t.points[i][k]-t.points[i+1][k])
			}
			return p, nil
		}
	}
	return t.Last(), nil
}

// Resample returns a trajectory with n waypoints at regular metric intervals
func (t *Trajectory) Resample(n int, metric Metric) (*Trajectory, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", core.ErrTrajectoryLength, n)
	}
	total := t.Length(metric)
	points := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist := total * float64(i) / float64(n-1)
		p, err := t.SamplePoint(dist, metric)
		if err != nil {
			return nil, err
		}
		points[i] = p
	}
	return &Trajectory{points: points, dim: t.dim}, nil
}

// MarshalJSON encodes the trajectory as its waypoint array
func (t *Trajectory) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.points)
}

// UnmarshalJSON decodes a waypoint array, enforcing constructor invariants
func (t *Trajectory) UnmarshalJSON(data []byte) error {
	var points [][]float64
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	decoded, err := New(points)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
