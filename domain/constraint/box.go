package constraint

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/core"
)

// defaultJointLimit replaces unspecified joint limits (continuous joints)
const defaultJointLimit = 2 * math.Pi

// JointLimit carries joint limit metadata from a robot description.
// NaN or infinite ends mean the joint is unlimited on that side.
type JointLimit struct {
	Name  string
	Lower float64
	Upper float64
}

// BaseBounds bounds the three planar base dimensions appended after the joints
type BaseBounds struct {
	Lower [3]float64
	Upper [3]float64
}

// Box keeps configurations inside axis-aligned bounds. Residual per
// configuration is [q-lb; ub-q], valid when strictly positive.
type Box struct {
	reflectGate
	lb []float64
	ub []float64
}

// NewBox creates a box constraint from explicit bounds
func NewBox(lb, ub []float64) (*Box, error) {
	if len(lb) != len(ub) || len(lb) == 0 {
		return nil, core.NewDimensionError(len(lb), len(ub))
	}
	for i := range lb {
		if lb[i] > ub[i] {
			return nil, core.ErrBoundsMismatch
		}
	}
	b := &Box{
		reflectGate: reflectGate{kind: "Box"},
		lb:          append([]float64(nil), lb...),
		ub:          append([]float64(nil), ub...),
	}
	if err := b.Reflect(nil); err != nil {
		return nil, err
	}
	return b, nil
}

// NewBoxFromLimits builds bounds from joint limit metadata, defaulting
// unspecified ends to +-2pi, optionally appending base-pose bounds
func NewBoxFromLimits(limits []JointLimit, base *BaseBounds) (*Box, error) {
	lb := make([]float64, 0, len(limits)+3)
	ub := make([]float64, 0, len(limits)+3)
	for _, lim := range limits {
		lower := lim.Lower
		if math.IsNaN(lower) || math.IsInf(lower, 0) {
			lower = -defaultJointLimit
		}
		upper := lim.Upper
		if math.IsNaN(upper) || math.IsInf(upper, 0) {
			upper = defaultJointLimit
		}
		lb = append(lb, lower)
		ub = append(ub, upper)
	}
	if base != nil {
		lb = append(lb, base.Lower[:]...)
		ub = append(ub, base.Upper[:]...)
	}
	return NewBox(lb, ub)
}

// Polarity identifies the box as an inequality constraint
func (b *Box) Polarity() Polarity { return Inequality }

// Dim returns the residual dimension (two rows per configuration dimension)
func (b *Box) Dim() int { return 2 * len(b.lb) }

// ConfigDim returns the configuration dimension the box constrains
func (b *Box) ConfigDim() int { return len(b.lb) }

// Lower returns a copy of the lower bounds
func (b *Box) Lower() []float64 { return append([]float64(nil), b.lb...) }

// Upper returns a copy of the upper bounds
func (b *Box) Upper() []float64 { return append([]float64(nil), b.ub...) }

// Reflect is a no-op: bounds carry no robot state
func (b *Box) Reflect(model RobotState) error {
	b.markReflected()
	return nil
}

// Evaluate returns [q-lb; ub-q] per configuration with Jacobian [I; -I]
func (b *Box) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := b.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, err := checkBatch(qs, len(b.lb))
	if err != nil {
		return nil, nil, err
	}
	dim := len(b.lb)

	values := mat.NewDense(n, 2*dim, nil)
	for i := 0; i < n; i++ {
		for k := 0; k < dim; k++ {
			q := qs.At(i, k)
			values.Set(i, k, q-b.lb[k])
			values.Set(i, dim+k, b.ub[k]-q)
		}
	}
	if !withJacobian {
		return values, nil, nil
	}

	jacs := make([]*mat.Dense, n)
	for i := 0; i < n; i++ {
		jac := mat.NewDense(2*dim, dim, nil)
		for k := 0; k < dim; k++ {
			jac.Set(k, k, 1)
			jac.Set(dim+k, k, -1)
		}
		jacs[i] = jac
	}
	return values, jacs, nil
}

// Sample draws a configuration uniformly from the bounds
func (b *Box) Sample(rng *rand.Rand) []float64 {
	q := make([]float64, len(b.lb))
	for i := range q {
		q[i] = b.lb[i] + rng.Float64()*(b.ub[i]-b.lb[i])
	}
	return q
}

// Contains reports whether q lies strictly inside the bounds
func (b *Box) Contains(q []float64) bool {
	if len(q) != len(b.lb) {
		return false
	}
	for i := range q {
		if q[i] <= b.lb[i] || q[i] >= b.ub[i] {
			return false
		}
	}
	return true
}

// Clip projects q onto the bounds in place
func (b *Box) Clip(q []float64) {
	for i := range q {
		if q[i] < b.lb[i] {
			q[i] = b.lb[i]
		} else if q[i] > b.ub[i] {
			q[i] = b.ub[i]
		}
	}
}
