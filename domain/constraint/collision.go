package constraint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Finite difference step sizes. The point variant perturbs configurations,
// the articulated variant perturbs task-space points before the chain rule.
const (
	pointFDEps = 1e-6
	fieldFDEps = 1e-7
)

// ============================================================================
// POINT ROBOT
// ============================================================================

// PointCollisionFree keeps a point-shaped robot outside obstacles. The
// configuration is itself the task-space point fed to the distance field.
type PointCollisionFree struct {
	reflectGate
	sdf SignedDistance
}

// NewPointCollisionFree wraps a signed distance field as a constraint
func NewPointCollisionFree(sdf SignedDistance) (*PointCollisionFree, error) {
	if sdf == nil {
		return nil, fmt.Errorf("point collision constraint requires a distance field")
	}
	c := &PointCollisionFree{
		reflectGate: reflectGate{kind: "PointCollisionFree"},
		sdf:         sdf,
	}
	if err := c.Reflect(nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Polarity identifies the constraint as an inequality
func (c *PointCollisionFree) Polarity() Polarity { return Inequality }

// Dim returns the residual dimension
func (c *PointCollisionFree) Dim() int { return 1 }

// Reflect is a no-op: the field carries no robot state
func (c *PointCollisionFree) Reflect(model RobotState) error {
	c.markReflected()
	return nil
}

// Evaluate returns the signed distance per configuration. The gradient is a
// forward finite difference of the field along each configuration dimension.
func (c *PointCollisionFree) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := c.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, dim := qs.Dims()

	dists, err := c.sdf(qs)
	if err != nil {
		return nil, nil, err
	}
	values := mat.NewDense(n, 1, append([]float64(nil), dists...))
	if !withJacobian {
		return values, nil, nil
	}

	jacs := make([]*mat.Dense, n)
	for i := range jacs {
		jacs[i] = mat.NewDense(1, dim, nil)
	}
	shifted := mat.NewDense(n, dim, nil)
	for k := 0; k < dim; k++ {
		shifted.Copy(qs)
		for i := 0; i < n; i++ {
			shifted.Set(i, k, shifted.At(i, k)+pointFDEps)
		}
		plus, err := c.sdf(shifted)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < n; i++ {
			jacs[i].Set(0, k, (plus[i]-dists[i])/pointFDEps)
		}
	}
	return values, jacs, nil
}

// ============================================================================
// ARTICULATED ROBOT
// ============================================================================

// CollisionFree keeps every collision sphere of an articulated robot outside
// obstacles. Residual per configuration is one margin per sphere:
// sdf(center) - radius.
type CollisionFree struct {
	reflectGate
	colkin CollisionMap
	sdf    SignedDistance
}

// NewCollisionFree builds the constraint and reflects the robot model
func NewCollisionFree(colkin CollisionMap, sdf SignedDistance, model RobotState) (*CollisionFree, error) {
	if sdf == nil {
		return nil, fmt.Errorf("collision constraint requires a distance field")
	}
	c := &CollisionFree{
		reflectGate: reflectGate{kind: "CollisionFree"},
		colkin:      colkin,
		sdf:         sdf,
	}
	if err := c.Reflect(model); err != nil {
		return nil, err
	}
	return c, nil
}

// Polarity identifies the constraint as an inequality
func (c *CollisionFree) Polarity() Polarity { return Inequality }

// Dim returns one margin per collision sphere
func (c *CollisionFree) Dim() int { return c.colkin.NFeatures() }

// Reflect forwards robot state into the collision map
func (c *CollisionFree) Reflect(model RobotState) error {
	if model == nil {
		return fmt.Errorf("collision constraint requires a robot model")
	}
	if err := c.colkin.Reflect(model); err != nil {
		return err
	}
	c.markReflected()
	return nil
}

// Evaluate computes sphere margins and their configuration-space Jacobians.
// The field gradient is a forward finite difference over task dimensions,
// chained with the kinematic Jacobian of each sphere center.
func (c *CollisionFree) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := c.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, err := checkBatch(qs, c.colkin.ConfigDim())
	if err != nil {
		return nil, nil, err
	}
	nf := c.colkin.NFeatures()
	taskDim := c.colkin.TaskDim()
	dim := c.colkin.ConfigDim()
	radii := c.colkin.Radii()

	// positions: (n*nf) x taskDim, configuration-major
	positions, featJacs, err := c.colkin.Map(qs, withJacobian)
	if err != nil {
		return nil, nil, err
	}
	dists, err := c.sdf(positions)
	if err != nil {
		return nil, nil, err
	}

	values := mat.NewDense(n, nf, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < nf; j++ {
			values.Set(i, j, dists[i*nf+j]-radii[j])
		}
	}
	if !withJacobian {
		return values, nil, nil
	}

	// field gradient at every sphere center
	rows := n * nf
	grads := mat.NewDense(rows, taskDim, nil)
	shifted := mat.NewDense(rows, taskDim, nil)
	for t := 0; t < taskDim; t++ {
		shifted.Copy(positions)
		for r := 0; r < rows; r++ {
			shifted.Set(r, t, shifted.At(r, t)+fieldFDEps)
		}
		plus, err := c.sdf(shifted)
		if err != nil {
			return nil, nil, err
		}
		for r := 0; r < rows; r++ {
			grads.Set(r, t, (plus[r]-dists[r])/fieldFDEps)
		}
	}

	// chain rule: margin jacobian row = field gradient x feature jacobian
	jacs := make([]*mat.Dense, n)
	rowJac := mat.NewDense(1, dim, nil)
	for i := 0; i < n; i++ {
		jac := mat.NewDense(nf, dim, nil)
		for j := 0; j < nf; j++ {
			r := i*nf + j
			grad := grads.RowView(r)
			rowJac.Mul(grad.T(), featJacs[r])
			jac.SetRow(j, rowJac.RawRowView(0))
		}
		jacs[i] = jac
	}
	return values, jacs, nil
}

// ============================================================================
// REDUCED ARTICULATED ROBOT
// ============================================================================

// MinCollisionFree reduces the articulated constraint to the single worst
// sphere margin per configuration. Solvers that only need the most critical
// contact get a one-dimensional residual.
type MinCollisionFree struct {
	full *CollisionFree
}

// NewMinCollisionFree builds the reduced constraint and reflects the model
func NewMinCollisionFree(colkin CollisionMap, sdf SignedDistance, model RobotState) (*MinCollisionFree, error) {
	full, err := NewCollisionFree(colkin, sdf, model)
	if err != nil {
		return nil, err
	}
	return &MinCollisionFree{full: full}, nil
}

// Polarity identifies the constraint as an inequality
func (c *MinCollisionFree) Polarity() Polarity { return Inequality }

// Dim returns the reduced residual dimension
func (c *MinCollisionFree) Dim() int { return 1 }

// Reflect forwards robot state into the underlying constraint
func (c *MinCollisionFree) Reflect(model RobotState) error {
	return c.full.Reflect(model)
}

// Evaluate keeps only the minimum margin per configuration and, when
// requested, the Jacobian row of exactly that sphere
func (c *MinCollisionFree) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	values, jacs, err := c.full.Evaluate(qs, withJacobian)
	if err != nil {
		return nil, nil, err
	}
	n, nf := values.Dims()
	dim := c.full.colkin.ConfigDim()

	reduced := mat.NewDense(n, 1, nil)
	var reducedJacs []*mat.Dense
	if withJacobian {
		reducedJacs = make([]*mat.Dense, n)
	}
	for i := 0; i < n; i++ {
		argmin := 0
		for j := 1; j < nf; j++ {
			if values.At(i, j) < values.At(i, argmin) {
				argmin = j
			}
		}
		reduced.Set(i, 0, values.At(i, argmin))
		if withJacobian {
			jac := mat.NewDense(1, dim, nil)
			jac.SetRow(0, jacs[i].RawRowView(argmin))
			reducedJacs[i] = jac
		}
	}
	return reduced, reducedJacs, nil
}
