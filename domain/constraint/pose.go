package constraint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/core"
)

// ============================================================================
// CONFIGURATION TARGET
// ============================================================================

// ConfigPoint drives the configuration toward a fixed target. Residual is
// q - q_desired with identity Jacobian.
type ConfigPoint struct {
	reflectGate
	desired []float64
}

// NewConfigPoint creates an equality constraint on a target configuration
func NewConfigPoint(desired []float64) (*ConfigPoint, error) {
	if len(desired) == 0 {
		return nil, core.NewDimensionError(1, 0)
	}
	c := &ConfigPoint{
		reflectGate: reflectGate{kind: "ConfigPoint"},
		desired:     append([]float64(nil), desired...),
	}
	if err := c.Reflect(nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Polarity identifies the constraint as an equality
func (c *ConfigPoint) Polarity() Polarity { return Equality }

// Dim returns the residual dimension
func (c *ConfigPoint) Dim() int { return len(c.desired) }

// Reflect is a no-op: the target carries no robot state
func (c *ConfigPoint) Reflect(model RobotState) error {
	c.markReflected()
	return nil
}

// Description returns the target configuration as a feature vector
func (c *ConfigPoint) Description() []float64 {
	return append([]float64(nil), c.desired...)
}

// Evaluate returns q - q_desired per configuration with identity Jacobian
func (c *ConfigPoint) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := c.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, err := checkBatch(qs, len(c.desired))
	if err != nil {
		return nil, nil, err
	}
	dim := len(c.desired)

	values := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for k := 0; k < dim; k++ {
			values.Set(i, k, qs.At(i, k)-c.desired[k])
		}
	}
	if !withJacobian {
		return values, nil, nil
	}

	jacs := make([]*mat.Dense, n)
	for i := range jacs {
		jac := mat.NewDense(dim, dim, nil)
		for k := 0; k < dim; k++ {
			jac.Set(k, k, 1)
		}
		jacs[i] = jac
	}
	return values, jacs, nil
}

// ============================================================================
// TASK-SPACE POSE TARGETS
// ============================================================================

// Pose drives kinematic features toward desired task-space poses. Residual
// per configuration stacks (pose - desired) across features.
type Pose struct {
	reflectGate
	efkin   PoseMap
	desired [][]float64
}

// NewPose creates an equality constraint on per-feature pose targets.
// One desired vector of TaskDim entries is required per map feature.
func NewPose(desired [][]float64, efkin PoseMap, model RobotState) (*Pose, error) {
	if len(desired) != efkin.NFeatures() {
		return nil, core.NewFeatureCountError(efkin.NFeatures(), len(desired))
	}
	copied := make([][]float64, len(desired))
	for i, d := range desired {
		if len(d) != efkin.TaskDim() {
			return nil, core.NewDimensionError(efkin.TaskDim(), len(d))
		}
		copied[i] = append([]float64(nil), d...)
	}
	c := &Pose{
		reflectGate: reflectGate{kind: "Pose"},
		efkin:       efkin,
		desired:     copied,
	}
	if err := c.Reflect(model); err != nil {
		return nil, err
	}
	return c, nil
}

// Polarity identifies the constraint as an equality
func (c *Pose) Polarity() Polarity { return Equality }

// Dim returns TaskDim entries per feature
func (c *Pose) Dim() int { return c.efkin.NFeatures() * c.efkin.TaskDim() }

// Reflect forwards robot state into the kinematic map
func (c *Pose) Reflect(model RobotState) error {
	if model == nil {
		return fmt.Errorf("pose constraint requires a robot model")
	}
	if err := c.efkin.Reflect(model); err != nil {
		return err
	}
	c.markReflected()
	return nil
}

// Description returns the stacked desired poses as a feature vector
func (c *Pose) Description() []float64 {
	out := make([]float64, 0, c.Dim())
	for _, d := range c.desired {
		out = append(out, d...)
	}
	return out
}

// Evaluate stacks per-feature pose residuals and their kinematic Jacobians
func (c *Pose) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := c.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, err := checkBatch(qs, c.efkin.ConfigDim())
	if err != nil {
		return nil, nil, err
	}
	nf := c.efkin.NFeatures()
	taskDim := c.efkin.TaskDim()
	dim := c.efkin.ConfigDim()

	positions, featJacs, err := c.efkin.Map(qs, withJacobian)
	if err != nil {
		return nil, nil, err
	}

	values := mat.NewDense(n, nf*taskDim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < nf; j++ {
			for t := 0; t < taskDim; t++ {
				values.Set(i, j*taskDim+t, positions.At(i*nf+j, t)-c.desired[j][t])
			}
		}
	}
	if !withJacobian {
		return values, nil, nil
	}

	jacs := make([]*mat.Dense, n)
	for i := 0; i < n; i++ {
		jac := mat.NewDense(nf*taskDim, dim, nil)
		for j := 0; j < nf; j++ {
			featJac := featJacs[i*nf+j]
			for t := 0; t < taskDim; t++ {
				jac.SetRow(j*taskDim+t, featJac.RawRowView(t))
			}
		}
		jacs[i] = jac
	}
	return values, jacs, nil
}

// ============================================================================
// RELATIVE POSE BETWEEN TWO FEATURES
// ============================================================================

// RelativePose holds the second feature at a fixed offset from the first.
// The map is cloned and extended with a synthetic third feature rigidly
// offset from the first; the residual matches feature two against it.
type RelativePose struct {
	reflectGate
	efkin  PoseMap
	offset []float64
}

// NewRelativePose creates the constraint from a two-feature pose map and the
// desired offset of feature two expressed in feature one's frame
func NewRelativePose(relativePosition []float64, efkin PoseMap, model RobotState) (*RelativePose, error) {
	if efkin.NFeatures() != 2 {
		return nil, core.NewFeatureCountError(2, efkin.NFeatures())
	}
	clone := efkin.Clone()
	if err := clone.AddOffsetFeature(0, relativePosition); err != nil {
		return nil, err
	}
	c := &RelativePose{
		reflectGate: reflectGate{kind: "RelativePose"},
		efkin:       clone,
		offset:      append([]float64(nil), relativePosition...),
	}
	if err := c.Reflect(model); err != nil {
		return nil, err
	}
	return c, nil
}

// Polarity identifies the constraint as an equality
func (c *RelativePose) Polarity() Polarity { return Equality }

// Dim returns one residual entry per task dimension
func (c *RelativePose) Dim() int { return c.efkin.TaskDim() }

// Reflect forwards robot state into the cloned kinematic map
func (c *RelativePose) Reflect(model RobotState) error {
	if model == nil {
		return fmt.Errorf("relative pose constraint requires a robot model")
	}
	if err := c.efkin.Reflect(model); err != nil {
		return err
	}
	c.markReflected()
	return nil
}

// Evaluate matches feature two against the synthetic offset feature
func (c *RelativePose) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	if err := c.assertReflected(); err != nil {
		return nil, nil, err
	}
	n, err := checkBatch(qs, c.efkin.ConfigDim())
	if err != nil {
		return nil, nil, err
	}
	const nf = 3
	taskDim := c.efkin.TaskDim()
	dim := c.efkin.ConfigDim()

	positions, featJacs, err := c.efkin.Map(qs, withJacobian)
	if err != nil {
		return nil, nil, err
	}

	values := mat.NewDense(n, taskDim, nil)
	for i := 0; i < n; i++ {
		for t := 0; t < taskDim; t++ {
			values.Set(i, t, positions.At(i*nf+1, t)-positions.At(i*nf+2, t))
		}
	}
	if !withJacobian {
		return values, nil, nil
	}

	jacs := make([]*mat.Dense, n)
	for i := 0; i < n; i++ {
		jac := mat.NewDense(taskDim, dim, nil)
		jac.Sub(featJacs[i*nf+1], featJacs[i*nf+2])
		jacs[i] = jac
	}
	return values, jacs, nil
}
