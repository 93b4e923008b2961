package constraint

import (
	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// KINEMATIC COLLABORATOR CONTRACTS
// ============================================================================
// Forward kinematics, collision geometry and learned inference are owned by
// adapters. The constraint layer consumes them through these interfaces and
// never implements them.

// KinematicMap evaluates feature points attached to a robot body over a batch
// of configurations.
type KinematicMap interface {
	NFeatures() int
	TaskDim() int
	ConfigDim() int

	// Reflect synchronizes the map with externally owned robot state
	Reflect(model RobotState) error

	// Map returns feature positions and, when requested, their Jacobians for
	// an n x ConfigDim batch. Positions form an (n*NFeatures) x TaskDim
	// matrix ordered configuration-major, then feature. Jacobians hold one
	// TaskDim x ConfigDim matrix per position row, in the same order; nil
	// when withJacobian is false.
	Map(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error)
}

// FeaturePair indexes two features of the same kinematic map
type FeaturePair struct {
	A int
	B int
}

// CollisionMap is a kinematic map over collision spheres
type CollisionMap interface {
	KinematicMap

	// Radii returns the sphere radius per feature
	Radii() []float64

	// PairwiseSquaredDists returns squared inter-sphere distances per
	// configuration (n x len(pairs)) and, when requested, one
	// len(pairs) x ConfigDim gradient matrix per configuration.
	PairwiseSquaredDists(qs *mat.Dense, pairs []FeaturePair, withJacobian bool) (*mat.Dense, []*mat.Dense, error)
}

// PoseMap is a kinematic map over end-effector poses that can be extended
// with synthetic offset features.
type PoseMap interface {
	KinematicMap

	// Clone returns an independent deep copy
	Clone() PoseMap

	// AddOffsetFeature appends a feature rigidly offset from an existing one,
	// expressed in that feature's local frame
	AddOffsetFeature(featureIndex int, offset []float64) error
}

// SignedDistance evaluates a distance field over a batch of task-space points
// (one per row), returning one signed distance per row. Positive is outside.
type SignedDistance func(points *mat.Dense) ([]float64, error)

// CollisionInferencer scores configurations with a learned self-collision
// model. Higher scores mean closer to collision.
type CollisionInferencer interface {
	// JointNames returns the joints the model was trained on, in input order
	JointNames() []string

	// SetContext fixes the angles of non-evaluated joints
	SetContext(angles []float64) error

	// Infer returns the collision score for one configuration and, when
	// requested, its gradient
	Infer(q []float64, withGrad bool) (float64, []float64, error)
}
