// Package kinematics provides a planar serial arm implementing the kinematic
// map contracts of the constraint layer. It is the reference robot for tests
// and benchmarks; spatial articulated robots enter through the same
// interfaces from external adapters.
package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/constraint"
	"goplan/domain/core"
)

var (
	_ constraint.PoseMap      = (*PoseArm)(nil)
	_ constraint.CollisionMap = (*CollisionArm)(nil)
)

// PlanarArm is a serial chain of revolute joints in the plane, based at the
// origin. A subset of joints may be controlled: the configuration covers the
// controlled joints in order, and the remaining joints hold angles read from
// the robot model at Reflect time.
type PlanarArm struct {
	lengths     []float64
	names       []string
	ctrl        []int
	fixed       []int
	fixedAngles []float64
}

// NewPlanarArm builds an arm from link lengths. Joints are named
// "joint1".."jointN". With no controlled names every joint is controlled;
// otherwise the configuration covers exactly the named joints in the given
// order.
func NewPlanarArm(lengths []float64, controlled ...string) (*PlanarArm, error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("planar arm requires at least one link")
	}
	for k, l := range lengths {
		if l <= 0 {
			return nil, fmt.Errorf("link length must be positive, got %g at link %d", l, k)
		}
	}
	n := len(lengths)
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("joint%d", i+1)
	}
	a := &PlanarArm{
		lengths: append([]float64(nil), lengths...),
		names:   names,
	}
	if len(controlled) == 0 {
		a.ctrl = make([]int, n)
		for i := range a.ctrl {
			a.ctrl[i] = i
		}
		return a, nil
	}

	seen := make(map[int]bool, len(controlled))
	a.ctrl = make([]int, 0, len(controlled))
	for _, name := range controlled {
		idx := -1
		for j, jn := range names {
			if jn == name {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("unknown joint %q", name)
		}
		if seen[idx] {
			return nil, fmt.Errorf("joint %q controlled twice", name)
		}
		seen[idx] = true
		a.ctrl = append(a.ctrl, idx)
	}
	for j := range names {
		if !seen[j] {
			a.fixed = append(a.fixed, j)
		}
	}
	a.fixedAngles = make([]float64, len(a.fixed))
	return a, nil
}

// Joints returns the joint names in chain order.
func (a *PlanarArm) Joints() []string { return append([]string(nil), a.names...) }

// Lengths returns the link lengths in chain order.
func (a *PlanarArm) Lengths() []float64 { return append([]float64(nil), a.lengths...) }

// Dof returns the controlled joint count.
func (a *PlanarArm) Dof() int { return len(a.ctrl) }

// Reach returns the total chain length.
func (a *PlanarArm) Reach() float64 {
	var sum float64
	for _, l := range a.lengths {
		sum += l
	}
	return sum
}

// Reflect reads the angles of uncontrolled joints from the robot model.
// Arms with every joint controlled carry no external state and accept nil.
func (a *PlanarArm) Reflect(model constraint.RobotState) error {
	if len(a.fixed) == 0 {
		return nil
	}
	if model == nil {
		return fmt.Errorf("planar arm has fixed joints and requires a robot model")
	}
	for f, j := range a.fixed {
		angle, err := model.JointAngle(a.names[j])
		if err != nil {
			return fmt.Errorf("reading joint %q: %w", a.names[j], err)
		}
		a.fixedAngles[f] = angle
	}
	return nil
}

func (a *PlanarArm) clone() *PlanarArm {
	return &PlanarArm{
		lengths:     append([]float64(nil), a.lengths...),
		names:       append([]string(nil), a.names...),
		ctrl:        append([]int(nil), a.ctrl...),
		fixed:       append([]int(nil), a.fixed...),
		fixedAngles: append([]float64(nil), a.fixedAngles...),
	}
}

// frames computes absolute link angles and joint pivot positions for one
// configuration. pivots[k] is the base of link k and pivots[n] the chain tip.
func (a *PlanarArm) frames(q []float64) (cums []float64, pivots [][2]float64) {
	n := len(a.lengths)
	theta := make([]float64, n)
	for c, j := range a.ctrl {
		theta[j] = q[c]
	}
	for f, j := range a.fixed {
		theta[j] = a.fixedAngles[f]
	}
	cums = make([]float64, n)
	pivots = make([][2]float64, n+1)
	angle := 0.0
	for k := 0; k < n; k++ {
		angle += theta[k]
		cums[k] = angle
		pivots[k+1][0] = pivots[k][0] + a.lengths[k]*math.Cos(angle)
		pivots[k+1][1] = pivots[k][1] + a.lengths[k]*math.Sin(angle)
	}
	return cums, pivots
}

// pointJacobian returns the 2 x dof position Jacobian of a point rigidly
// attached to the given link: per upstream joint, the perpendicular lever
// arm from that joint's pivot.
func (a *PlanarArm) pointJacobian(link int, x, y float64, pivots [][2]float64) *mat.Dense {
	jac := mat.NewDense(2, len(a.ctrl), nil)
	for c, j := range a.ctrl {
		if j > link {
			continue
		}
		jac.Set(0, c, -(y - pivots[j][1]))
		jac.Set(1, c, x-pivots[j][0])
	}
	return jac
}

// ============================================================================
// POSE MAP
// ============================================================================

// poseTaskDim matches the 6-dof pose layout of spatial kinematic maps.
const poseTaskDim = 6

// poseFeature fixes a frame to a link: a position offset in the link tip
// frame plus constant extra components for the planar embedding.
type poseFeature struct {
	link  int
	local [2]float64
	extra [3]float64
	yaw   float64
}

// PoseArm exposes arm-mounted frames as a pose map. Task vectors are
// (x, y, z, roll, pitch, yaw); z, roll and pitch are identically zero for
// base features and yaw is the absolute link angle.
type PoseArm struct {
	arm      *PlanarArm
	features []poseFeature
}

// NewPoseArm mounts one frame at the tip of each named link, defaulting to
// the final link only.
func NewPoseArm(arm *PlanarArm, tipLinks ...int) (*PoseArm, error) {
	if arm == nil {
		return nil, fmt.Errorf("pose map requires an arm")
	}
	if len(tipLinks) == 0 {
		tipLinks = []int{len(arm.lengths) - 1}
	}
	features := make([]poseFeature, 0, len(tipLinks))
	for _, k := range tipLinks {
		if k < 0 || k >= len(arm.lengths) {
			return nil, fmt.Errorf("link %d out of range", k)
		}
		features = append(features, poseFeature{link: k})
	}
	return &PoseArm{arm: arm, features: features}, nil
}

// NFeatures returns the mounted frame count
func (m *PoseArm) NFeatures() int { return len(m.features) }

// TaskDim returns the pose vector length
func (m *PoseArm) TaskDim() int { return poseTaskDim }

// ConfigDim returns the controlled joint count
func (m *PoseArm) ConfigDim() int { return len(m.arm.ctrl) }

// Reflect forwards robot state to the arm
func (m *PoseArm) Reflect(model constraint.RobotState) error { return m.arm.Reflect(model) }

// Clone returns a copy sharing no state with the original
func (m *PoseArm) Clone() constraint.PoseMap {
	return &PoseArm{
		arm:      m.arm.clone(),
		features: append([]poseFeature(nil), m.features...),
	}
}

// AddOffsetFeature mounts a new frame rigidly offset from an existing one.
// The first two offset entries displace within the parent frame, entries
// three to five add to the constant components, entry six turns the yaw.
func (m *PoseArm) AddOffsetFeature(featureIndex int, offset []float64) error {
	if featureIndex < 0 || featureIndex >= len(m.features) {
		return fmt.Errorf("feature index %d out of range", featureIndex)
	}
	if len(offset) == 0 || len(offset) > poseTaskDim {
		return core.NewDimensionError(poseTaskDim, len(offset))
	}
	padded := make([]float64, poseTaskDim)
	copy(padded, offset)

	parent := m.features[featureIndex]
	child := parent
	sin, cos := math.Sincos(parent.yaw)
	child.local[0] += cos*padded[0] - sin*padded[1]
	child.local[1] += sin*padded[0] + cos*padded[1]
	child.extra[0] += padded[2]
	child.extra[1] += padded[3]
	child.extra[2] += padded[4]
	child.yaw += padded[5]
	m.features = append(m.features, child)
	return nil
}

// Map evaluates every mounted frame over the batch.
func (m *PoseArm) Map(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	n, dim := qs.Dims()
	if dim != len(m.arm.ctrl) {
		return nil, nil, core.NewDimensionError(len(m.arm.ctrl), dim)
	}
	nf := len(m.features)
	positions := mat.NewDense(n*nf, poseTaskDim, nil)
	var jacs []*mat.Dense
	if withJacobian {
		jacs = make([]*mat.Dense, n*nf)
	}
	for i := 0; i < n; i++ {
		cums, pivots := m.arm.frames(qs.RawRowView(i))
		for j, ft := range m.features {
			sin, cos := math.Sincos(cums[ft.link])
			tip := pivots[ft.link+1]
			x := tip[0] + cos*ft.local[0] - sin*ft.local[1]
			y := tip[1] + sin*ft.local[0] + cos*ft.local[1]

			row := i*nf + j
			positions.Set(row, 0, x)
			positions.Set(row, 1, y)
			positions.Set(row, 2, ft.extra[0])
			positions.Set(row, 3, ft.extra[1])
			positions.Set(row, 4, ft.extra[2])
			positions.Set(row, 5, cums[ft.link]+ft.yaw)
			if !withJacobian {
				continue
			}

			jac := mat.NewDense(poseTaskDim, len(m.arm.ctrl), nil)
			for c, jt := range m.arm.ctrl {
				if jt > ft.link {
					continue
				}
				jac.Set(0, c, -(y - pivots[jt][1]))
				jac.Set(1, c, x-pivots[jt][0])
				jac.Set(5, c, 1)
			}
			jacs[row] = jac
		}
	}
	return positions, jacs, nil
}

// ============================================================================
// COLLISION MAP
// ============================================================================

// CollisionArm covers each link with evenly spaced collision spheres and
// exposes their centers as a collision map over the plane.
type CollisionArm struct {
	arm     *PlanarArm
	perLink int
	radii   []float64
}

// NewCollisionArm distributes spheresPerLink spheres along every link, with
// one radius per link shared by that link's spheres.
func NewCollisionArm(arm *PlanarArm, spheresPerLink int, radii []float64) (*CollisionArm, error) {
	if arm == nil {
		return nil, fmt.Errorf("collision map requires an arm")
	}
	if spheresPerLink < 1 {
		return nil, fmt.Errorf("spheres per link must be positive, got %d", spheresPerLink)
	}
	if len(radii) != len(arm.lengths) {
		return nil, core.NewDimensionError(len(arm.lengths), len(radii))
	}
	for k, r := range radii {
		if r <= 0 {
			return nil, fmt.Errorf("sphere radius must be positive, got %g at link %d", r, k)
		}
	}
	return &CollisionArm{
		arm:     arm,
		perLink: spheresPerLink,
		radii:   append([]float64(nil), radii...),
	}, nil
}

// NFeatures returns the total sphere count
func (m *CollisionArm) NFeatures() int { return m.perLink * len(m.arm.lengths) }

// TaskDim returns the planar point dimension
func (m *CollisionArm) TaskDim() int { return 2 }

// ConfigDim returns the controlled joint count
func (m *CollisionArm) ConfigDim() int { return len(m.arm.ctrl) }

// Reflect forwards robot state to the arm
func (m *CollisionArm) Reflect(model constraint.RobotState) error { return m.arm.Reflect(model) }

// Radii returns one radius per sphere in feature order.
func (m *CollisionArm) Radii() []float64 {
	out := make([]float64, 0, m.NFeatures())
	for k := range m.arm.lengths {
		for s := 0; s < m.perLink; s++ {
			out = append(out, m.radii[k])
		}
	}
	return out
}

// Map evaluates every sphere center over the batch. Sphere s of link k sits
// at fraction (s+0.5)/perLink along the link.
func (m *CollisionArm) Map(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	n, dim := qs.Dims()
	if dim != len(m.arm.ctrl) {
		return nil, nil, core.NewDimensionError(len(m.arm.ctrl), dim)
	}
	nf := m.NFeatures()
	positions := mat.NewDense(n*nf, 2, nil)
	var jacs []*mat.Dense
	if withJacobian {
		jacs = make([]*mat.Dense, n*nf)
	}
	for i := 0; i < n; i++ {
		cums, pivots := m.arm.frames(qs.RawRowView(i))
		j := 0
		for k := range m.arm.lengths {
			for s := 0; s < m.perLink; s++ {
				frac := (float64(s) + 0.5) / float64(m.perLink)
				x := pivots[k][0] + frac*m.arm.lengths[k]*math.Cos(cums[k])
				y := pivots[k][1] + frac*m.arm.lengths[k]*math.Sin(cums[k])

				row := i*nf + j
				positions.Set(row, 0, x)
				positions.Set(row, 1, y)
				if withJacobian {
					jacs[row] = m.arm.pointJacobian(k, x, y, pivots)
				}
				j++
			}
		}
	}
	return positions, jacs, nil
}

// PairwiseSquaredDists returns squared center distances per pair with
// analytic configuration-space gradients.
func (m *CollisionArm) PairwiseSquaredDists(qs *mat.Dense, pairs []constraint.FeaturePair, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	n, dim := qs.Dims()
	if dim != len(m.arm.ctrl) {
		return nil, nil, core.NewDimensionError(len(m.arm.ctrl), dim)
	}
	nf := m.NFeatures()
	positions, featJacs, err := m.Map(qs, withJacobian)
	if err != nil {
		return nil, nil, err
	}

	sq := mat.NewDense(n, len(pairs), nil)
	var grads []*mat.Dense
	if withJacobian {
		grads = make([]*mat.Dense, n)
	}
	for i := 0; i < n; i++ {
		var grad *mat.Dense
		if withJacobian {
			grad = mat.NewDense(len(pairs), len(m.arm.ctrl), nil)
		}
		for p, pair := range pairs {
			if pair.A < 0 || pair.A >= nf || pair.B < 0 || pair.B >= nf {
				return nil, nil, fmt.Errorf("pair %d references a sphere outside the %d available", p, nf)
			}
			ax, ay := positions.At(i*nf+pair.A, 0), positions.At(i*nf+pair.A, 1)
			bx, by := positions.At(i*nf+pair.B, 0), positions.At(i*nf+pair.B, 1)
			dx, dy := ax-bx, ay-by
			sq.Set(i, p, dx*dx+dy*dy)
			if withJacobian {
				ja, jb := featJacs[i*nf+pair.A], featJacs[i*nf+pair.B]
				for c := range m.arm.ctrl {
					g := 2 * (dx*(ja.At(0, c)-jb.At(0, c)) + dy*(ja.At(1, c)-jb.At(1, c)))
					grad.Set(p, c, g)
				}
			}
		}
		if withJacobian {
			grads[i] = grad
		}
	}
	return sq, grads, nil
}
