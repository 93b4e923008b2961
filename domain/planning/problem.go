// Package planning defines the motion planning problem handed to solvers:
// start configuration, box bounds, goal constraint, and optional global
// constraints, together with the feasibility checks solvers rely on.
package planning

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/constraint"
	"goplan/domain/core"
	"goplan/domain/trajectory"
)

// Defaults applied by NewProblem.
const (
	// DefaultAdmissibleSquaredErr is the squared goal residual below which
	// the final waypoint counts as satisfying the goal.
	DefaultAdmissibleSquaredErr = 1e-6

	// DefaultMotionStep is the per-dimension resolution broadcast to every
	// configuration dimension when no explicit step vector is set.
	DefaultMotionStep = 0.1
)

// Problem is the full statement of a motion planning query. Fields are
// read-only after construction; solvers never mutate a Problem, so one
// instance may be shared across concurrent workers.
type Problem struct {
	Start      []float64
	Bounds     *constraint.Box
	Goal       constraint.Constraint
	GlobalIneq constraint.Constraint
	GlobalEq   constraint.Constraint

	// AdmissibleSquaredErr bounds the squared goal residual at the final
	// waypoint in Satisfied.
	AdmissibleSquaredErr float64

	// MotionStep is the per-dimension resolution for motion-step validity
	// checks between consecutive waypoints.
	MotionStep []float64

	// SkipStartCheck bypasses CheckStartFeasibility. Debug escape hatch.
	SkipStartCheck bool
}

// NewProblem validates the query and applies defaults. The goal must be an
// equality constraint; the global constraints, when present, must carry the
// polarity their role implies.
func NewProblem(start []float64, bounds *constraint.Box, goal, globalIneq, globalEq constraint.Constraint) (*Problem, error) {
	if len(start) == 0 {
		return nil, fmt.Errorf("%w: empty start configuration", core.ErrDimensionMismatch)
	}
	if bounds == nil {
		return nil, fmt.Errorf("%w: problem requires box bounds", core.ErrBoundsMismatch)
	}
	if bounds.ConfigDim() != len(start) {
		return nil, core.NewDimensionError(bounds.ConfigDim(), len(start))
	}
	if goal == nil {
		return nil, fmt.Errorf("%w: problem requires a goal constraint", core.ErrEmptyComposite)
	}
	if goal.Polarity() != constraint.Equality {
		return nil, fmt.Errorf("%w: goal must be an equality constraint", core.ErrMixedPolarity)
	}
	if globalIneq != nil && globalIneq.Polarity() != constraint.Inequality {
		return nil, fmt.Errorf("%w: global inequality slot holds %s constraint", core.ErrMixedPolarity, globalIneq.Polarity())
	}
	if globalEq != nil && globalEq.Polarity() != constraint.Equality {
		return nil, fmt.Errorf("%w: global equality slot holds %s constraint", core.ErrMixedPolarity, globalEq.Polarity())
	}

	step := make([]float64, len(start))
	for i := range step {
		step[i] = DefaultMotionStep
	}
	return &Problem{
		Start:                append([]float64(nil), start...),
		Bounds:               bounds,
		Goal:                 goal,
		GlobalIneq:           globalIneq,
		GlobalEq:             globalEq,
		AdmissibleSquaredErr: DefaultAdmissibleSquaredErr,
		MotionStep:           step,
	}, nil
}

// Dim returns the configuration dimension.
func (p *Problem) Dim() int { return len(p.Start) }

// Constrained reports whether a global equality constraint is present.
// Constrained problems require manifold-aware solvers.
func (p *Problem) Constrained() bool { return p.GlobalEq != nil }

// CheckStartFeasibility verifies the start configuration lies strictly
// inside the box bounds and is accepted by the global inequality constraint.
// When the inequality constraint is a composite, each violated member is
// reported individually in the diagnostic string.
func (p *Problem) CheckStartFeasibility() (bool, string, error) {
	if p.SkipStartCheck {
		return true, "", nil
	}

	var msgs []string
	lb, ub := p.Bounds.Lower(), p.Bounds.Upper()
	if !strictlyBelow(p.Start, ub) {
		msgs = append(msgs, "start does not satisfy box upper bounds")
	}
	if !strictlyAbove(p.Start, lb) {
		msgs = append(msgs, "start does not satisfy box lower bounds")
	}

	if p.GlobalIneq != nil {
		ok, err := allPositive(p.GlobalIneq, p.Start)
		if err != nil {
			return false, "", err
		}
		if !ok {
			if comp, isComposite := p.GlobalIneq.(*constraint.Composite); isComposite {
				for _, member := range comp.Members() {
					memberOK, err := allPositive(member, p.Start)
					if err != nil {
						return false, "", err
					}
					if !memberOK {
						msgs = append(msgs, "start does not satisfy "+kindOf(member))
					}
				}
			} else {
				msgs = append(msgs, "start does not satisfy "+kindOf(p.GlobalIneq))
			}
		}
	}

	return len(msgs) == 0, strings.Join(msgs, ", "), nil
}

// Satisfied reports whether a trajectory solves the problem: the final
// waypoint must satisfy the goal within AdmissibleSquaredErr, every waypoint
// must be strictly feasible under the global inequality constraint, and every
// consecutive waypoint pair must pass the motion-step validity check.
// Equality adherence at interior waypoints is not checked; verifying manifold
// adherence between waypoints is out of scope here.
func (p *Problem) Satisfied(traj *trajectory.Trajectory) (bool, error) {
	if traj == nil {
		return false, fmt.Errorf("%w: nil trajectory", core.ErrTrajectoryLength)
	}

	goalVals, _, err := constraint.EvaluateSingle(p.Goal, traj.Last(), false)
	if err != nil {
		return false, err
	}
	if mat.Dot(goalVals, goalVals) > p.AdmissibleSquaredErr {
		return false, nil
	}

	if p.GlobalIneq == nil {
		return true, nil
	}

	values, _, err := p.GlobalIneq.Evaluate(traj.Matrix(), false)
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

	for i := 0; i < traj.Len()-1; i++ {
		ok, err := ValidMotionStep(p.MotionStep, traj.Point(i), traj.Point(i+1), p.GlobalIneq)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// allPositive evaluates a constraint at a single configuration and reports
// whether every residual is strictly positive.
func allPositive(c constraint.Constraint, q []float64) (bool, error) {
	vals, _, err := constraint.EvaluateSingle(c, q, false)
	if err != nil {
		return false, err
	}
	for i := 0; i < vals.Len(); i++ {
		if vals.AtVec(i) <= 0 {
			return false, nil
		}
	}
	return true, nil
}

// kindOf names a constraint for diagnostics by its concrete type.
func kindOf(c constraint.Constraint) string {
	name := fmt.Sprintf("%T", c)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func strictlyBelow(q, ub []float64) bool {
	for i := range q {
		if q[i] >= ub[i] {
			return false
		}
	}
	return true
}

func strictlyAbove(q, lb []float64) bool {
	for i := range q {
		if q[i] <= lb[i] {
			return false
		}
	}
	return true
}
