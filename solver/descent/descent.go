// Package descent provides the reference scratch engine: a projected
// Gauss-Newton satisfier that descends the goal residual, projects iterates
// back into the box bounds, and rejects steps that leave the feasible region.
// It trades planning power for predictability; it is the engine the
// meta-solvers are exercised against.
package descent

import (
	"context"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/constraint"
	"goplan/domain/core"
	"goplan/domain/planning"
	"goplan/domain/trajectory"
	"goplan/solver"
)

const (
	// DefaultMaxCalls bounds constraint evaluations when the config leaves
	// MaxCalls unset.
	DefaultMaxCalls = 10000

	// DefaultWaypoints is the output trajectory resolution.
	DefaultWaypoints = 20

	// iterationCap bounds Gauss-Newton iterations per descent attempt.
	iterationCap = 50

	// backtrackCap bounds step halvings when a step lands infeasible.
	backtrackCap = 5
)

// Engine solves by descending the goal residual from a seed configuration,
// then connecting start to the solved goal. Guided runs seed from the guide's
// final waypoint and reshape the guide onto the new endpoints; unguided runs
// and restarts use straight-line paths from random interior seeds.
type Engine struct {
	config    solver.Config
	waypoints int
	problem   *planning.Problem
	rng       *rand.Rand
}

// New builds a descent engine. Zero config values select defaults.
func New(config solver.Config, waypoints int) *Engine {
	if config.MaxCalls <= 0 {
		config.MaxCalls = DefaultMaxCalls
	}
	if waypoints < 2 {
		waypoints = DefaultWaypoints
	}
	return &Engine{
		config:    config,
		waypoints: waypoints,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// Seed reseeds the engine's random restarts.
func (e *Engine) Seed(seed int64) {
	e.rng = rand.New(rand.NewSource(seed))
}

// Prepare stores the problem.
func (e *Engine) Prepare(prob *planning.Problem) error {
	if prob == nil {
		return core.ErrNotReady
	}
	e.problem = prob
	return nil
}

// Run performs one solve attempt. NCalls counts constraint evaluations
// issued by the engine; a failed attempt reports the count spent, unlike the
// abnormal result. The context is polled every iteration.
func (e *Engine) Run(ctx context.Context, guide *trajectory.Trajectory) (*solver.Result, error) {
	if e.problem == nil {
		return nil, core.ErrNotReady
	}

	calls := 0
	seed := e.problem.Start
	if guide != nil {
		seed = guide.Last()
	}

	for calls < e.config.MaxCalls {
		goalQ, solved, err := e.descend(ctx, seed, &calls)
		if err != nil {
			return nil, err
		}
		if solved {
			traj, err := e.pathTo(guide, goalQ)
			if err != nil {
				return nil, err
			}
			ok, err := e.problem.Satisfied(traj)
			if err != nil {
				return nil, err
			}
			if ok {
				return &solver.Result{Traj: traj, NCalls: calls}, nil
			}
		}
		// Restart from a random interior seed; the guide shape only gets
		// one try.
		guide = nil
		seed = e.problem.Bounds.Sample(e.rng)
	}
	return &solver.Result{NCalls: calls}, nil
}

// descend runs projected Gauss-Newton on the goal residual from seed.
func (e *Engine) descend(ctx context.Context, seed []float64, calls *int) ([]float64, bool, error) {
	q := append([]float64(nil), seed...)

	for iter := 0; iter < iterationCap && *calls < e.config.MaxCalls; iter++ {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}

		vals, jac, err := constraint.EvaluateSingle(e.problem.Goal, q, true)
		*calls++
		if err != nil {
			return nil, false, err
		}
		if mat.Dot(vals, vals) <= e.problem.AdmissibleSquaredErr {
			ok, err := e.insideFeasibleRegion(q, calls)
			if err != nil {
				return nil, false, err
			}
			return q, ok, nil
		}

		var delta mat.VecDense
		if err := delta.SolveVec(jac, vals); err != nil {
			// Singular Jacobian; abandon the attempt.
			return nil, false, nil
		}

		// Full step first, halving while the step lands infeasible.
		scale := 1.0
		accepted := false
		next := make([]float64, len(q))
		for bt := 0; bt < backtrackCap; bt++ {
			for k := range next {
				next[k] = q[k] - scale*delta.AtVec(k)
			}
			e.problem.Bounds.Clip(next)
			ok, err := e.insideFeasibleRegion(next, calls)
			if err != nil {
				return nil, false, err
			}
			if ok {
				accepted = true
				break
			}
			scale /= 2
		}
		if !accepted {
			return nil, false, nil
		}
		copy(q, next)
	}
	return nil, false, nil
}

// insideFeasibleRegion checks the global inequality constraint at q.
func (e *Engine) insideFeasibleRegion(q []float64, calls *int) (bool, error) {
	if e.problem.GlobalIneq == nil {
		return true, nil
	}
	vals, _, err := constraint.EvaluateSingle(e.problem.GlobalIneq, q, false)
	*calls++
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

// pathTo connects the problem start to the solved goal configuration. With a
// guide, the guide is resampled to the output resolution and linearly warped
// so its endpoints land on the new start and goal; without one the path is a
// straight line.
func (e *Engine) pathTo(guide *trajectory.Trajectory, goalQ []float64) (*trajectory.Trajectory, error) {
	if guide == nil {
		return trajectory.FromTwoPoints(e.problem.Start, goalQ, e.waypoints)
	}
	resampled, err := guide.Resample(e.waypoints, nil)
	if err != nil {
		return nil, err
	}
	pts := resampled.Points()
	n := len(pts)
	// Copies: the warp below mutates the endpoint rows themselves.
	first := append([]float64(nil), pts[0]...)
	last := append([]float64(nil), pts[n-1]...)
	for i, p := range pts {
		alpha := float64(i) / float64(n-1)
		for k := range p {
			startShift := e.problem.Start[k] - first[k]
			goalShift := goalQ[k] - last[k]
			p[k] += (1-alpha)*startShift + alpha*goalShift
		}
	}
	return trajectory.New(pts)
}
