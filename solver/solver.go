// Package solver orchestrates motion planning engines: lifecycle and timeout
// handling, parallel racing across workers, and nearest-neighbor warm-start
// retrieval over a case base.
package solver

import (
	"context"
	"time"

	"goplan/domain/planning"
	"goplan/domain/trajectory"
)

// ============================================================================
// RESULTS
// ============================================================================

// AbnormalCalls marks a result produced without running an engine, so no
// call count is available.
const AbnormalCalls = -1

// Result is the outcome of one solve attempt. A nil Traj means failure.
type Result struct {
	Traj    *trajectory.Trajectory
	Elapsed time.Duration
	NCalls  int
}

// Abnormal builds the canonical failed result: no trajectory and no call
// count, returned when a solve never ran or was cut short.
func Abnormal() *Result {
	return &Result{NCalls: AbnormalCalls}
}

// Failed reports whether the attempt produced no trajectory.
func (r *Result) Failed() bool { return r.Traj == nil }

// ============================================================================
// ENGINE CONTRACT
// ============================================================================

// Engine is the solver-specific core. Prepare receives the problem once;
// Run performs a single solve attempt with an optional guide. Engines must
// poll ctx between iterations and return ctx.Err() promptly on cancellation;
// a non-polling inner loop overruns its deadline by at most one iteration.
type Engine[G any] interface {
	Prepare(prob *planning.Problem) error
	Run(ctx context.Context, guide G) (*Result, error)
}

// ScratchEngine solves from scratch, optionally guided by a previous
// trajectory. Meta-solvers that retrieve or race plain solvers wrap this.
type ScratchEngine = Engine[*trajectory.Trajectory]

// Seedable is implemented by engines whose random source can be reseeded.
// The racing meta-solver reseeds every worker before each run so workers
// explore independently.
type Seedable interface {
	Seed(seed int64)
}

// Config carries the engine-independent solve budget.
type Config struct {
	// MaxCalls bounds constraint evaluations inside one engine run.
	MaxCalls int

	// Timeout bounds wall-clock time for one solve. Zero disables it.
	Timeout time.Duration
}

// ============================================================================
// SOLVE OPTIONS
// ============================================================================

type solveOptions struct {
	continueOnInfeasibleStart bool
}

// SolveOption adjusts a single Solve call.
type SolveOption func(*solveOptions)

// ContinueOnInfeasibleStart returns the abnormal result instead of failing
// with an error when the start configuration is infeasible.
func ContinueOnInfeasibleStart() SolveOption {
	return func(o *solveOptions) { o.continueOnInfeasibleStart = true }
}
