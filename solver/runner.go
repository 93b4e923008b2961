package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goplan/domain/core"
	"goplan/domain/planning"
)

// ============================================================================
// LIFECYCLE
// ============================================================================

// State tracks where a Runner is in its lifecycle.
type State int

const (
	Unconfigured State = iota
	Ready
	Solving
	Done
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Ready:
		return "ready"
	case Solving:
		return "solving"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Runner drives an engine through the solve lifecycle: problem setup, start
// feasibility, deadline arming, and elapsed-time stamping. One Runner serves
// one caller at a time; the racing meta-solver handles parallelism below
// this layer.
type Runner[G any] struct {
	config  Config
	engine  Engine[G]
	logger  *zap.Logger
	problem *planning.Problem
	runID   core.RunID
	state   State
}

// NewRunner wraps an engine with lifecycle handling. A nil logger disables
// logging.
func NewRunner[G any](config Config, engine Engine[G], logger *zap.Logger) *Runner[G] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner[G]{
		config: config,
		engine: engine,
		logger: logger.Named("solver"),
		state:  Unconfigured,
	}
}

// State returns the current lifecycle state.
func (r *Runner[G]) State() State { return r.state }

// Problem returns the problem given to Setup, or nil before Setup.
func (r *Runner[G]) Problem() *planning.Problem { return r.problem }

// RunID identifies the current Setup-to-Solve cycle in logs.
func (r *Runner[G]) RunID() core.RunID { return r.runID }

// Setup prepares the engine for a particular problem. Required before Solve.
func (r *Runner[G]) Setup(prob *planning.Problem) error {
	if prob == nil {
		return fmt.Errorf("%w: nil problem", core.ErrNotReady)
	}
	if err := r.engine.Prepare(prob); err != nil {
		return fmt.Errorf("engine preparation failed: %w", err)
	}
	r.problem = prob
	r.runID = core.RunID(core.NewID())
	r.state = Ready
	r.logger.Info("solver ready",
		zap.String("run_id", r.runID.String()),
		zap.Int("config_dim", prob.Dim()),
		zap.Bool("constrained", prob.Constrained()))
	return nil
}

// Solve runs one solve attempt with an optional guide.
//
// The configured timeout is armed as a context deadline layered onto ctx;
// engines observe it cooperatively, so a deadline hit surfaces as the
// abnormal result rather than an error. An infeasible start fails loudly
// unless ContinueOnInfeasibleStart is given, in which case it also yields
// the abnormal result. Elapsed wall-clock time is stamped on every result.
func (r *Runner[G]) Solve(ctx context.Context, guide G, opts ...SolveOption) (*Result, error) {
	switch r.state {
	case Unconfigured:
		return nil, fmt.Errorf("%w: Setup must run before Solve", core.ErrNotReady)
	case Solving:
		return nil, fmt.Errorf("%w: solve already in flight", core.ErrNotReady)
	}

	var options solveOptions
	for _, opt := range opts {
		opt(&options)
	}

	r.state = Solving
	defer func() { r.state = Done }()

	start := time.Now()
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	feasible, diag, err := r.problem.CheckStartFeasibility()
	if err != nil {
		return nil, fmt.Errorf("start feasibility check failed: %w", err)
	}
	if !feasible {
		if !options.continueOnInfeasibleStart {
			return nil, core.NewInfeasibleStartError(diag)
		}
		res := Abnormal()
		res.Elapsed = time.Since(start)
		r.logger.Warn("start infeasible, returning abnormal result", zap.String("diagnostic", diag))
		return res, nil
	}

	res, err := r.engine.Run(ctx, guide)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			res = Abnormal()
			res.Elapsed = time.Since(start)
			r.logger.Warn("solve aborted by deadline",
				zap.Duration("timeout", r.config.Timeout),
				zap.Duration("elapsed", res.Elapsed))
			return res, nil
		}
		return nil, fmt.Errorf("engine run failed: %w", err)
	}

	res.Elapsed = time.Since(start)
	if res.Failed() {
		r.logger.Info("solve failed",
			zap.String("run_id", r.runID.String()),
			zap.Duration("elapsed", res.Elapsed),
			zap.Int("n_calls", res.NCalls))
	} else {
		r.logger.Info("solve succeeded",
			zap.String("run_id", r.runID.String()),
			zap.Duration("elapsed", res.Elapsed),
			zap.Int("n_calls", res.NCalls),
			zap.Int("waypoints", res.Traj.Len()))
	}
	return res, nil
}
