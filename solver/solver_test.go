package solver

import (
	"context"
	"sync"
	"testing"
	"time"

	"goplan/domain/constraint"
	"goplan/domain/planning"
	"goplan/domain/trajectory"
)

// stubEngine is a canned ScratchEngine for lifecycle and meta-solver tests.
type stubEngine struct {
	result     *Result
	err        error
	prepareErr error
	block      bool          // wait for ctx cancellation, return ctx.Err()
	delay      time.Duration // wait before returning, unless cancelled

	mu       sync.Mutex
	prepared *planning.Problem
	runs     int
	guides   []*trajectory.Trajectory
}

func (s *stubEngine) Prepare(prob *planning.Problem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepareErr != nil {
		return s.prepareErr
	}
	s.prepared = prob
	return nil
}

func (s *stubEngine) Run(ctx context.Context, guide *trajectory.Trajectory) (*Result, error) {
	s.mu.Lock()
	s.runs++
	s.guides = append(s.guides, guide)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	return &out, nil
}

func (s *stubEngine) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *stubEngine) lastGuide() *trajectory.Trajectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.guides) == 0 {
		return nil
	}
	return s.guides[len(s.guides)-1]
}

// lineTraj builds a small straight trajectory for stub results.
func lineTraj(t *testing.T, start, goal []float64, n int) *trajectory.Trajectory {
	t.Helper()
	traj, err := trajectory.FromTwoPoints(start, goal, n)
	if err != nil {
		t.Fatalf("Expected trajectory construction to succeed, got %v", err)
	}
	return traj
}

// feasibleProblem is a 2D problem with an interior start and a point goal.
func feasibleProblem(t *testing.T) *planning.Problem {
	t.Helper()
	box, err := constraint.NewBox([]float64{-5, -5}, []float64{5, 5})
	if err != nil {
		t.Fatalf("Expected box construction to succeed, got %v", err)
	}
	goal, err := constraint.NewConfigPoint([]float64{1, 1})
	if err != nil {
		t.Fatalf("Expected goal construction to succeed, got %v", err)
	}
	prob, err := planning.NewProblem([]float64{0, 0}, box, goal, nil, nil)
	if err != nil {
		t.Fatalf("Expected problem construction to succeed, got %v", err)
	}
	return prob
}

// infeasibleStartProblem puts the start on the box upper bound.
func infeasibleStartProblem(t *testing.T) *planning.Problem {
	t.Helper()
	box, err := constraint.NewBox([]float64{-5, -5}, []float64{5, 5})
	if err != nil {
		t.Fatalf("Expected box construction to succeed, got %v", err)
	}
	goal, err := constraint.NewConfigPoint([]float64{1, 1})
	if err != nil {
		t.Fatalf("Expected goal construction to succeed, got %v", err)
	}
	prob, err := planning.NewProblem([]float64{5, 0}, box, goal, nil, nil)
	if err != nil {
		t.Fatalf("Expected problem construction to succeed, got %v", err)
	}
	return prob
}

func TestAbnormalResult(t *testing.T) {
	res := Abnormal()
	if !res.Failed() {
		t.Fatal("Expected abnormal result to report failure")
	}
	if res.NCalls != AbnormalCalls {
		t.Fatalf("Expected call count %d, got %d", AbnormalCalls, res.NCalls)
	}
	if res.Traj != nil {
		t.Fatal("Expected abnormal result to carry no trajectory")
	}
}

func TestResultFailed(t *testing.T) {
	traj := lineTraj(t, []float64{0, 0}, []float64{1, 1}, 5)
	solved := &Result{Traj: traj, NCalls: 3}
	if solved.Failed() {
		t.Fatal("Expected result with trajectory to report success")
	}
	failed := &Result{NCalls: 120}
	if !failed.Failed() {
		t.Fatal("Expected result without trajectory to report failure")
	}
}
