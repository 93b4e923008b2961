package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"goplan/domain/casebase"
	"goplan/domain/core"
)

func solvedCase(t *testing.T, desc ...float64) casebase.Case {
	t.Helper()
	traj := lineTraj(t, []float64{0, 0}, []float64{1, 1}, 3)
	c, err := casebase.NewCase(desc, traj)
	if err != nil {
		t.Fatalf("Expected case construction to succeed, got %v", err)
	}
	return c
}

func unsolvedCase(t *testing.T, desc ...float64) casebase.Case {
	t.Helper()
	c, err := casebase.NewCase(desc, nil)
	if err != nil {
		t.Fatalf("Expected case construction to succeed, got %v", err)
	}
	return c
}

// twoClusterBase has a tight solved cluster and a tight unsolved cluster, so
// every candidate threshold predicts perfectly.
func twoClusterBase(t *testing.T) []casebase.Case {
	t.Helper()
	return []casebase.Case{
		solvedCase(t, 0.0),
		solvedCase(t, 0.1),
		solvedCase(t, 0.2),
		solvedCase(t, 0.3),
		unsolvedCase(t, 10.0),
		unsolvedCase(t, 10.1),
		unsolvedCase(t, 10.2),
		unsolvedCase(t, 10.3),
	}
}

func TestCalibrationTieChoosesFirstThreshold(t *testing.T) {
	engine := &stubEngine{result: Abnormal()}
	nn, err := NewNearestNeighbor(engine, twoClusterBase(t), 3, nil)
	if err != nil {
		t.Fatalf("Expected calibration to succeed, got %v", err)
	}

	report := nn.Calibration()
	if report == nil {
		t.Fatal("Expected a calibration report")
	}
	if len(report.Tallies) != 2 {
		t.Fatalf("Expected tallies for thresholds 1..2, got %d", len(report.Tallies))
	}
	for _, tally := range report.Tallies {
		if tally.Mismatches != 0 {
			t.Fatalf("Expected perfect separation, got %d mismatches at threshold %d", tally.Mismatches, tally.Threshold)
		}
	}
	// Both thresholds are perfect; the tie goes to the first.
	if nn.Threshold() != 1 {
		t.Fatalf("Expected threshold 1 on tie, got %d", nn.Threshold())
	}
	if report.Accuracy != 1.0 {
		t.Fatalf("Expected perfect accuracy, got %v", report.Accuracy)
	}
	// Every case's nearest neighbor sits 0.1 away inside its cluster.
	if math.Abs(report.NeighborDistance.Q2-0.1) > 1e-9 {
		t.Fatalf("Expected median neighbor distance 0.1, got %v", report.NeighborDistance.Q2)
	}
}

func TestCalibrationPicksMinimumMismatchThreshold(t *testing.T) {
	// One solved case borders an unsolved satellite, so threshold 1
	// mispredicts it while threshold 2 only misses the satellite.
	cases := []casebase.Case{
		solvedCase(t, 0.0),
		solvedCase(t, 0.1),
		solvedCase(t, 0.2),
		solvedCase(t, 0.3),
		unsolvedCase(t, 0.45),
		unsolvedCase(t, 10.0),
		unsolvedCase(t, 10.1),
		unsolvedCase(t, 10.2),
	}
	engine := &stubEngine{result: Abnormal()}
	nn, err := NewNearestNeighbor(engine, cases, 3, nil)
	if err != nil {
		t.Fatalf("Expected calibration to succeed, got %v", err)
	}

	report := nn.Calibration()
	if nn.Threshold() != 2 {
		t.Fatalf("Expected threshold 2, got %d", nn.Threshold())
	}
	want := []ThresholdTally{{Threshold: 1, Mismatches: 2}, {Threshold: 2, Mismatches: 1}}
	if len(report.Tallies) != len(want) {
		t.Fatalf("Expected %d tallies, got %d", len(want), len(report.Tallies))
	}
	for i, tally := range report.Tallies {
		if tally != want[i] {
			t.Fatalf("Expected tally %+v, got %+v", want[i], tally)
		}
	}
	if math.Abs(report.Accuracy-0.875) > 1e-9 {
		t.Fatalf("Expected accuracy 0.875, got %v", report.Accuracy)
	}
}

func TestNearestNeighborShortCircuitsPredictedInfeasible(t *testing.T) {
	engine := &stubEngine{result: Abnormal()}
	nn, err := NewNearestNeighbor(engine, twoClusterBase(t), 3, nil)
	if err != nil {
		t.Fatalf("Expected calibration to succeed, got %v", err)
	}
	if err := nn.Prepare(feasibleProblem(t)); err != nil {
		t.Fatalf("Expected prepare to succeed, got %v", err)
	}

	res, err := nn.Run(context.Background(), []float64{10.15})
	if err != nil {
		t.Fatalf("Expected short circuit to return a result, got %v", err)
	}
	if !res.Failed() || res.NCalls != AbnormalCalls {
		t.Fatalf("Expected abnormal result, got %+v", res)
	}
	if engine.runCount() != 0 {
		t.Fatalf("Expected internal engine to stay idle, got %d runs", engine.runCount())
	}
}

func TestNearestNeighborWarmStartsFromNearestSolvedCase(t *testing.T) {
	base := twoClusterBase(t)
	traj := lineTraj(t, []float64{0, 0}, []float64{1, 1}, 5)
	engine := &stubEngine{result: &Result{Traj: traj, NCalls: 9}}
	nn, err := NewNearestNeighbor(engine, base, 3, nil)
	if err != nil {
		t.Fatalf("Expected calibration to succeed, got %v", err)
	}

	res, err := nn.Run(context.Background(), []float64{0.15})
	if err != nil {
		t.Fatalf("Expected solve to succeed, got %v", err)
	}
	if res.Failed() {
		t.Fatal("Expected warm-started solve to succeed")
	}
	if engine.runCount() != 1 {
		t.Fatalf("Expected exactly one warm-start attempt, got %d", engine.runCount())
	}
	// The nearest case to 0.15 is the one at 0.1.
	if engine.lastGuide() != base[1].Traj {
		t.Fatal("Expected the nearest solved case to provide the guide")
	}
}

func TestNearestNeighborSingleAttempt(t *testing.T) {
	// Internal engine fails; the meta-solver must not retry other neighbors.
	engine := &stubEngine{result: &Result{NCalls: 100}}
	nn, err := NewNearestNeighbor(engine, twoClusterBase(t), 3, nil)
	if err != nil {
		t.Fatalf("Expected calibration to succeed, got %v", err)
	}

	res, err := nn.Run(context.Background(), []float64{0.15})
	if err != nil {
		t.Fatalf("Expected solve to finish, got %v", err)
	}
	if !res.Failed() {
		t.Fatal("Expected failed result to pass through")
	}
	if engine.runCount() != 1 {
		t.Fatalf("Expected a single attempt, got %d runs", engine.runCount())
	}
}

func TestNearestNeighborNilQueryDelegates(t *testing.T) {
	traj := lineTraj(t, []float64{0, 0}, []float64{1, 1}, 5)
	engine := &stubEngine{result: &Result{Traj: traj, NCalls: 3}}
	nn, err := NewNearestNeighbor(engine, twoClusterBase(t), 3, nil)
	if err != nil {
		t.Fatalf("Expected calibration to succeed, got %v", err)
	}

	res, err := nn.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Expected delegation to succeed, got %v", err)
	}
	if res.Failed() {
		t.Fatal("Expected delegated solve to succeed")
	}
	if engine.runCount() != 1 {
		t.Fatalf("Expected one delegated run, got %d", engine.runCount())
	}
	if engine.lastGuide() != nil {
		t.Fatal("Expected no guide on delegation")
	}
}

func TestNearestNeighborSkipsUnsolvedNeighborsForGuide(t *testing.T) {
	// The nearest case is unsolved, but with a lenient explicit threshold
	// the solve still proceeds, guided by the nearest solved case.
	base := []casebase.Case{
		unsolvedCase(t, 0.0),
		solvedCase(t, 0.2),
		solvedCase(t, 0.4),
		solvedCase(t, 5.0),
	}
	traj := lineTraj(t, []float64{0, 0}, []float64{1, 1}, 5)
	engine := &stubEngine{result: &Result{Traj: traj, NCalls: 2}}
	nn, err := NewNearestNeighborWithThreshold(engine, base, 3, 3, nil)
	if err != nil {
		t.Fatalf("Expected construction to succeed, got %v", err)
	}

	res, err := nn.Run(context.Background(), []float64{0.05})
	if err != nil {
		t.Fatalf("Expected solve to succeed, got %v", err)
	}
	if res.Failed() {
		t.Fatal("Expected guided solve to succeed")
	}
	if engine.lastGuide() != base[1].Traj {
		t.Fatal("Expected the nearest solved case to guide, skipping the unsolved one")
	}
}

func TestNearestNeighborNoSolvedNeighborsYieldsAbnormal(t *testing.T) {
	// All retrieved neighbors are unsolved but stay under the lenient
	// threshold; with no guide available the result is abnormal.
	base := []casebase.Case{
		unsolvedCase(t, 0.0),
		unsolvedCase(t, 0.1),
		unsolvedCase(t, 0.2),
		solvedCase(t, 100.0),
	}
	engine := &stubEngine{result: Abnormal()}
	nn, err := NewNearestNeighborWithThreshold(engine, base, 3, 4, nil)
	if err != nil {
		t.Fatalf("Expected construction to succeed, got %v", err)
	}

	res, err := nn.Run(context.Background(), []float64{0.05})
	if err != nil {
		t.Fatalf("Expected solve to finish, got %v", err)
	}
	if !res.Failed() {
		t.Fatal("Expected abnormal result with no usable guide")
	}
	if engine.runCount() != 0 {
		t.Fatalf("Expected internal engine to stay idle, got %d runs", engine.runCount())
	}
}

func TestNearestNeighborConstructionRejections(t *testing.T) {
	engine := &stubEngine{result: Abnormal()}
	base := twoClusterBase(t)

	if _, err := NewNearestNeighbor(nil, base, 3, nil); err == nil {
		t.Fatal("Expected nil engine to be rejected")
	}
	if _, err := NewNearestNeighbor(engine, nil, 3, nil); !errors.Is(err, core.ErrNoCases) {
		t.Fatalf("Expected empty case base error, got %v", err)
	}
	if _, err := NewNearestNeighbor(engine, base, 0, nil); err == nil {
		t.Fatal("Expected non-positive knn to be rejected")
	}
	if _, err := NewNearestNeighbor(engine, base, 1, nil); !errors.Is(err, core.ErrNoThreshold) {
		t.Fatalf("Expected calibration with knn 1 to be rejected, got %v", err)
	}
	if _, err := NewNearestNeighborWithThreshold(engine, base, 3, 0, nil); !errors.Is(err, core.ErrNoThreshold) {
		t.Fatalf("Expected threshold 0 to be rejected, got %v", err)
	}

	mixed := []casebase.Case{solvedCase(t, 0.0), solvedCase(t, 1.0, 2.0)}
	if _, err := NewNearestNeighborWithThreshold(engine, mixed, 1, 1, nil); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("Expected mixed descriptor dimensions to be rejected, got %v", err)
	}
}

func TestNearestNeighborQueryDimensionCheck(t *testing.T) {
	engine := &stubEngine{result: Abnormal()}
	nn, err := NewNearestNeighbor(engine, twoClusterBase(t), 3, nil)
	if err != nil {
		t.Fatalf("Expected calibration to succeed, got %v", err)
	}
	if _, err := nn.Run(context.Background(), []float64{1, 2}); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("Expected query dimension error, got %v", err)
	}
}
