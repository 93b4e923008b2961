package casebase

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"goplan/domain/core"
	"goplan/domain/trajectory"
)

func lineTraj(t *testing.T) *trajectory.Trajectory {
	t.Helper()
	traj, err := trajectory.New([][]float64{{0, 0}, {1, 1}})
	if err != nil {
		t.Fatalf("Expected trajectory construction to succeed, got %v", err)
	}
	return traj
}

func TestNewCase(t *testing.T) {
	desc := []float64{1, 2, 3}
	c, err := NewCase(desc, lineTraj(t))
	if err != nil {
		t.Fatalf("Expected case construction to succeed, got %v", err)
	}
	if c.ID.String() == "" {
		t.Fatal("Expected a fresh case ID")
	}
	if !c.Solved() {
		t.Fatal("Expected a case with a trajectory to be solved")
	}

	desc[0] = 99
	if c.Desc[0] != 1 {
		t.Fatal("Expected the descriptor to be copied")
	}

	other, err := NewCase([]float64{1, 2, 3}, nil)
	if err != nil {
		t.Fatalf("Expected case construction to succeed, got %v", err)
	}
	if other.ID == c.ID {
		t.Fatal("Expected distinct IDs for distinct cases")
	}
	if other.Solved() {
		t.Fatal("Expected a case without a trajectory to be unsolved")
	}
}

func TestNewCaseRejectsEmptyDescriptor(t *testing.T) {
	if _, err := NewCase(nil, nil); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("Expected dimension error, got %v", err)
	}
}

func TestValidateUniform(t *testing.T) {
	a, _ := NewCase([]float64{1, 2}, nil)
	b, _ := NewCase([]float64{3, 4}, lineTraj(t))

	dim, err := ValidateUniform([]Case{a, b})
	if err != nil {
		t.Fatalf("Expected uniform set to validate, got %v", err)
	}
	if dim != 2 {
		t.Fatalf("Expected dimension 2, got %d", dim)
	}

	if _, err := ValidateUniform(nil); !errors.Is(err, core.ErrNoCases) {
		t.Fatalf("Expected empty-set error, got %v", err)
	}

	c, _ := NewCase([]float64{5}, nil)
	_, err = ValidateUniform([]Case{a, b, c})
	if !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("Expected dimension error, got %v", err)
	}
	if !strings.Contains(err.Error(), "case 2") {
		t.Fatalf("Expected the offending case index in the error, got %v", err)
	}
}

func TestCaseJSONRoundTrip(t *testing.T) {
	c, err := NewCase([]float64{1, 2}, lineTraj(t))
	if err != nil {
		t.Fatalf("Expected case construction to succeed, got %v", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Expected marshal to succeed, got %v", err)
	}
	var decoded Case
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Expected unmarshal to succeed, got %v", err)
	}
	if decoded.ID != c.ID {
		t.Fatalf("Expected ID %s, got %s", c.ID, decoded.ID)
	}
	if len(decoded.Desc) != 2 || decoded.Desc[0] != 1 || decoded.Desc[1] != 2 {
		t.Fatalf("Expected descriptor [1 2], got %v", decoded.Desc)
	}
	if !decoded.Solved() {
		t.Fatal("Expected the decoded case to carry its trajectory")
	}
	last := decoded.Traj.Last()
	if decoded.Traj.Len() != 2 || last[0] != 1 || last[1] != 1 {
		t.Fatalf("Expected the trajectory to survive the round trip, got %v", decoded.Traj.Points())
	}
}

func TestUnsolvedCaseJSONOmitsTrajectory(t *testing.T) {
	c, err := NewCase([]float64{1}, nil)
	if err != nil {
		t.Fatalf("Expected case construction to succeed, got %v", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Expected marshal to succeed, got %v", err)
	}
	if strings.Contains(string(data), "traj") {
		t.Fatalf("Expected the trajectory field to be omitted, got %s", data)
	}
	var decoded Case
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Expected unmarshal to succeed, got %v", err)
	}
	if decoded.Solved() {
		t.Fatal("Expected the decoded case to stay unsolved")
	}
}

func TestCaseJSONRejectsDegenerateTrajectory(t *testing.T) {
	c, err := NewCase([]float64{1, 2}, lineTraj(t))
	if err != nil {
		t.Fatalf("Expected case construction to succeed, got %v", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Expected marshal to succeed, got %v", err)
	}

	// A single-waypoint trajectory must not survive decoding.
	tampered := strings.Replace(string(data), "[[0,0],[1,1]]", "[[0,0]]", 1)
	if tampered == string(data) {
		t.Fatalf("Expected to find the trajectory payload in %s", data)
	}
	var decoded Case
	if err := json.Unmarshal([]byte(tampered), &decoded); !errors.Is(err, core.ErrTrajectoryLength) {
		t.Fatalf("Expected trajectory length error, got %v", err)
	}
}
