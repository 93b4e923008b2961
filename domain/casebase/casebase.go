// Package casebase holds solved planning problems as retrieval cases: a
// feature vector describing the problem and, when one was found, the solution
// trajectory. Meta-solvers query the base to predict feasibility and to warm
// start new solves.
package casebase

import (
	"fmt"

	"goplan/domain/core"
	"goplan/domain/trajectory"
)

// Case pairs a problem descriptor with its solution. A nil Traj records that
// the problem was attempted and no solution was found; that negative signal
// is what feasibility prediction learns from.
type Case struct {
	ID   core.CaseID            `json:"id"`
	Desc []float64              `json:"desc"`
	Traj *trajectory.Trajectory `json:"traj,omitempty"`
}

// NewCase builds a case with a fresh ID.
func NewCase(desc []float64, traj *trajectory.Trajectory) (Case, error) {
	if len(desc) == 0 {
		return Case{}, fmt.Errorf("%w: empty case descriptor", core.ErrDimensionMismatch)
	}
	return Case{
		ID:   core.CaseID(core.NewID()),
		Desc: append([]float64(nil), desc...),
		Traj: traj,
	}, nil
}

// Solved reports whether the case carries a trajectory.
func (c Case) Solved() bool { return c.Traj != nil }

// ValidateUniform checks a case set for retrieval use: non-empty, with every
// descriptor of the same dimension.
func ValidateUniform(cases []Case) (dim int, err error) {
	if len(cases) == 0 {
		return 0, core.ErrNoCases
	}
	dim = len(cases[0].Desc)
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty case descriptor", core.ErrDimensionMismatch)
	}
	for i, c := range cases {
		if len(c.Desc) != dim {
			return 0, fmt.Errorf("case %d: %w", i, core.NewDimensionError(dim, len(c.Desc)))
		}
	}
	return dim, nil
}
