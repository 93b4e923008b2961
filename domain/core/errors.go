package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Constraint construction and state errors
	ErrNotReflected      = errors.New("constraint has not reflected a robot model")
	ErrMixedPolarity     = errors.New("mixed constraint polarity")
	ErrDimensionMismatch = errors.New("configuration dimension mismatch")
	ErrFeatureCount      = errors.New("unexpected kinematic feature count")
	ErrEmptyComposite    = errors.New("composite requires at least one member")

	// Problem and trajectory errors
	ErrInfeasibleStart  = errors.New("start configuration infeasible")
	ErrTrajectoryLength = errors.New("trajectory requires at least two waypoints")
	ErrBoundsMismatch   = errors.New("lower and upper bounds incompatible")

	// Solver lifecycle errors
	ErrNotReady    = errors.New("solver not set up")
	ErrNoCases     = errors.New("case base is empty")
	ErrNoWorkers   = errors.New("worker count must be positive")
	ErrNoThreshold = errors.New("no usable infeasibility threshold")
)

// Error constructors with context
func NewNotReflectedError(constraintKind string) error {
	return fmt.Errorf("%w: %s", ErrNotReflected, constraintKind)
}

func NewDimensionError(want, got int) error {
	return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, want, got)
}

func NewFeatureCountError(want, got int) error {
	return fmt.Errorf("%w: want %d, got %d", ErrFeatureCount, want, got)
}

func NewInfeasibleStartError(detail string) error {
	return fmt.Errorf("%w: %s", ErrInfeasibleStart, detail)
}

// Error checking helpers
func IsStateError(err error) bool {
	return errors.Is(err, ErrNotReflected) ||
		errors.Is(err, ErrNotReady)
}

func IsConstructionError(err error) bool {
	return errors.Is(err, ErrMixedPolarity) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrFeatureCount) ||
		errors.Is(err, ErrEmptyComposite) ||
		errors.Is(err, ErrBoundsMismatch)
}

func IsInfeasibleStartError(err error) bool {
	return errors.Is(err, ErrInfeasibleStart)
}
