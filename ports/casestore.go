package ports

import (
	"context"

	"goplan/domain/casebase"
)

// CaseStore defines the interface for case-base persistence
type CaseStore interface {
	// Save persists a batch of cases, replacing rows that share an ID
	Save(ctx context.Context, cases []casebase.Case) error

	// Load retrieves cases in insertion order. A non-positive limit loads
	// the whole store.
	Load(ctx context.Context, limit int) ([]casebase.Case, error)
}
