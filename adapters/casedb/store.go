// Package casedb persists planning case bases in PostgreSQL. Descriptors are
// stored as float8 arrays and trajectories as JSONB, so the table is
// queryable without decoding application types.
package casedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"goplan/domain/casebase"
	"goplan/domain/core"
	"goplan/domain/trajectory"
	"goplan/ports"
)

// Store implements CaseStore for PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore creates a PostgreSQL case store. A nil logger disables logging.
func NewStore(db *sqlx.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("case store requires a database handle")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.Named("casedb")}, nil
}

// EnsureSchema creates the cases table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS planning_cases (
			seq        BIGSERIAL PRIMARY KEY,
			id         UUID UNIQUE NOT NULL,
			descriptor FLOAT8[] NOT NULL,
			trajectory JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create cases table: %w", err)
	}
	return nil
}

// Save persists a batch of cases, replacing rows that share an ID
func (s *Store) Save(ctx context.Context, cases []casebase.Case) error {
	if len(cases) == 0 {
		return nil
	}
	if _, err := casebase.ValidateUniform(cases); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin case save: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cases {
		var trajJSON []byte
		if c.Traj != nil {
			trajJSON, err = json.Marshal(c.Traj)
			if err != nil {
				return fmt.Errorf("failed to encode trajectory for case %s: %w", c.ID, err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO planning_cases (id, descriptor, trajectory)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				descriptor = EXCLUDED.descriptor,
				trajectory = EXCLUDED.trajectory`,
			string(c.ID), pq.Float64Array(c.Desc), trajJSON)
		if err != nil {
			return fmt.Errorf("failed to save case %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit case save: %w", err)
	}

	s.logger.Info("saved cases", zap.Int("count", len(cases)))
	return nil
}

// Load retrieves cases in insertion order. A non-positive limit loads the
// whole store.
func (s *Store) Load(ctx context.Context, limit int) ([]casebase.Case, error) {
	query := `
		SELECT id, descriptor, trajectory
		FROM planning_cases
		ORDER BY seq ASC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load cases: %w", err)
	}
	defer rows.Close()

	var cases []casebase.Case
	for rows.Next() {
		var (
			id       string
			desc     pq.Float64Array
			trajJSON sql.NullString
		)
		if err := rows.Scan(&id, &desc, &trajJSON); err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}

		caseID, err := core.ParseCaseID(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse case row id: %w", err)
		}
		c := casebase.Case{
			ID:   caseID,
			Desc: []float64(desc),
		}
		if trajJSON.Valid {
			var traj trajectory.Trajectory
			if err := json.Unmarshal([]byte(trajJSON.String), &traj); err != nil {
				return nil, fmt.Errorf("failed to decode trajectory for case %s: %w", id, err)
			}
			c.Traj = &traj
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate case rows: %w", err)
	}

	s.logger.Info("loaded cases", zap.Int("count", len(cases)))
	return cases, nil
}

// Count returns the stored case count
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM planning_cases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return n, nil
}

// Ensure Store implements CaseStore
var _ ports.CaseStore = (*Store)(nil)
