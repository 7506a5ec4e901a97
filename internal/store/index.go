package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a run id has no index row.
var ErrNotFound = errors.New("run not found")

// RunRecord is one row of the index. ExitCode is nil unless the outcome
// carried one.
type RunRecord struct {
	RunID          string
	ScenarioID     string
	ScenarioSHA256 string
	BinarySHA256   string
	FixtureID      string
	Outcome        string
	ExitCode       *int
	CreatedAtMS    int64
	BundleDir      string
}

// RecordRun inserts one row. A duplicate run id is an error rather than an
// upsert; run ids embed a timestamp and must never collide.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, scenario_id, scenario_sha256, binary_sha256, fixture_id,
		 outcome, exit_code, created_at_ms, bundle_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.ScenarioID,
		rec.ScenarioSHA256,
		rec.BinarySHA256,
		rec.FixtureID,
		rec.Outcome,
		rec.ExitCode,
		rec.CreatedAtMS,
		rec.BundleDir,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// ListOptions filter and bound a listing. A zero Limit means no limit.
type ListOptions struct {
	ScenarioID string
	Outcome    string
	Limit      int
}

// ListRuns returns index rows newest first. Ties on timestamp break on
// run_id so listings are deterministic.
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	query := `
		SELECT run_id, scenario_id, scenario_sha256, binary_sha256, fixture_id,
		       outcome, exit_code, created_at_ms, bundle_dir
		FROM runs
	`
	var (
		conds []string
		args  []any
	)
	if opts.ScenarioID != "" {
		conds = append(conds, "scenario_id = ?")
		args = append(args, opts.ScenarioID)
	}
	if opts.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, opts.Outcome)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at_ms DESC, run_id ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// GetRun looks up one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, scenario_id, scenario_sha256, binary_sha256, fixture_id,
		       outcome, exit_code, created_at_ms, bundle_dir
		FROM runs
		WHERE run_id = ?
	`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec  RunRecord
		code sql.NullInt64
	)
	err := row.Scan(
		&rec.RunID,
		&rec.ScenarioID,
		&rec.ScenarioSHA256,
		&rec.BinarySHA256,
		&rec.FixtureID,
		&rec.Outcome,
		&code,
		&rec.CreatedAtMS,
		&rec.BundleDir,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan run: %w", err)
	}
	if code.Valid {
		v := int(code.Int64)
		rec.ExitCode = &v
	}
	return rec, nil
}
