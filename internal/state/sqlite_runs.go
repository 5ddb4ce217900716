package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

const runColumns = `id, environment, kind, status, started_at, completed_at, error`

// CreateRun creates a new pipeline run.
func (s *SQLiteStore) CreateRun(env string, kind core.RunKind) (*core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}
	if kind == "" {
		kind = core.RunKindRun
	}

	run := &core.Run{
		ID:          generateID(),
		Environment: env,
		Kind:        kind,
		Status:      core.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx(),
		`INSERT INTO runs (id, environment, kind, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Environment, string(run.Kind), string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	row := s.db.QueryRowContext(ctx(), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return ErrNotOpened
	}

	res, err := s.db.ExecContext(ctx(),
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), nullableString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetLatestRun retrieves the most recent run for an environment.
// Returns nil when the environment has no runs.
func (s *SQLiteStore) GetLatestRun(env string) (*core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	row := s.db.QueryRowContext(ctx(),
		`SELECT `+runColumns+` FROM runs WHERE environment = ? ORDER BY started_at DESC LIMIT 1`, env)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs across environments, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx(),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (*core.Run, error) {
	run := &core.Run{}
	var kind, status, startedAt string
	var completedAt, errMsg sql.NullString

	if err := r.Scan(&run.ID, &run.Environment, &kind, &status, &startedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}

	run.Kind = core.RunKind(kind)
	run.Status = core.RunStatus(status)
	run.Error = errMsg.String

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return run, nil
}
