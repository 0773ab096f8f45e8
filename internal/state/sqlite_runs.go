package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// CreateRun creates a new execution run in the running state.
func (s *SQLiteStore) CreateRun(env string, dryRun bool) (*core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	run := &core.Run{
		ID:          generateID(),
		Environment: env,
		DryRun:      dryRun,
		Status:      core.RunStatusRunning,
		StartedAt:   s.timestamp(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("environment", env), slog.Bool("dry_run", dryRun))

	_, err := s.db.ExecContext(ctx(),
		`INSERT INTO runs (id, environment, dry_run, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Environment, boolToInt(dryRun), string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

const runColumns = `id, environment, dry_run, status, started_at, completed_at, error`

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	run, err := scanRun(s.db.QueryRowContext(ctx(), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return ErrNotOpen
	}

	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}

	res, err := s.db.ExecContext(ctx(),
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(s.timestamp()), errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx(),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
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

// RecordRuleRun appends one rule outcome to a run.
func (s *SQLiteStore) RecordRuleRun(runID string, result *core.ExecutionResult) error {
	if s.db == nil {
		return ErrNotOpen
	}

	_, err := s.db.ExecContext(ctx(), `
		INSERT INTO rule_runs (run_id, rule_id, rule_name, status, passed, message, record_count, elapsed_ms, skipped_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, result.RuleID, result.RuleName, string(result.Status), boolToInt(result.Passed),
		result.Message, result.RecordCount, result.Elapsed.Milliseconds(), result.SkippedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to record rule run: %w", err)
	}
	return nil
}

// GetRuleRunsForRun returns rule outcomes in the order they were recorded.
func (s *SQLiteStore) GetRuleRunsForRun(runID string) ([]*core.ExecutionResult, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx(), `
		SELECT rule_id, rule_name, status, passed, message, record_count, elapsed_ms, skipped_by
		FROM rule_runs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.ExecutionResult
	for rows.Next() {
		var (
			r         core.ExecutionResult
			status    string
			passed    int
			elapsedMS int64
		)
		if err := rows.Scan(&r.RuleID, &r.RuleName, &status, &passed, &r.Message, &r.RecordCount, &elapsedMS, &r.SkippedBy); err != nil {
			return nil, fmt.Errorf("failed to scan rule run: %w", err)
		}
		r.Status = core.RuleRunStatus(status)
		r.Passed = passed != 0
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, &r)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*core.Run, error) {
	var (
		run         core.Run
		dryRun      int
		status      string
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Environment, &dryRun, &status, &startedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}

	run.DryRun = dryRun != 0
	run.Status = core.RunStatus(status)
	run.Error = errMsg.String

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return &run, nil
}
