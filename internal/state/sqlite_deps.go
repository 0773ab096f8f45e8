package state

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// SetRuleDependencies replaces all stored dependencies of a rule.
func (s *SQLiteStore) SetRuleDependencies(ruleID int64, deps []core.RuleDependency) error {
	if s.db == nil {
		return ErrNotOpen
	}

	err := s.inTx(func(tx *sql.Tx) error {
		return replaceDependencies(tx, ruleID, deps)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("stored dependencies", slog.Int64("rule_id", ruleID), slog.Int("count", len(deps)))
	return nil
}

func replaceDependencies(q execer, ruleID int64, deps []core.RuleDependency) error {
	if _, err := q.ExecContext(ctx(), `DELETE FROM rule_dependencies WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", err)
	}

	stmt, err := q.PrepareContext(ctx(), `
		INSERT INTO rule_dependencies (rule_id, database_name, table_name, column_name, op)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare dependency insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range deps {
		if _, err := stmt.ExecContext(ctx(), ruleID, d.Database, d.Table, d.Column, string(d.Op)); err != nil {
			return fmt.Errorf("failed to insert dependency %s.%s: %w", d.QualifiedTable(), d.Column, err)
		}
	}
	return nil
}

// GetRuleDependencies returns the stored dependencies of one rule in insertion order.
func (s *SQLiteStore) GetRuleDependencies(ruleID int64) ([]core.RuleDependency, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.queryDependencies(`
		SELECT rule_id, database_name, table_name, column_name, op
		FROM rule_dependencies WHERE rule_id = ? ORDER BY rowid`, ruleID)
}

// ListDependencies returns every stored dependency ordered by rule.
func (s *SQLiteStore) ListDependencies() ([]core.RuleDependency, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.queryDependencies(`
		SELECT rule_id, database_name, table_name, column_name, op
		FROM rule_dependencies ORDER BY rule_id, rowid`)
}

func (s *SQLiteStore) queryDependencies(query string, args ...any) ([]core.RuleDependency, error) {
	rows, err := s.db.QueryContext(ctx(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []core.RuleDependency
	for rows.Next() {
		var d core.RuleDependency
		var op string
		if err := rows.Scan(&d.RuleID, &d.Database, &d.Table, &d.Column, &op); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		d.Op = core.DependencyOp(op)
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
