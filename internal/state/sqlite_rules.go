package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

const ruleColumns = `id, name, description, sql, parent_id, decision_table_id, status,
	critical, critical_scope, global, operation, owner, created_at, updated_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// CreateRule inserts a rule and assigns its ID and timestamps.
func (s *SQLiteStore) CreateRule(rule *core.Rule) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if err := s.createRule(s.db, rule); err != nil {
		return err
	}
	s.logger.Debug("created rule", slog.Int64("id", rule.ID), slog.String("name", rule.Name))
	return nil
}

// UpdateRule overwrites every mutable field of an existing rule.
func (s *SQLiteStore) UpdateRule(rule *core.Rule) error {
	if s.db == nil {
		return ErrNotOpen
	}
	return s.updateRule(s.db, rule)
}

// SaveRuleWithDependencies creates (ID 0) or updates a rule and replaces its
// dependencies in one transaction. On error nothing is written and the rule's
// ID and timestamps are left as they were.
func (s *SQLiteStore) SaveRuleWithDependencies(rule *core.Rule, deps []core.RuleDependency) error {
	if s.db == nil {
		return ErrNotOpen
	}

	id, created, updated := rule.ID, rule.CreatedAt, rule.UpdatedAt
	err := s.inTx(func(tx *sql.Tx) error {
		if rule.ID == 0 {
			if err := s.createRule(tx, rule); err != nil {
				return err
			}
		} else if err := s.updateRule(tx, rule); err != nil {
			return err
		}
		for i := range deps {
			deps[i].RuleID = rule.ID
		}
		return replaceDependencies(tx, rule.ID, deps)
	})
	if err != nil {
		rule.ID, rule.CreatedAt, rule.UpdatedAt = id, created, updated
		return err
	}

	s.logger.Debug("saved rule", slog.Int64("id", rule.ID), slog.String("name", rule.Name), slog.Int("dependencies", len(deps)))
	return nil
}

func (s *SQLiteStore) createRule(q execer, rule *core.Rule) error {
	now := s.timestamp()
	normaliseRule(rule)

	res, err := q.ExecContext(ctx(), `
		INSERT INTO rules (name, description, sql, parent_id, decision_table_id, status,
			critical, critical_scope, global, operation, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.Description, rule.SQL, nullableID(rule.ParentID), rule.DecisionTableID,
		string(rule.Status), boolToInt(rule.Critical), string(rule.CriticalScope), boolToInt(rule.Global),
		rule.Operation.String(), rule.Owner, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read rule id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) updateRule(q execer, rule *core.Rule) error {
	now := s.timestamp()
	normaliseRule(rule)

	res, err := q.ExecContext(ctx(), `
		UPDATE rules SET name = ?, description = ?, sql = ?, parent_id = ?, decision_table_id = ?,
			status = ?, critical = ?, critical_scope = ?, global = ?, operation = ?, owner = ?,
			updated_at = ?
		WHERE id = ?`,
		rule.Name, rule.Description, rule.SQL, nullableID(rule.ParentID), rule.DecisionTableID,
		string(rule.Status), boolToInt(rule.Critical), string(rule.CriticalScope), boolToInt(rule.Global),
		rule.Operation.String(), rule.Owner, formatTime(now), rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", rule.ID, ErrNotFound)
	}
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStore) GetRule(id int64) (*core.Rule, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	row := s.db.QueryRowContext(ctx(), `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns every rule ordered by ID.
func (s *SQLiteStore) ListRules() ([]*core.Rule, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx(), `SELECT `+ruleColumns+` FROM rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*core.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule together with its dependencies, links, conflicts
// and lock. Children keep their parent ID and are treated as roots.
func (s *SQLiteStore) DeleteRule(id int64) error {
	if s.db == nil {
		return ErrNotOpen
	}

	res, err := s.db.ExecContext(ctx(), `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted rule", slog.Int64("id", id))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*core.Rule, error) {
	var (
		r                    core.Rule
		parent               sql.NullInt64
		status, scope, op    string
		critical, global     int
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.SQL, &parent, &r.DecisionTableID, &status,
		&critical, &scope, &global, &op, &r.Owner, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		r.ParentID = core.ParentRef(parent.Int64)
	}
	r.Status = core.RuleStatus(status)
	r.CriticalScope = core.CriticalScope(scope)
	r.Critical = critical != 0
	r.Global = global != 0
	r.Operation = core.ParseOperationType(op)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func normaliseRule(rule *core.Rule) {
	if rule.Status == "" {
		rule.Status = core.RuleStatusDraft
	}
	if rule.CriticalScope == "" {
		rule.CriticalScope = core.CriticalScopeNone
	}
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
