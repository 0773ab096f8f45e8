package state

import (
	"fmt"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// AddConflict records a conflicting pair. The pair is stored with the lower ID
// first so (a, b) and (b, a) are the same conflict; swapping the pair negates
// the priority so it keeps favouring the same rule. Re-adding updates priority.
func (s *SQLiteStore) AddConflict(c core.Conflict) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if c.RuleA == c.RuleB {
		return fmt.Errorf("rule %d cannot conflict with itself", c.RuleA)
	}
	a, b, priority := c.RuleA, c.RuleB, c.Priority
	if a > b {
		a, b, priority = b, a, -priority
	}

	_, err := s.db.ExecContext(ctx(), `
		INSERT INTO conflicts (rule_a, rule_b, priority) VALUES (?, ?, ?)
		ON CONFLICT (rule_a, rule_b) DO UPDATE SET priority = excluded.priority`,
		a, b, priority)
	if err != nil {
		return fmt.Errorf("failed to add conflict: %w", err)
	}
	return nil
}

// ListConflicts returns all conflicts.
func (s *SQLiteStore) ListConflicts() ([]core.Conflict, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx(), `SELECT rule_a, rule_b, priority FROM conflicts ORDER BY rule_a, rule_b`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Conflict
	for rows.Next() {
		var c core.Conflict
		if err := rows.Scan(&c.RuleA, &c.RuleB, &c.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddGlobalCriticalLink records a skip-propagation edge. Duplicates are ignored.
func (s *SQLiteStore) AddGlobalCriticalLink(link core.GlobalCriticalLink) error {
	if s.db == nil {
		return ErrNotOpen
	}

	_, err := s.db.ExecContext(ctx(), `
		INSERT INTO global_critical_links (source_id, target_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`, link.SourceID, link.TargetID)
	if err != nil {
		return fmt.Errorf("failed to add global critical link: %w", err)
	}
	return nil
}

// ListGlobalCriticalLinks returns all links.
func (s *SQLiteStore) ListGlobalCriticalLinks() ([]core.GlobalCriticalLink, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx(), `SELECT source_id, target_id FROM global_critical_links ORDER BY source_id, target_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list global critical links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.GlobalCriticalLink
	for rows.Next() {
		var l core.GlobalCriticalLink
		if err := rows.Scan(&l.SourceID, &l.TargetID); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateSchedule stores a planned execution and assigns its ID.
func (s *SQLiteStore) CreateSchedule(sch *core.Schedule) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if sch.Status == "" {
		sch.Status = core.ScheduleScheduled
	}

	res, err := s.db.ExecContext(ctx(), `INSERT INTO schedules (rule_id, run_at, status) VALUES (?, ?, ?)`,
		sch.RuleID, formatTime(sch.RunAt), string(sch.Status))
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read schedule id: %w", err)
	}
	sch.ID = id
	return nil
}

// ListSchedules returns all schedules ordered by run time.
func (s *SQLiteStore) ListSchedules() ([]core.Schedule, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx(), `SELECT id, rule_id, run_at, status FROM schedules ORDER BY run_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Schedule
	for rows.Next() {
		var (
			sch    core.Schedule
			runAt  string
			status string
		)
		if err := rows.Scan(&sch.ID, &sch.RuleID, &runAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if sch.RunAt, err = parseTime(runAt); err != nil {
			return nil, err
		}
		sch.Status = core.ScheduleStatus(status)
		out = append(out, sch)
	}
	return out, rows.Err()
}
