package state

import (
	"fmt"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// RecordAudit appends an audit entry, filling in its ID and timestamp when unset.
func (s *SQLiteStore) RecordAudit(entry *core.AuditEntry) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if entry.ID == "" {
		entry.ID = generateID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.timestamp()
	}

	_, err := s.db.ExecContext(ctx(), `
		INSERT INTO audit_log (id, action, entity, record_id, actor, old_value, new_value, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.Entity, entry.RecordID, entry.Actor, entry.Old, entry.New,
		formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries first. A non-positive limit returns all.
func (s *SQLiteStore) ListAudit(limit int) ([]*core.AuditEntry, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx(), `
		SELECT id, action, entity, record_id, actor, old_value, new_value, ts
		FROM audit_log ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.AuditEntry
	for rows.Next() {
		var (
			e  core.AuditEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.RecordID, &e.Actor, &e.Old, &e.New, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
