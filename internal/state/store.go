// Package state persists rules, their extracted dependencies, graph side
// tables, run history, the audit log and edit locks in SQLite.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// DefaultLockTimeout is how long a rule lock is honoured before it expires.
const DefaultLockTimeout = 30 * time.Minute

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotOpen is returned when the store is used before Open.
var ErrNotOpen = errors.New("database not opened")

// LockedError is returned when a rule is locked by someone else.
type LockedError struct {
	RuleID   int64
	LockedBy string
	LockedAt time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("rule %d is locked by %s since %s", e.RuleID, e.LockedBy, e.LockedAt.Format(time.RFC3339))
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLockTimeout sets how long locks are honoured. Non-positive values keep the default.
func WithLockTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// Ensure SQLiteStore implements core.Store
var _ core.Store = (*SQLiteStore)(nil)
