package executor

import (
	"errors"
	"fmt"
)

// ErrCycleDetected flags rule graphs whose parent or critical links loop back.
// It is only logged; the visited set keeps every walk finite.
var ErrCycleDetected = errors.New("cycle detected in rule graph")

var errNoResult = errors.New("run returned no result")

// ExecutionError wraps a failure raised while running a rule.
type ExecutionError struct {
	RuleID int64
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rule %d execution error: %v", e.RuleID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
