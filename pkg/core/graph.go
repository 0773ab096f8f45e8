package core

import "time"

// Conflict is an unordered pair of rules that must not both produce contradictory
// outcomes. Priority is applied by reporting code after a run.
type Conflict struct {
	RuleA    int64
	RuleB    int64
	Priority int
}

// Involves reports whether the conflict references the rule.
func (c Conflict) Involves(id int64) bool {
	return c.RuleA == id || c.RuleB == id
}

// GlobalCriticalLink is an out-of-band child edge from a global critical rule to a
// target rule, consulted only for skip propagation.
type GlobalCriticalLink struct {
	SourceID int64
	TargetID int64
}

// ScheduleStatus is the state of a scheduled execution.
type ScheduleStatus string

// Schedule status constants.
const (
	ScheduleScheduled ScheduleStatus = "Scheduled"
	ScheduleExecuted  ScheduleStatus = "Executed"
	ScheduleFailed    ScheduleStatus = "Failed"
	ScheduleCancelled ScheduleStatus = "Cancelled"
)

// Schedule is a planned execution of a rule.
type Schedule struct {
	ID     int64
	RuleID int64
	RunAt  time.Time
	Status ScheduleStatus
}
