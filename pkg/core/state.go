package core

import "time"

// Store defines the interface for state management operations.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Rule operations
	CreateRule(rule *Rule) error
	UpdateRule(rule *Rule) error
	GetRule(id int64) (*Rule, error)
	ListRules() ([]*Rule, error)
	DeleteRule(id int64) error

	// SaveRuleWithDependencies creates or updates a rule and replaces its
	// dependencies atomically.
	SaveRuleWithDependencies(rule *Rule, deps []RuleDependency) error

	// Dependency operations
	SetRuleDependencies(ruleID int64, deps []RuleDependency) error
	GetRuleDependencies(ruleID int64) ([]RuleDependency, error)
	ListDependencies() ([]RuleDependency, error)

	// Graph side tables
	AddConflict(c Conflict) error
	ListConflicts() ([]Conflict, error)
	AddGlobalCriticalLink(link GlobalCriticalLink) error
	ListGlobalCriticalLinks() ([]GlobalCriticalLink, error)

	// Schedule operations
	ScheduleSource
	CreateSchedule(s *Schedule) error

	// Run operations
	CreateRun(env string, dryRun bool) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	ListRuns(limit int) ([]*Run, error)
	RecordRuleRun(runID string, result *ExecutionResult) error
	GetRuleRunsForRun(runID string) ([]*ExecutionResult, error)

	// Audit operations
	AuditSink
	ListAudit(limit int) ([]*AuditEntry, error)

	// Lock operations
	LockRule(ruleID int64, lockedBy string, force bool) error
	UnlockRule(ruleID int64, lockedBy string, force bool) error
	GetLock(ruleID int64) (*RuleLock, error)
}

// ScheduleSource lists schedules for impact analysis.
type ScheduleSource interface {
	ListSchedules() ([]Schedule, error)
}

// AuditSink receives audit records for rule changes and runs.
type AuditSink interface {
	RecordAudit(entry *AuditEntry) error
}

// RunStatus represents the status of an execution run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one traversal of the rule graph.
type Run struct {
	ID          string
	Environment string
	DryRun      bool
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// RuleRunStatus is the per-rule state inside a single traversal.
type RuleRunStatus string

// Rule run states. PENDING is initial; PASSED, FAILED and SKIPPED are terminal.
const (
	RuleRunPending RuleRunStatus = "PENDING"
	RuleRunRunning RuleRunStatus = "RUNNING"
	RuleRunPassed  RuleRunStatus = "PASSED"
	RuleRunFailed  RuleRunStatus = "FAILED"
	RuleRunSkipped RuleRunStatus = "SKIPPED"
)

// Terminal reports whether no further transition is possible.
func (s RuleRunStatus) Terminal() bool {
	return s == RuleRunPassed || s == RuleRunFailed || s == RuleRunSkipped
}

// ExecutionResult is the outcome of running, or skipping, one rule.
type ExecutionResult struct {
	RuleID      int64
	RuleName    string
	Status      RuleRunStatus
	Passed      bool
	Message     string
	RecordCount int64
	Elapsed     time.Duration
	// SkippedBy is the failed critical ancestor for SKIPPED results.
	SkippedBy int64
}

// AuditEntry is a single audit log record. Old and New hold JSON documents.
type AuditEntry struct {
	ID        string
	Action    string
	Entity    string
	RecordID  string
	Actor     string
	Old       string
	New       string
	Timestamp time.Time
}

// RuleLock records who is editing a rule.
type RuleLock struct {
	RuleID   int64
	LockedBy string
	LockedAt time.Time
}
