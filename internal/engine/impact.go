package engine

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/leapstack-labs/leaprules/internal/executor"
	"github.com/leapstack-labs/leaprules/internal/impact"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

// Impact returns the rules and schedules below a rule.
func (e *Engine) Impact(id int64) (impact.Result, error) {
	if _, err := e.store.GetRule(id); err != nil {
		return impact.Result{}, err
	}
	rules, err := e.store.ListRules()
	if err != nil {
		return impact.Result{}, err
	}
	schedules, err := e.store.ListSchedules()
	if err != nil {
		return impact.Result{}, err
	}
	return impact.DownstreamOf(id, rules, schedules), nil
}

// Upstream returns the ancestors of a rule.
func (e *Engine) Upstream(id int64) ([]int64, error) {
	rules, err := e.store.ListRules()
	if err != nil {
		return nil, err
	}
	return impact.UpstreamOf(id, rules), nil
}

// TableImpact returns the rules that read or write table and everything
// below them.
func (e *Engine) TableImpact(table string) (impact.TableResult, error) {
	deps, err := e.store.ListDependencies()
	if err != nil {
		return impact.TableResult{}, err
	}
	rules, err := e.store.ListRules()
	if err != nil {
		return impact.TableResult{}, err
	}
	schedules, err := e.store.ListSchedules()
	if err != nil {
		return impact.TableResult{}, err
	}
	return impact.TableImpact(table, deps, rules, schedules), nil
}

// Conflicts reports the configured conflicts whose rules both ran in runID.
func (e *Engine) Conflicts(runID string) ([]executor.ConflictReport, error) {
	if _, err := e.store.GetRun(runID); err != nil {
		return nil, err
	}
	results, err := e.store.GetRuleRunsForRun(runID)
	if err != nil {
		return nil, err
	}
	conflicts, err := e.store.ListConflicts()
	if err != nil {
		return nil, err
	}
	return executor.DetectConflicts(results, conflicts), nil
}

// AddConflict declares two rules as conflicting.
func (e *Engine) AddConflict(c core.Conflict, actor string) error {
	if err := e.store.AddConflict(c); err != nil {
		return err
	}
	e.audit(ActionCreate, "conflict", "", actor, nil, c)
	return nil
}

// AddGlobalCriticalLink links a global critical rule to a target rule.
// Only admins may add links.
func (e *Engine) AddGlobalCriticalLink(link core.GlobalCriticalLink, actor string) error {
	if !e.isAdmin(actor) {
		return ErrAdminRequired
	}
	src, err := e.store.GetRule(link.SourceID)
	if err != nil {
		return err
	}
	if !src.Global || !src.Critical {
		return &ValidationError{Field: "source_id", Message: "must be a global critical rule"}
	}
	if _, err := e.store.GetRule(link.TargetID); err != nil {
		return err
	}
	if err := e.store.AddGlobalCriticalLink(link); err != nil {
		return err
	}
	e.audit(ActionCreate, "global_critical_link", "", actor, nil, link)
	return nil
}

// Dependencies returns the stored dependencies of one rule, ordered by table.
func (e *Engine) Dependencies(id int64) ([]core.RuleDependency, error) {
	deps, err := e.store.GetRuleDependencies(id)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(deps, func(a, b core.RuleDependency) int {
		return cmp.Or(
			cmp.Compare(a.QualifiedTable(), b.QualifiedTable()),
			cmp.Compare(a.Column, b.Column),
		)
	})
	return deps, nil
}

// ScheduleRule plans an execution of a rule. Schedules are reported by impact
// analysis when a rule above them changes.
func (e *Engine) ScheduleRule(id int64, at time.Time, actor string) (*core.Schedule, error) {
	if _, err := e.store.GetRule(id); err != nil {
		return nil, err
	}
	sch := &core.Schedule{RuleID: id, RunAt: at, Status: core.ScheduleScheduled}
	if err := e.store.CreateSchedule(sch); err != nil {
		return nil, err
	}
	e.audit(ActionCreate, "schedule", strconv.FormatInt(sch.ID, 10), actor, nil, map[string]any{
		"rule_id": id,
		"run_at":  at.UTC().Format(time.RFC3339),
	})
	return sch, nil
}

// Schedules lists every planned execution.
func (e *Engine) Schedules() ([]core.Schedule, error) {
	return e.store.ListSchedules()
}
