package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leaprules/internal/executor"
	"github.com/leapstack-labs/leaprules/internal/impact"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

// RunOptions controls a rule run.
type RunOptions struct {
	// DryRun rolls back every statement. Decision tables are read-only and
	// unaffected.
	DryRun bool
	// RuleIDs limits the run to these rules and their descendants.
	RuleIDs []int64
	// Actor is recorded in the audit log.
	Actor string
}

// RunResult is the outcome of Run.
type RunResult struct {
	Run       *core.Run
	Report    *executor.Report
	Conflicts []executor.ConflictReport
}

// Run executes the runnable rule forest against the target database and
// records the run. On cancellation the partial result is returned together
// with the context error.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	all, err := e.store.ListRules()
	if err != nil {
		return nil, err
	}
	rules := selectRules(all, opts.RuleIDs)

	links, err := e.store.ListGlobalCriticalLinks()
	if err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(e.environment, opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	logger := e.logger.With("run_id", run.ID)
	logger.Info("starting run", "rules", len(rules), "dry_run", opts.DryRun, "environment", e.environment)

	runOne := func(ctx context.Context, rule *core.Rule) (*core.ExecutionResult, error) {
		return e.runOne(ctx, rule, opts.DryRun)
	}
	report, runErr := executor.RunAll(ctx, rules, links, runOne, executor.WithLogger(logger))

	for _, res := range slices.Concat(report.Results, report.Skipped) {
		if err := e.store.RecordRuleRun(run.ID, res); err != nil {
			logger.Warn("failed to record rule run", "rule_id", res.RuleID, "error", err)
		}
	}

	conflicts, err := e.store.ListConflicts()
	if err != nil {
		logger.Warn("failed to list conflicts", "error", err)
	}
	reports := executor.DetectConflicts(report.Results, conflicts)
	for _, c := range reports {
		if c.Contradictory() {
			logger.Warn("conflicting rule outcomes",
				"rule_a", c.Conflict.RuleA,
				"rule_b", c.Conflict.RuleB,
				"priority", c.Conflict.Priority,
				"winner", c.Winner().RuleID,
			)
		}
	}

	status, errMsg := core.RunStatusCompleted, ""
	switch {
	case report.Cancelled:
		status = core.RunStatusCancelled
		if runErr != nil {
			errMsg = runErr.Error()
		}
	case runErr != nil:
		status, errMsg = core.RunStatusFailed, runErr.Error()
	}
	if err := e.store.CompleteRun(run.ID, status, errMsg); err != nil {
		logger.Warn("failed to complete run", "error", err)
	}
	if updated, err := e.store.GetRun(run.ID); err == nil {
		run = updated
	}

	passed, failed, skipped := report.Counts()
	logger.Info("run finished", "status", string(status), "passed", passed, "failed", failed, "skipped", skipped)
	e.audit(ActionRun, "run", run.ID, opts.Actor, nil, map[string]any{
		"environment": e.environment,
		"dry_run":     opts.DryRun,
		"status":      string(status),
		"passed":      passed,
		"failed":      failed,
		"skipped":     skipped,
	})

	return &RunResult{Run: run, Report: report, Conflicts: reports}, runErr
}

// runOne executes a single rule. A SELECT rule lists violations, so it passes
// when it returns no rows; other statements pass when they execute.
func (e *Engine) runOne(ctx context.Context, rule *core.Rule, dryRun bool) (*core.ExecutionResult, error) {
	var res *core.ExecutionResult
	if rule.DecisionTableID != "" {
		out, err := e.decisions.Evaluate(ctx, rule.DecisionTableID)
		if err != nil {
			return nil, err
		}
		res = &core.ExecutionResult{Passed: out.Passed, Message: out.Message, RecordCount: out.RecordCount}
	} else {
		db, err := e.DB(ctx)
		if err != nil {
			return nil, err
		}
		stmt, err := db.ExecuteRule(ctx, rule.SQL, dryRun)
		if err != nil {
			return nil, err
		}
		res = &core.ExecutionResult{RecordCount: stmt.Rows}
		switch {
		case !stmt.ReturnsRows:
			res.Passed = true
			res.Message = fmt.Sprintf("%d rows affected", stmt.Rows)
		case stmt.Rows == 0:
			res.Passed = true
			res.Message = "no violations"
		default:
			res.Message = fmt.Sprintf("%d violating records", stmt.Rows)
		}
	}

	e.logger.Info("simulation result",
		"rule", rule.Name,
		"record_count", res.RecordCount,
		"success", res.Passed,
		"message", res.Message,
	)
	return res, nil
}

// selectRules keeps runnable rules, narrowed to ids and their descendants
// when ids is non-empty.
func selectRules(all []*core.Rule, ids []int64) []*core.Rule {
	keep := make(map[int64]bool)
	if len(ids) > 0 {
		for _, id := range ids {
			keep[id] = true
			for _, child := range impact.DownstreamOf(id, all, nil).ChildRules {
				keep[child] = true
			}
		}
	}

	out := make([]*core.Rule, 0, len(all))
	for _, r := range all {
		if !r.Status.Runnable() {
			continue
		}
		if len(ids) > 0 && !keep[r.ID] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RunHistory returns the most recent runs, newest first.
func (e *Engine) RunHistory(limit int) ([]*core.Run, error) {
	return e.store.ListRuns(limit)
}

// RunDetail returns a run and its per-rule results.
func (e *Engine) RunDetail(id string) (*core.Run, []*core.ExecutionResult, error) {
	run, err := e.store.GetRun(id)
	if err != nil {
		return nil, nil, err
	}
	results, err := e.store.GetRuleRunsForRun(id)
	if err != nil {
		return nil, nil, err
	}
	return run, results, nil
}

// IsCancelled reports whether err ended a run early.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// AuditLog returns the most recent audit entries, newest first.
func (e *Engine) AuditLog(limit int) ([]*core.AuditEntry, error) {
	return e.store.ListAudit(limit)
}
