package commands

import (
	"strconv"
	"time"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// JSON shapes for --output json. They keep field names stable regardless of
// how the core types evolve.

type ruleView struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	SQL           string    `json:"sql,omitempty"`
	ParentID      *int64    `json:"parent_id,omitempty"`
	DecisionTable string    `json:"decision_table,omitempty"`
	Status        string    `json:"status"`
	Critical      bool      `json:"critical"`
	CriticalScope string    `json:"critical_scope"`
	Global        bool      `json:"global"`
	Operation     string    `json:"operation"`
	Owner         string    `json:"owner,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRuleView(r *core.Rule) ruleView {
	return ruleView{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		SQL:           r.SQL,
		ParentID:      r.ParentID,
		DecisionTable: r.DecisionTableID,
		Status:        string(r.Status),
		Critical:      r.Critical,
		CriticalScope: string(r.CriticalScope),
		Global:        r.Global,
		Operation:     r.Operation.String(),
		Owner:         r.Owner,
		UpdatedAt:     r.UpdatedAt,
	}
}

type resultView struct {
	RuleID      int64  `json:"rule_id"`
	RuleName    string `json:"rule_name"`
	Status      string `json:"status"`
	Passed      bool   `json:"passed"`
	Message     string `json:"message,omitempty"`
	RecordCount int64  `json:"record_count"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	SkippedBy   int64  `json:"skipped_by,omitempty"`
}

func toResultView(r *core.ExecutionResult) resultView {
	return resultView{
		RuleID:      r.RuleID,
		RuleName:    r.RuleName,
		Status:      string(r.Status),
		Passed:      r.Passed,
		Message:     r.Message,
		RecordCount: r.RecordCount,
		ElapsedMS:   r.Elapsed.Milliseconds(),
		SkippedBy:   r.SkippedBy,
	}
}

type runView struct {
	ID          string       `json:"id"`
	Environment string       `json:"environment"`
	DryRun      bool         `json:"dry_run"`
	Status      string       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	Results     []resultView `json:"results,omitempty"`
}

func toRunView(run *core.Run, results []*core.ExecutionResult) runView {
	v := runView{
		ID:          run.ID,
		Environment: run.Environment,
		DryRun:      run.DryRun,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
	for _, r := range results {
		v.Results = append(v.Results, toResultView(r))
	}
	return v
}

type dependencyView struct {
	Database string `json:"database,omitempty"`
	Table    string `json:"table"`
	Column   string `json:"column"`
	Op       string `json:"op"`
}

func toDependencyViews(deps []core.RuleDependency) []dependencyView {
	out := make([]dependencyView, 0, len(deps))
	for _, d := range deps {
		out = append(out, dependencyView{Database: d.Database, Table: d.Table, Column: d.Column, Op: string(d.Op)})
	}
	return out
}

// resultRows renders execution results as table rows.
func resultRows(results []*core.ExecutionResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			strconv.FormatInt(r.RuleID, 10),
			r.RuleName,
			string(r.Status),
			strconv.FormatInt(r.RecordCount, 10),
			r.Elapsed.Round(time.Millisecond).String(),
			r.Message,
		})
	}
	return rows
}

var resultHeader = []string{"ID", "Rule", "Status", "Records", "Elapsed", "Message"}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
