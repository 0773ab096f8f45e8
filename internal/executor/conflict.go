package executor

import (
	"cmp"
	"slices"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// ConflictReport pairs the outcomes of two conflicting rules that both ran.
type ConflictReport struct {
	Conflict core.Conflict
	A        *core.ExecutionResult
	B        *core.ExecutionResult
}

// Contradictory reports whether the two rules disagreed.
func (c ConflictReport) Contradictory() bool {
	return c.A.Passed != c.B.Passed
}

// Winner returns the result whose outcome stands. A positive priority favours
// RuleA, a negative one RuleB; zero falls back to the lower rule id.
func (c ConflictReport) Winner() *core.ExecutionResult {
	switch {
	case c.Conflict.Priority > 0:
		return c.A
	case c.Conflict.Priority < 0:
		return c.B
	case c.A.RuleID <= c.B.RuleID:
		return c.A
	default:
		return c.B
	}
}

// DetectConflicts returns a report for every conflict whose rules were both
// executed. Skipped rules do not take part. Reports are ordered by priority,
// highest first, then by rule ids. Outcomes are never modified.
func DetectConflicts(results []*core.ExecutionResult, conflicts []core.Conflict) []ConflictReport {
	ran := make(map[int64]*core.ExecutionResult, len(results))
	for _, res := range results {
		if res != nil && res.Status != core.RuleRunSkipped {
			ran[res.RuleID] = res
		}
	}

	var out []ConflictReport
	for _, c := range conflicts {
		a, okA := ran[c.RuleA]
		b, okB := ran[c.RuleB]
		if !okA || !okB || c.RuleA == c.RuleB {
			continue
		}
		out = append(out, ConflictReport{Conflict: c, A: a, B: b})
	}

	slices.SortStableFunc(out, func(x, y ConflictReport) int {
		return cmp.Or(
			cmp.Compare(y.Conflict.Priority, x.Conflict.Priority),
			cmp.Compare(x.Conflict.RuleA, y.Conflict.RuleA),
			cmp.Compare(x.Conflict.RuleB, y.Conflict.RuleB),
		)
	})
	return out
}
