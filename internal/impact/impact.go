// Package impact answers "what is downstream of this rule or table" before a
// rule is edited or deleted.
package impact

import (
	"slices"
	"strings"

	"github.com/leapstack-labs/leaprules/internal/dag"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/leapstack-labs/leaprules/pkg/sqlref"
)

// Result lists the rules and schedules affected by a change.
type Result struct {
	// ChildRules are the transitive descendants, excluding the starting rule.
	ChildRules []int64
	// Schedules reference at least one rule in ChildRules.
	Schedules []int64
	// Depth maps each descendant to its distance from the start.
	Depth map[int64]int
}

// Empty reports whether nothing is affected.
func (r Result) Empty() bool {
	return len(r.ChildRules) == 0 && len(r.Schedules) == 0
}

// buildGraph indexes rules by parent id once per call.
func buildGraph(rules []*core.Rule) *dag.Graph {
	g := dag.NewGraph()
	for _, r := range rules {
		if r != nil {
			g.AddNode(r.ID, r)
		}
	}
	for _, r := range rules {
		if r == nil {
			continue
		}
		if parent, ok := r.Parent(); ok && g.HasNode(parent) {
			// self-loops are rejected by the graph and simply ignored here
			_ = g.AddEdge(parent, r.ID, dag.EdgeParent)
		}
	}
	return g
}

// DownstreamOf returns every rule below ruleID in the parent hierarchy and the
// schedules referencing them. The walk keeps a visited set, so it terminates
// and excludes ruleID even when the parent links contain cycles.
func DownstreamOf(ruleID int64, rules []*core.Rule, schedules []core.Schedule) Result {
	return downstream(buildGraph(rules), []int64{ruleID}, schedules)
}

func downstream(g *dag.Graph, starts []int64, schedules []core.Schedule) Result {
	res := Result{Depth: make(map[int64]int)}
	exclude := make(map[int64]bool, len(starts))
	for _, s := range starts {
		exclude[s] = true
	}

	for _, s := range starts {
		g.Walk(s, dag.EdgeParent, func(id int64, depth int) bool {
			if exclude[id] {
				return true
			}
			if d, seen := res.Depth[id]; !seen || depth < d {
				res.Depth[id] = depth
			}
			return true
		})
	}

	for id := range res.Depth {
		res.ChildRules = append(res.ChildRules, id)
	}
	slices.Sort(res.ChildRules)
	res.Schedules = schedulesFor(res.Depth, schedules)
	return res
}

func schedulesFor(rules map[int64]int, schedules []core.Schedule) []int64 {
	var out []int64
	for _, s := range schedules {
		if _, ok := rules[s.RuleID]; ok && !slices.Contains(out, s.ID) {
			out = append(out, s.ID)
		}
	}
	slices.Sort(out)
	return out
}

// UpstreamOf returns the ancestors of ruleID in the parent hierarchy.
func UpstreamOf(ruleID int64, rules []*core.Rule) []int64 {
	return buildGraph(rules).Ancestors(ruleID, dag.EdgeParent)
}

// TableResult describes the rules touching a table and what lies below them.
type TableResult struct {
	// Readers and Writers are rules with a READ or WRITE dependency on the table.
	Readers []int64
	Writers []int64
	// Downstream covers descendants of readers and writers that do not
	// themselves touch the table.
	Downstream Result
}

// Rules returns readers and writers combined, in ascending order.
func (t TableResult) Rules() []int64 {
	out := slices.Concat(t.Readers, t.Writers)
	slices.Sort(out)
	return slices.Compact(out)
}

// TableImpact finds the rules whose persisted dependencies reference table and
// their downstream rules. table may be "name" or "schema.name"; an unqualified
// name matches any schema. Matching is case-insensitive. CTE markers never match.
func TableImpact(table string, deps []core.RuleDependency, rules []*core.Rule, schedules []core.Schedule) TableResult {
	schema, name := sqlref.SplitQualified(strings.TrimSpace(table))

	var res TableResult
	for _, d := range deps {
		if core.IsCTEName(d.Table) || !strings.EqualFold(d.Table, name) {
			continue
		}
		if schema != "" && !strings.EqualFold(d.Database, schema) {
			continue
		}
		switch d.Op {
		case core.DependencyWrite:
			if !slices.Contains(res.Writers, d.RuleID) {
				res.Writers = append(res.Writers, d.RuleID)
			}
		default:
			if !slices.Contains(res.Readers, d.RuleID) {
				res.Readers = append(res.Readers, d.RuleID)
			}
		}
	}
	slices.Sort(res.Readers)
	slices.Sort(res.Writers)

	res.Downstream = downstream(buildGraph(rules), res.Rules(), schedules)
	return res
}
