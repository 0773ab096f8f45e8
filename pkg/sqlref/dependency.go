package sqlref

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

// Dependencies extracts sql and converts the result into dependency rows for a rule.
func Dependencies(ruleID int64, sql string) ([]core.RuleDependency, error) {
	res, err := Extract(sql)
	if err != nil {
		return nil, err
	}
	return res.Dependencies(ruleID), nil
}

// Dependencies converts the parse result into dependency rows.
//
// Each real table gets one row per column attributed to it; a table with no
// attributed column gets a single placeholder row. The write target of an
// INSERT, UPDATE or DELETE is WRITE, every other table is READ. CTE names are
// never reported; the tables inside CTE bodies are.
func (r *ParseResult) Dependencies(ruleID int64) []core.RuleDependency {
	b := &depBuilder{
		ruleID:  ruleID,
		seen:    make(map[core.RuleDependency]bool),
		covered: make(map[coverKey]bool),
	}

	var target *QualifiedName
	if r.Target != nil && !r.Target.IsCTE() {
		t := r.Target.Qualified()
		target = &t
	}

	if target != nil && r.Operation.IsWrite() {
		for _, col := range r.Columns {
			_, name := SplitQualified(col)
			b.add(*target, name, core.DependencyWrite)
		}
	}

	for _, ref := range r.ColumnRefs {
		if tbl, ok := r.resolveColumn(ref, target); ok {
			b.add(tbl, ref.Name, core.DependencyRead)
		}
	}

	for _, q := range r.realTables() {
		op := core.DependencyRead
		if target != nil && q == *target {
			op = core.DependencyWrite
		}
		if !b.covered[coverKey{q, op}] {
			b.add(q, core.ColumnPlaceholder, op)
		}
	}

	slices.SortFunc(b.rows, func(a, c core.RuleDependency) int {
		return cmp.Or(
			cmp.Compare(a.Database, c.Database),
			cmp.Compare(a.Table, c.Table),
			cmp.Compare(a.Op, c.Op),
			cmp.Compare(a.Column, c.Column),
		)
	})
	return b.rows
}

// realTables returns every non-CTE table in the statement and its CTE bodies,
// de-duplicated, in order of appearance.
func (r *ParseResult) realTables() []QualifiedName {
	seen := make(map[QualifiedName]bool)
	var out []QualifiedName
	collect := func(refs []TableRef) {
		for _, t := range refs {
			q := t.Qualified()
			if t.IsCTE() || seen[q] {
				continue
			}
			seen[q] = true
			out = append(out, q)
		}
	}
	collect(r.Tables)
	for _, name := range r.CTEOrder {
		collect(r.CTEs[name])
	}
	return out
}

// resolveColumn attributes a select-list column to a real table. Qualified
// columns resolve through the alias map, then by table name. Unqualified
// columns resolve only when a single top-level source table exists.
func (r *ParseResult) resolveColumn(ref ColumnRef, target *QualifiedName) (QualifiedName, bool) {
	if ref.Qualifier != "" {
		if q, ok := r.Aliases[ref.Qualifier]; ok {
			return q, !core.IsCTEName(q.Name)
		}
		for _, t := range r.Tables {
			if !t.InSubquery && !t.IsCTE() && strings.EqualFold(t.Name, ref.Qualifier) {
				return t.Qualified(), true
			}
		}
		return QualifiedName{}, false
	}

	if ref.Name == core.ColumnPlaceholder {
		return QualifiedName{}, false
	}

	var only *TableRef
	seen := make(map[QualifiedName]bool)
	for i, t := range r.Tables {
		q := t.Qualified()
		if t.InSubquery || seen[q] || (target != nil && q == *target) {
			continue
		}
		seen[q] = true
		if only != nil {
			return QualifiedName{}, false
		}
		only = &r.Tables[i]
	}
	if only == nil || only.IsCTE() {
		return QualifiedName{}, false
	}
	return only.Qualified(), true
}

type coverKey struct {
	table QualifiedName
	op    core.DependencyOp
}

type depBuilder struct {
	ruleID  int64
	rows    []core.RuleDependency
	seen    map[core.RuleDependency]bool
	covered map[coverKey]bool
}

func (b *depBuilder) add(table QualifiedName, column string, op core.DependencyOp) {
	if column == "" {
		column = core.ColumnPlaceholder
	}
	dep := core.RuleDependency{
		RuleID:   b.ruleID,
		Database: table.Schema,
		Table:    table.Name,
		Column:   column,
		Op:       op,
	}
	if b.seen[dep] {
		return
	}
	b.seen[dep] = true
	b.covered[coverKey{table, op}] = true
	b.rows = append(b.rows, dep)
}

// BatchResult holds per-rule extraction outcomes. A rule appears in exactly
// one of Dependencies or Errors; rules with a blank body appear in neither.
type BatchResult struct {
	Dependencies map[int64][]core.RuleDependency
	Operations   map[int64]core.OperationType
	Errors       map[int64]error
}

// ExtractBatch extracts dependencies for many rules. A parse error is
// recorded against its rule and never stops the batch.
func ExtractBatch(items map[int64]string) BatchResult {
	res := BatchResult{
		Dependencies: make(map[int64][]core.RuleDependency),
		Operations:   make(map[int64]core.OperationType),
		Errors:       make(map[int64]error),
	}
	for _, id := range sortedIDs(items) {
		sql := items[id]
		if strings.TrimSpace(sql) == "" {
			continue
		}
		parsed, err := Extract(sql)
		if err != nil {
			res.Errors[id] = err
			continue
		}
		res.Operations[id] = parsed.Operation
		res.Dependencies[id] = parsed.Dependencies(id)
	}
	return res
}

// Err joins the batch errors in rule id order, or returns nil.
func (b BatchResult) Err() error {
	if len(b.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(b.Errors))
	for _, id := range sortedIDs(b.Errors) {
		errs = append(errs, fmt.Errorf("rule %d: %w", id, b.Errors[id]))
	}
	return errors.Join(errs...)
}

func sortedIDs[V any](m map[int64]V) []int64 {
	return slices.Sorted(maps.Keys(m))
}
