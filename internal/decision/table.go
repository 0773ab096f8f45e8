// Package decision evaluates decision-table rules.
//
// A decision table is a YAML document with an ordered list of CEL conditions.
// Each condition sees the current fact row as `row` and the table parameters
// as `params`. Facts come from the table's optional source query; a table
// without one is evaluated once against an empty row.
//
//	id: credit_limits
//	hit_policy: FIRST
//	source: SELECT id, amount, tier FROM orders
//	params:
//	  limit: 1000
//	rules:
//	  - when: row.amount > params.limit && row.tier != "gold"
//	    pass: false
//	    message: order exceeds credit limit
//	  - when: "true"
//	    pass: true
package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// HitPolicy decides how several matching rules combine into one outcome.
type HitPolicy string

// Supported hit policies.
const (
	// HitPolicyFirst uses the first matching rule.
	HitPolicyFirst HitPolicy = "FIRST"
	// HitPolicyUnique requires at most one matching rule.
	HitPolicyUnique HitPolicy = "UNIQUE"
	// HitPolicyAny allows several matches as long as they agree.
	HitPolicyAny HitPolicy = "ANY"
	// HitPolicyCollect fails the row when any matching rule fails.
	HitPolicyCollect HitPolicy = "COLLECT"
)

// ParseHitPolicy converts a string to a HitPolicy. Empty input maps to FIRST.
func ParseHitPolicy(s string) (HitPolicy, error) {
	switch p := HitPolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return HitPolicyFirst, nil
	case HitPolicyFirst, HitPolicyUnique, HitPolicyAny, HitPolicyCollect:
		return p, nil
	}
	return "", fmt.Errorf("unknown hit policy %q", s)
}

// Table is a decision table definition.
type Table struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	HitPolicy HitPolicy      `yaml:"hit_policy"`
	Source    string         `yaml:"source"`
	Params    map[string]any `yaml:"params"`
	Rules     []Rule         `yaml:"rules"`

	// Path is the file the table was loaded from, if any.
	Path string `yaml:"-"`

	programs []cel.Program
}

// Rule is one row of a decision table.
type Rule struct {
	When    string `yaml:"when"`
	Pass    bool   `yaml:"pass"`
	Message string `yaml:"message"`
}

// Outcome is the result of evaluating a decision table.
type Outcome struct {
	Passed bool
	// Message describes the first failure, or the overall pass.
	Message string
	// RecordCount is the number of fact rows that failed.
	RecordCount int64
	// Rows is the number of fact rows evaluated.
	Rows int
}

// Evaluator evaluates decision tables by id.
type Evaluator interface {
	Evaluate(ctx context.Context, tableID string) (*Outcome, error)
}

// RowSource runs a table's source query and returns one fact map per row.
type RowSource func(ctx context.Context, query string) ([]map[string]any, error)

// validate normalises defaults and checks the definition.
func (t *Table) validate() error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return fmt.Errorf("decision table has no id")
	}
	policy, err := ParseHitPolicy(string(t.HitPolicy))
	if err != nil {
		return fmt.Errorf("decision table %s: %w", t.ID, err)
	}
	t.HitPolicy = policy
	if len(t.Rules) == 0 {
		return fmt.Errorf("decision table %s: no rules", t.ID)
	}
	for i, r := range t.Rules {
		if strings.TrimSpace(r.When) == "" {
			return fmt.Errorf("decision table %s: rule %d has no condition", t.ID, i+1)
		}
	}
	return nil
}
