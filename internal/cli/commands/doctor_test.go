package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/internal/cli/testutil"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name      string
		checks    []HealthCheck
		ruleCount int
		minScore  int
		maxScore  int
	}{
		{
			name:      "no checks returns 100",
			checks:    nil,
			ruleCount: 10,
			minScore:  100,
			maxScore:  100,
		},
		{
			name: "all passing returns 100",
			checks: []HealthCheck{
				{CheckID: "GR01", Status: "pass", IssueCount: 0},
				{CheckID: "GR02", Status: "pass", IssueCount: 0},
			},
			ruleCount: 10,
			minScore:  100,
			maxScore:  100,
		},
		{
			name: "warnings reduce score",
			checks: []HealthCheck{
				{CheckID: "GR01", Status: "pass", IssueCount: 0},
				{CheckID: "GR02", Status: "warn", IssueCount: 2},
			},
			ruleCount: 10,
			minScore:  80,
			maxScore:  100,
		},
		{
			name: "errors reduce score more",
			checks: []HealthCheck{
				{CheckID: "RU01", Status: "error", IssueCount: 2},
			},
			ruleCount: 10,
			minScore:  70,
			maxScore:  95,
		},
		{
			name: "more rules means less impact per issue",
			checks: []HealthCheck{
				{CheckID: "RU03", Status: "warn", IssueCount: 5},
			},
			ruleCount: 100,
			minScore:  90,
			maxScore:  100,
		},
		{
			name: "many issues can reduce to 0",
			checks: []HealthCheck{
				{CheckID: "RU01", Status: "error", IssueCount: 20},
				{CheckID: "RU02", Status: "error", IssueCount: 20},
			},
			ruleCount: 5,
			minScore:  0,
			maxScore:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calculateHealthScore(tt.checks, tt.ruleCount)
			assert.GreaterOrEqual(t, score, tt.minScore, "score should be >= %d", tt.minScore)
			assert.LessOrEqual(t, score, tt.maxScore, "score should be <= %d", tt.maxScore)
		})
	}
}

func TestGenerateRecommendations(t *testing.T) {
	t.Run("passing checks yield nothing", func(t *testing.T) {
		recs := generateRecommendations([]HealthCheck{{CheckID: "GR01", Status: "pass"}})
		assert.Empty(t, recs)
	})

	t.Run("one recommendation per failing check", func(t *testing.T) {
		recs := generateRecommendations([]HealthCheck{
			{CheckID: "GR01", Status: "error", IssueCount: 1},
			{CheckID: "RU01", Status: "error", IssueCount: 3},
		})
		require.Len(t, recs, 2)
		assert.Contains(t, recs[0], "parent cycles")
		assert.Contains(t, recs[1], "deps refresh")
	})

	t.Run("capped at five", func(t *testing.T) {
		var checks []HealthCheck
		for _, id := range []string{"ST01", "ST02", "GR01", "GR02", "GR03", "GR04", "RU01"} {
			checks = append(checks, HealthCheck{CheckID: id, Status: "warn", IssueCount: 1})
		}
		assert.Len(t, generateRecommendations(checks), 5)
	})

	t.Run("unknown check", func(t *testing.T) {
		assert.Empty(t, getRecommendation("XX99"))
	})
}

func findCheck(t *testing.T, out *DoctorOutput, id string) HealthCheck {
	t.Helper()
	for _, c := range out.HealthChecks {
		if c.CheckID == id {
			return c
		}
	}
	t.Fatalf("check %s not found", id)
	return HealthCheck{}
}

func TestDiagnose_Healthy(t *testing.T) {
	in := doctorInput{
		Rules: []*core.Rule{
			{ID: 1, Name: "orders exist", SQL: "SELECT id FROM orders", Critical: true, Global: true, CriticalScope: core.CriticalScopeGlobal},
			{ID: 2, Name: "negative amounts", SQL: "SELECT id FROM orders WHERE amount < 0", ParentID: core.ParentRef(1)},
			{ID: 3, Name: "credit limits", DecisionTableID: "credit_limits", ParentID: core.ParentRef(2)},
			{ID: 4, Name: "gold only", SQL: "SELECT id FROM customers WHERE tier = 'gold'"},
		},
		Conflicts:     []core.Conflict{{RuleA: 2, RuleB: 4, Priority: 1}},
		Links:         []core.GlobalCriticalLink{{SourceID: 1, TargetID: 4}},
		Decisions:     []string{"credit_limits"},
		SchemaVersion: 3,
	}

	out := diagnose(in)

	assert.Equal(t, 100, out.Score)
	assert.Zero(t, out.IssueCount)
	assert.Empty(t, out.Recommendations)
	assert.Equal(t, ProjectSummary{
		Rules:          4,
		Roots:          2,
		Depth:          3,
		DecisionTables: 1,
		Conflicts:      1,
		CriticalLinks:  1,
		SchemaVersion:  3,
	}, out.Summary)

	var groups []string
	for _, c := range out.HealthChecks {
		assert.Equal(t, "pass", c.Status, c.CheckID)
		if len(groups) == 0 || groups[len(groups)-1] != c.Group {
			groups = append(groups, c.Group)
		}
	}
	assert.Equal(t, []string{"storage", "graph", "rules"}, groups)
}

func TestDiagnose_Problems(t *testing.T) {
	in := doctorInput{
		Rules: []*core.Rule{
			{ID: 1, Name: "a", SQL: "SELECT 1", ParentID: core.ParentRef(2)},
			{ID: 2, Name: "b", SQL: "SELECT 1", ParentID: core.ParentRef(1)},
			{ID: 3, Name: "orphan", SQL: "SELECT (1", ParentID: core.ParentRef(99)},
			{ID: 4, Name: "missing table", DecisionTableID: "nope"},
			{ID: 5, Name: "critical", SQL: "SELECT 1", Critical: true, CriticalScope: core.CriticalScopeNone},
		},
		Conflicts: []core.Conflict{{RuleA: 5, RuleB: 42}},
		Links: []core.GlobalCriticalLink{
			{SourceID: 5, TargetID: 1},
			{SourceID: 77, TargetID: 1},
		},
		SchemaErr: errors.New("state database not open"),
		TargetErr: errors.New("connection refused"),
	}

	out := diagnose(in)

	assert.Equal(t, "error", findCheck(t, out, "ST01").Status)
	assert.Equal(t, []string{"connection refused"}, findCheck(t, out, "ST02").Details)

	cycle := findCheck(t, out, "GR01")
	assert.Equal(t, "error", cycle.Status)
	assert.Equal(t, 1, cycle.IssueCount)

	orphans := findCheck(t, out, "GR02")
	require.Len(t, orphans.Details, 1)
	assert.Contains(t, orphans.Details[0], "missing parent 99")

	links := findCheck(t, out, "GR03")
	assert.Equal(t, "warn", links.Status)
	assert.Equal(t, 2, links.IssueCount)

	assert.Equal(t, 1, findCheck(t, out, "GR04").IssueCount)

	parse := findCheck(t, out, "RU01")
	require.Len(t, parse.Details, 1)
	assert.Contains(t, parse.Details[0], "rule 3")

	assert.Equal(t, 1, findCheck(t, out, "RU02").IssueCount)
	assert.Equal(t, 1, findCheck(t, out, "RU03").IssueCount)

	assert.Equal(t, 0, out.Score)
	assert.NotEmpty(t, out.Recommendations)
	assert.LessOrEqual(t, len(out.Recommendations), 5)
}

func TestDiagnose_Unmigrated(t *testing.T) {
	out := diagnose(doctorInput{})
	st := findCheck(t, out, "ST01")
	assert.Equal(t, []string{"no migrations applied"}, st.Details)
	assert.Zero(t, out.Summary.Depth)
}

func TestRenderDoctor(t *testing.T) {
	out := diagnose(doctorInput{
		Rules:         []*core.Rule{{ID: 1, Name: "bad", SQL: "SELECT (", Critical: true}},
		SchemaVersion: 1,
	})

	t.Run("markdown", func(t *testing.T) {
		tr := testutil.NewTestRendererMarkdown()
		require.NoError(t, renderDoctorMarkdown(tr.Renderer, out))
		md := tr.Output()
		testutil.AssertOutputMode(t, tr, output.ModeMarkdown)
		testutil.AssertValidMarkdown(t, md)
		assert.Contains(t, md, "### Rules")
		assert.Contains(t, md, "**RU01**")
		assert.Contains(t, md, "## Recommendations")
	})

	t.Run("text", func(t *testing.T) {
		tr := testutil.NewTestRendererText()
		require.NoError(t, renderDoctorText(tr.Renderer, out))
		assert.Contains(t, tr.Output(), "Health Score")
		assert.Contains(t, tr.Output(), "Storage")
	})
}
