package engine

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/leaprules/internal/decision"
	"github.com/leapstack-labs/leaprules/internal/state"
	"github.com/leapstack-labs/leaprules/internal/testutil"
	"github.com/leapstack-labs/leaprules/pkg/adapter"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/leapstack-labs/leaprules/pkg/sqlref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leaprules/pkg/adapters/sqlite"
)

const admin = "root"

// newTestEngine returns an engine with in-memory state and an in-memory
// SQLite target seeded with an orders table.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := New(Config{
		StatePath:     ":memory:",
		Environment:   "test",
		AdapterConfig: &adapter.Config{Type: "sqlite"},
		Admins:        []string{admin},
		Logger:        testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ctx := context.Background()
	db, err := e.DB(ctx)
	require.NoError(t, err)
	for _, stmt := range []string{
		"CREATE TABLE orders (id INTEGER PRIMARY KEY, amount REAL, tier TEXT, flagged INTEGER DEFAULT 0)",
		"INSERT INTO orders (id, amount, tier) VALUES (1, 100, 'silver'), (2, -5, 'gold'), (3, 2500, 'bronze')",
	} {
		_, err := db.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return e
}

func saveRule(t *testing.T, e *Engine, r *core.Rule) *core.Rule {
	t.Helper()
	require.NoError(t, e.SaveRule(context.Background(), r, "alice"))
	require.NotZero(t, r.ID)
	return r
}

func countFlagged(t *testing.T, e *Engine) int64 {
	t.Helper()
	ctx := context.Background()
	db, err := e.DB(ctx)
	require.NoError(t, err)
	rows, err := adapter.QueryMaps(ctx, db, "SELECT COUNT(*) AS n FROM orders WHERE flagged = 1")
	require.NoError(t, err)
	return rows[0]["n"].(int64)
}

func TestNew_Defaults(t *testing.T) {
	e, err := New(Config{StatePath: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "dev", e.Environment())
	assert.NotNil(t, e.Store())
	assert.Empty(t, e.Decisions().IDs())
}

func TestNew_BadDecisionsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "broken.yaml", "rules: [\n"))

	_, err := New(Config{StatePath: ":memory:", DecisionsDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load decision tables")
}

func TestSaveRule_ExtractsDependencies(t *testing.T) {
	e := newTestEngine(t)

	r := saveRule(t, e, &core.Rule{
		Name: "negative amounts",
		SQL:  "SELECT o.id FROM orders o WHERE o.amount < 0",
	})
	assert.Equal(t, core.OperationSelect, r.Operation)
	assert.Equal(t, core.RuleStatusDraft, r.Status)

	deps, err := e.Dependencies(r.ID)
	require.NoError(t, err)
	require.NotEmpty(t, deps)
	for _, d := range deps {
		assert.Equal(t, r.ID, d.RuleID)
		assert.Equal(t, "orders", d.Table)
		assert.Equal(t, core.DependencyRead, d.Op)
	}

	r.SQL = "UPDATE orders SET flagged = 1 WHERE amount < 0"
	require.NoError(t, e.SaveRule(context.Background(), r, "alice"))
	assert.Equal(t, core.OperationUpdate, r.Operation)

	deps, err = e.Dependencies(r.ID)
	require.NoError(t, err)
	assert.Contains(t, deps, core.RuleDependency{RuleID: r.ID, Table: "orders", Column: "flagged", Op: core.DependencyWrite})

	entries, err := e.Store().ListAudit(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionUpdate, entries[0].Action)
	assert.Equal(t, ActionCreate, entries[1].Action)
	assert.Contains(t, entries[0].Old, `"operation":"SELECT"`)
	assert.Contains(t, entries[0].New, `"operation":"UPDATE"`)
}

func TestSaveRule_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	parent := saveRule(t, e, &core.Rule{Name: "parent", SQL: "SELECT id FROM orders"})
	child := saveRule(t, e, &core.Rule{Name: "child", SQL: "SELECT id FROM orders", ParentID: core.ParentRef(parent.ID)})

	tests := []struct {
		name   string
		rule   *core.Rule
		actor  string
		target error
		errMsg string
	}{
		{name: "missing name", rule: &core.Rule{SQL: "SELECT 1"}, errMsg: "name is required"},
		{name: "missing body", rule: &core.Rule{Name: "x"}, errMsg: "decision_table_id is required"},
		{name: "unknown decision table", rule: &core.Rule{Name: "x", DecisionTableID: "nope"}, errMsg: `"nope" is not loaded`},
		{name: "unparseable sql", rule: &core.Rule{Name: "x", SQL: "SELECT 'oops FROM orders"}, errMsg: "unterminated string literal"},
		{name: "global needs admin", rule: &core.Rule{Name: "x", SQL: "SELECT 1", Global: true}, target: ErrAdminRequired},
		{name: "missing parent", rule: &core.Rule{Name: "x", SQL: "SELECT 1", ParentID: core.ParentRef(999)}, errMsg: "parent_id 999 does not exist"},
		{name: "self parent", rule: &core.Rule{ID: parent.ID, Name: "parent", SQL: "SELECT 1", ParentID: core.ParentRef(parent.ID)}, target: ErrParentCycle},
		{name: "descendant parent", rule: &core.Rule{ID: parent.ID, Name: "parent", SQL: "SELECT 1", ParentID: core.ParentRef(child.ID)}, target: ErrParentCycle},
		{name: "unknown rule", rule: &core.Rule{ID: 999, Name: "x", SQL: "SELECT 1"}, target: state.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := tt.actor
			if actor == "" {
				actor = "alice"
			}
			err := e.SaveRule(ctx, tt.rule, actor)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}

	var perr *sqlref.ParseError
	err := e.SaveRule(ctx, &core.Rule{Name: "bad", SQL: "SELECT (id FROM orders"}, "alice")
	assert.True(t, errors.As(err, &perr))

	rules, err := e.ListRules()
	require.NoError(t, err)
	assert.Len(t, rules, 2, "failed saves must not write rules")
}

func TestSaveRule_GlobalGuard(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	g := &core.Rule{Name: "global check", SQL: "SELECT id FROM orders WHERE amount < 0", Global: true, Critical: true}
	require.NoError(t, e.SaveRule(ctx, g, admin))

	g.Description = "edited"
	assert.ErrorIs(t, e.SaveRule(ctx, g, "alice"), ErrAdminRequired)

	_, err := e.SetRuleStatus(g.ID, core.RuleStatusInactive, "alice")
	assert.ErrorIs(t, err, ErrAdminRequired)

	_, err = e.DeleteRule(g.ID, "alice")
	assert.ErrorIs(t, err, ErrAdminRequired)

	updated, err := e.SetRuleStatus(g.ID, core.RuleStatusActive, admin)
	require.NoError(t, err)
	assert.Equal(t, core.RuleStatusActive, updated.Status)
}

func TestSaveRule_OtherStatements(t *testing.T) {
	e := newTestEngine(t)

	merge := saveRule(t, e, &core.Rule{
		Name: "merge orders",
		SQL:  "MERGE INTO orders o USING staged_orders s ON o.id = s.id WHEN MATCHED THEN UPDATE SET amount = s.amount",
	})
	assert.Equal(t, core.OperationOther, merge.Operation)
	deps, err := e.Dependencies(merge.ID)
	require.NoError(t, err)
	var tables []string
	for _, d := range deps {
		tables = append(tables, d.Table)
	}
	assert.ElementsMatch(t, []string{"orders", "staged_orders"}, tables)

	truncate := saveRule(t, e, &core.Rule{Name: "clear staging", SQL: "TRUNCATE TABLE staging"})
	assert.Equal(t, core.OperationOther, truncate.Operation)

	exec := saveRule(t, e, &core.Rule{Name: "proc check", SQL: "EXEC dbo.usp_check @threshold = 10"})
	assert.Equal(t, core.OperationOther, exec.Operation)
	deps, err = e.Dependencies(exec.ID)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestSaveRule_DependencyFailureWritesNothing(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	store, ok := e.Store().(*state.SQLiteStore)
	require.True(t, ok)
	_, err := store.DB().Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON rule_dependencies
		WHEN NEW.table_name = 'boom'
		BEGIN SELECT RAISE(ABORT, 'dependency rejected'); END`)
	require.NoError(t, err)

	kept := saveRule(t, e, &core.Rule{Name: "kept", SQL: "SELECT id FROM orders"})
	audit, err := e.AuditLog(100)
	require.NoError(t, err)
	auditCount := len(audit)

	fresh := &core.Rule{Name: "fresh", SQL: "SELECT id FROM boom"}
	require.Error(t, e.SaveRule(ctx, fresh, "alice"))
	assert.Zero(t, fresh.ID, "a failed create leaves the rule unsaved")

	edit := kept.Clone()
	edit.SQL = "SELECT id FROM boom"
	require.Error(t, e.SaveRule(ctx, edit, "alice"))

	rules, err := e.ListRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "SELECT id FROM orders", rules[0].SQL)

	deps, err := e.Dependencies(kept.ID)
	require.NoError(t, err)
	require.NotEmpty(t, deps)
	for _, d := range deps {
		assert.Equal(t, "orders", d.Table)
	}

	audit, err = e.AuditLog(100)
	require.NoError(t, err)
	assert.Len(t, audit, auditCount, "failed saves are not audited")
}

func TestLocks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	r := saveRule(t, e, &core.Rule{Name: "locked", SQL: "SELECT id FROM orders"})
	require.NoError(t, e.LockRule(r.ID, "alice", false))

	r.Description = "bob was here"
	err := e.SaveRule(ctx, r, "bob")
	var locked *state.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "alice", locked.LockedBy)

	r.Description = "alice was here"
	require.NoError(t, e.SaveRule(ctx, r, "alice"))

	require.Error(t, e.UnlockRule(r.ID, "bob", false))
	require.NoError(t, e.UnlockRule(r.ID, "bob", true))

	r.Description = "bob again"
	require.NoError(t, e.SaveRule(ctx, r, "bob"))
}

func TestRun_DryRunSkipsChildrenOfFailedCritical(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	negatives := saveRule(t, e, &core.Rule{Name: "negative amounts", SQL: "SELECT id FROM orders WHERE amount < 0", Critical: true})
	flag := saveRule(t, e, &core.Rule{Name: "flag large", SQL: "UPDATE orders SET flagged = 1 WHERE amount > 1000", ParentID: core.ParentRef(negatives.ID)})
	tiers := saveRule(t, e, &core.Rule{Name: "known tiers", SQL: "SELECT id FROM orders WHERE tier NOT IN ('gold', 'silver', 'bronze')"})
	flagAll := saveRule(t, e, &core.Rule{Name: "flag all", SQL: "UPDATE orders SET flagged = 1", ParentID: core.ParentRef(tiers.ID)})
	inactive := saveRule(t, e, &core.Rule{Name: "retired", SQL: "DELETE FROM orders", Status: core.RuleStatusInactive})

	res, err := e.Run(ctx, RunOptions{DryRun: true, Actor: "alice"})
	require.NoError(t, err)

	assert.Equal(t, core.RunStatusCompleted, res.Run.Status)
	assert.True(t, res.Run.DryRun)
	assert.Equal(t, "test", res.Run.Environment)

	passed, failed, skipped := res.Report.Counts()
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)

	got, ok := res.Report.Result(negatives.ID)
	require.True(t, ok)
	assert.False(t, got.Passed)
	assert.Equal(t, int64(1), got.RecordCount)
	assert.Equal(t, "1 violating records", got.Message)

	got, ok = res.Report.Result(flag.ID)
	require.True(t, ok)
	assert.Equal(t, core.RuleRunSkipped, got.Status)
	assert.Equal(t, negatives.ID, got.SkippedBy)

	got, ok = res.Report.Result(flagAll.ID)
	require.True(t, ok)
	assert.True(t, got.Passed)
	assert.Equal(t, int64(3), got.RecordCount)

	_, ok = res.Report.Result(inactive.ID)
	assert.False(t, ok, "inactive rules are not run")

	assert.Zero(t, countFlagged(t, e), "dry run must roll back")

	run, results, err := e.RunDetail(res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Run.ID, run.ID)
	assert.Len(t, results, 4)

	entries, err := e.Store().ListAudit(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionRun, entries[0].Action)
	assert.Equal(t, res.Run.ID, entries[0].RecordID)
}

func TestRun_LiveCommits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	saveRule(t, e, &core.Rule{Name: "flag large", SQL: "UPDATE orders SET flagged = 1 WHERE amount > 1000"})

	res, err := e.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.False(t, res.Run.DryRun)
	assert.Equal(t, int64(1), countFlagged(t, e))
}

func TestRun_SelectedRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := saveRule(t, e, &core.Rule{Name: "a", SQL: "SELECT id FROM orders WHERE amount > 1000000000"})
	b := saveRule(t, e, &core.Rule{Name: "b", SQL: "SELECT id FROM orders WHERE amount > 1000000000", ParentID: core.ParentRef(a.ID)})
	c := saveRule(t, e, &core.Rule{Name: "c", SQL: "SELECT id FROM orders WHERE amount > 1000000000"})

	res, err := e.Run(ctx, RunOptions{DryRun: true, RuleIDs: []int64{a.ID}})
	require.NoError(t, err)

	var ran []int64
	for _, r := range res.Report.Results {
		ran = append(ran, r.RuleID)
	}
	assert.Equal(t, []int64{a.ID, b.ID}, ran)
	_, ok := res.Report.Result(c.ID)
	assert.False(t, ok)
}

func TestRun_DecisionTable(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Decisions().Add(&decision.Table{
		ID:     "credit_limits",
		Source: "SELECT id, amount, tier FROM orders",
		Params: map[string]any{"limit": 1000},
		Rules: []decision.Rule{
			{When: `row.amount > params.limit && row.tier != "gold"`, Pass: false, Message: "over limit"},
		},
	}))

	r := saveRule(t, e, &core.Rule{Name: "credit", DecisionTableID: "credit_limits"})
	assert.Equal(t, core.OperationDecisionTable, r.Operation)

	res, err := e.Run(ctx, RunOptions{DryRun: true})
	require.NoError(t, err)

	got, ok := res.Report.Result(r.ID)
	require.True(t, ok)
	assert.False(t, got.Passed)
	assert.Equal(t, int64(1), got.RecordCount)
	assert.True(t, strings.HasPrefix(got.Message, "over limit"))
}

func TestRun_ExecutionErrorFailsRule(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	bad := saveRule(t, e, &core.Rule{Name: "missing table", SQL: "SELECT id FROM shipments", Critical: true})
	child := saveRule(t, e, &core.Rule{Name: "child", SQL: "SELECT id FROM orders", ParentID: core.ParentRef(bad.ID)})

	res, err := e.Run(ctx, RunOptions{DryRun: true})
	require.NoError(t, err)

	got, ok := res.Report.Result(bad.ID)
	require.True(t, ok)
	assert.Equal(t, core.RuleRunFailed, got.Status)
	assert.Contains(t, got.Message, "shipments")

	got, ok = res.Report.Result(child.ID)
	require.True(t, ok)
	assert.Equal(t, core.RuleRunSkipped, got.Status)
}

func TestRun_Cancelled(t *testing.T) {
	e := newTestEngine(t)
	saveRule(t, e, &core.Rule{Name: "a", SQL: "SELECT id FROM orders"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Run(ctx, RunOptions{DryRun: true})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	require.NotNil(t, res)
	assert.True(t, res.Report.Cancelled)
	assert.Equal(t, core.RunStatusCancelled, res.Run.Status)

	runs, err := e.RunHistory(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.RunStatusCancelled, runs[0].Status)
}

func TestRun_Conflicts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := saveRule(t, e, &core.Rule{Name: "has gold", SQL: "SELECT id FROM orders WHERE tier = 'platinum'"})
	b := saveRule(t, e, &core.Rule{Name: "no gold", SQL: "SELECT id FROM orders WHERE tier = 'gold'"})
	require.NoError(t, e.AddConflict(core.Conflict{RuleA: b.ID, RuleB: a.ID, Priority: -1}, "alice"))

	res, err := e.Run(ctx, RunOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)

	c := res.Conflicts[0]
	assert.True(t, c.Contradictory())
	assert.Equal(t, a.ID, c.Conflict.RuleA, "conflicts are stored with the lower id first")

	assert.Equal(t, 1, c.Conflict.Priority)
	assert.Equal(t, a.ID, c.Winner().RuleID)

	reports, err := e.Conflicts(res.Run.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, a.ID, reports[0].Winner().RuleID)

	_, err = e.Conflicts("missing")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestGlobalCriticalLinks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	g := &core.Rule{Name: "global", SQL: "SELECT id FROM orders WHERE amount < 0", Global: true, Critical: true}
	require.NoError(t, e.SaveRule(ctx, g, admin))
	target := saveRule(t, e, &core.Rule{Name: "target", SQL: "SELECT id FROM orders"})
	plain := saveRule(t, e, &core.Rule{Name: "plain", SQL: "SELECT id FROM orders"})

	link := core.GlobalCriticalLink{SourceID: g.ID, TargetID: target.ID}
	assert.ErrorIs(t, e.AddGlobalCriticalLink(link, "alice"), ErrAdminRequired)
	err := e.AddGlobalCriticalLink(core.GlobalCriticalLink{SourceID: plain.ID, TargetID: target.ID}, admin)
	assert.Contains(t, err.Error(), "must be a global critical rule")
	require.NoError(t, e.AddGlobalCriticalLink(link, admin))

	res, err := e.Run(ctx, RunOptions{DryRun: true})
	require.NoError(t, err)

	got, ok := res.Report.Result(target.ID)
	require.True(t, ok)
	assert.Equal(t, core.RuleRunSkipped, got.Status)
	assert.Equal(t, g.ID, got.SkippedBy)
}

func TestImpactAndDelete(t *testing.T) {
	e := newTestEngine(t)

	root := saveRule(t, e, &core.Rule{Name: "root", SQL: "SELECT id FROM orders"})
	mid := saveRule(t, e, &core.Rule{Name: "mid", SQL: "UPDATE orders SET flagged = 1", ParentID: core.ParentRef(root.ID)})
	leaf := saveRule(t, e, &core.Rule{Name: "leaf", SQL: "SELECT id FROM customers", ParentID: core.ParentRef(mid.ID)})

	sched := &core.Schedule{RuleID: leaf.ID}
	require.NoError(t, e.Store().CreateSchedule(sched))

	res, err := e.Impact(root.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{mid.ID, leaf.ID}, res.ChildRules)
	assert.Equal(t, []int64{sched.ID}, res.Schedules)
	assert.Equal(t, 2, res.Depth[leaf.ID])

	up, err := e.Upstream(leaf.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{root.ID, mid.ID}, up)

	tbl, err := e.TableImpact("ORDERS")
	require.NoError(t, err)
	assert.Equal(t, []int64{root.ID}, tbl.Readers)
	assert.Equal(t, []int64{mid.ID}, tbl.Writers)
	assert.Equal(t, []int64{leaf.ID}, tbl.Downstream.ChildRules)

	_, err = e.Impact(999)
	assert.ErrorIs(t, err, state.ErrNotFound)

	deleted, err := e.DeleteRule(mid.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{leaf.ID}, deleted.ChildRules)

	_, err = e.GetRule(mid.ID)
	assert.ErrorIs(t, err, state.ErrNotFound)

	res, err = e.Impact(root.ID)
	require.NoError(t, err)
	assert.Empty(t, res.ChildRules, "children of a deleted rule become roots")
}

func TestRefreshDependencies(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	good := saveRule(t, e, &core.Rule{Name: "good", SQL: "SELECT id FROM orders"})

	// bypass SaveRule to plant stale rows
	good.SQL = "DELETE FROM orders WHERE amount < 0"
	require.NoError(t, e.Store().UpdateRule(good))
	broken := &core.Rule{Name: "broken", SQL: "SELECT (id FROM orders", Status: core.RuleStatusDraft}
	require.NoError(t, e.Store().CreateRule(broken))

	res, err := e.RefreshDependencies(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Reclassified)
	assert.Contains(t, res.Batch.Errors, broken.ID)
	require.Error(t, res.Err())

	stored, err := e.GetRule(good.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OperationDelete, stored.Operation)

	deps, err := e.Dependencies(good.ID)
	require.NoError(t, err)
	assert.True(t, slices.ContainsFunc(deps, func(d core.RuleDependency) bool {
		return d.Op == core.DependencyWrite && d.Table == "orders"
	}))
}

func TestChunkRules(t *testing.T) {
	rules := []*core.Rule{{ID: 1, SQL: "a"}, {ID: 2, SQL: "b"}, {ID: 3, SQL: "c"}}

	chunks := chunkRules(rules, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, map[int64]string{1: "a", 3: "c"}, chunks[0])
	assert.Equal(t, map[int64]string{2: "b"}, chunks[1])

	assert.Len(t, chunkRules(rules, 16), 3)
	assert.Len(t, chunkRules(nil, 4), 1)
}

func TestScheduleRuleAndAuditLog(t *testing.T) {
	e := newTestEngine(t)
	r := saveRule(t, e, &core.Rule{Name: "neg", SQL: "SELECT id FROM orders WHERE amount < 0"})

	at := time.Date(2026, 11, 1, 6, 0, 0, 0, time.UTC)
	sch, err := e.ScheduleRule(r.ID, at, "alice")
	require.NoError(t, err)
	assert.NotZero(t, sch.ID)
	assert.Equal(t, core.ScheduleScheduled, sch.Status)

	all, err := e.Schedules()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, r.ID, all[0].RuleID)

	_, err = e.ScheduleRule(999, at, "alice")
	assert.ErrorIs(t, err, state.ErrNotFound)

	entries, err := e.AuditLog(10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "schedule", entries[0].Entity)
	assert.Equal(t, ActionCreate, entries[0].Action)
}

func TestLockLookup(t *testing.T) {
	e := newTestEngine(t)
	r := saveRule(t, e, &core.Rule{Name: "neg", SQL: "SELECT id FROM orders WHERE amount < 0"})

	lock, err := e.Lock(r.ID)
	require.NoError(t, err)
	assert.Nil(t, lock)

	require.NoError(t, e.LockRule(r.ID, "alice", false))
	lock, err = e.Lock(r.ID)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "alice", lock.LockedBy)
}

func TestLoadSeeds(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "customers.csv", "id,name,tier\n1,alice,gold\n2,bob,\n"))
	require.NoError(t, writeFile(dir, "notes.txt", "ignored"))

	res, err := e.LoadSeeds(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "customers", res[0].Table)
	assert.Equal(t, int64(2), res[0].Rows)

	r := saveRule(t, e, &core.Rule{Name: "missing_tier", SQL: "SELECT id FROM customers WHERE tier IS NULL"})
	out, err := e.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	got, ok := out.Report.Result(r.ID)
	require.True(t, ok)
	assert.False(t, got.Passed)
	assert.Equal(t, int64(1), got.RecordCount)

	none, err := e.LoadSeeds(context.Background(), filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHealthAccessors(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.SchemaVersion()
	require.NoError(t, err)
	assert.Positive(t, v)

	require.NoError(t, e.Ping(context.Background()))

	a := saveRule(t, e, &core.Rule{Name: "a", SQL: "SELECT id FROM orders WHERE amount < 0"})
	b := saveRule(t, e, &core.Rule{Name: "b", SQL: "SELECT id FROM orders WHERE tier = 'gold'"})
	require.NoError(t, e.AddConflict(core.Conflict{RuleA: a.ID, RuleB: b.ID}, "alice"))

	conflicts, links, err := e.GraphLinks()
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
	assert.Empty(t, links)
}
