package commands

import (
	"bytes"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprules/internal/cli/config"
	"github.com/leapstack-labs/leaprules/pkg/core"
)

func parsedRuleFlags(t *testing.T, args ...string) (*RuleFlags, *cobra.Command) {
	t.Helper()
	f := &RuleFlags{}
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return f, cmd
}

func TestRuleFlagsApply(t *testing.T) {
	t.Run("only changed flags are copied", func(t *testing.T) {
		f, cmd := parsedRuleFlags(t, "--owner", "finance", "--critical", "--scope", "cluster")
		rule := &core.Rule{Name: "keep", SQL: "SELECT 1", ParentID: core.ParentRef(4)}

		require.NoError(t, f.apply(cmd, rule))
		assert.Equal(t, "keep", rule.Name)
		assert.Equal(t, "SELECT 1", rule.SQL)
		assert.Equal(t, int64(4), *rule.ParentID)
		assert.Equal(t, "finance", rule.Owner)
		assert.True(t, rule.Critical)
		assert.Equal(t, core.CriticalScopeCluster, rule.CriticalScope)
	})

	t.Run("parent zero makes a root", func(t *testing.T) {
		f, cmd := parsedRuleFlags(t, "--parent", "0")
		rule := &core.Rule{ParentID: core.ParentRef(2)}
		require.NoError(t, f.apply(cmd, rule))
		assert.True(t, rule.IsRoot())
	})

	t.Run("status is parsed", func(t *testing.T) {
		f, cmd := parsedRuleFlags(t, "--status", "active")
		rule := &core.Rule{}
		require.NoError(t, f.apply(cmd, rule))
		assert.Equal(t, core.RuleStatusActive, rule.Status)
	})

	t.Run("invalid values", func(t *testing.T) {
		f, cmd := parsedRuleFlags(t, "--status", "bogus")
		assert.Error(t, f.apply(cmd, &core.Rule{}))

		f, cmd = parsedRuleFlags(t, "--scope", "planet")
		assert.Error(t, f.apply(cmd, &core.Rule{}))
	})

	t.Run("missing sql file", func(t *testing.T) {
		f, cmd := parsedRuleFlags(t, "--sql-file", "/does/not/exist.sql")
		err := f.apply(cmd, &core.Rule{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read SQL file")
	})
}

func TestRuleFlagsLabel(t *testing.T) {
	assert.Equal(t, "", ruleFlagsLabel(&core.Rule{}))
	assert.Equal(t, "critical:group global", ruleFlagsLabel(&core.Rule{
		Critical:      true,
		CriticalScope: core.CriticalScopeGroup,
		Global:        true,
	}))
}

func executeErr(cmd *cobra.Command, args ...string) error {
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.Execute()
}

func TestRuleLifecycle(t *testing.T) {
	setupExampleProject(t)
	cfg := config.GetCurrentConfig()

	var created ruleView
	out := execute(t, NewRulesCommand(), "add", "--name", "negative amounts",
		"--sql", "SELECT id FROM orders WHERE amount < 0", "--critical")
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "DRAFT", created.Status)
	assert.Equal(t, "GROUP", created.CriticalScope, "critical rules default to group scope")
	assert.Equal(t, "SELECT", created.Operation)
	id := strconv.FormatInt(created.ID, 10)

	var child ruleView
	out = execute(t, NewRulesCommand(), "add", "--name", "flag large",
		"--parent", id, "--sql", "UPDATE orders SET flagged = 1 WHERE amount > 1000")
	require.NoError(t, json.Unmarshal([]byte(out), &child))
	require.NotNil(t, child.ParentID)
	assert.Equal(t, created.ID, *child.ParentID)

	var shown struct {
		ruleView
		Downstream []int64 `json:"downstream"`
		LockedBy   string  `json:"locked_by"`
	}
	require.NoError(t, json.Unmarshal([]byte(execute(t, NewRulesCommand(), "show", id)), &shown))
	assert.Equal(t, []int64{child.ID}, shown.Downstream)

	execute(t, NewLockCommand(), id)
	require.NoError(t, json.Unmarshal([]byte(execute(t, NewRulesCommand(), "show", id)), &shown))
	assert.Equal(t, "admin", shown.LockedBy)

	cfg.Actor = "bob"
	assert.Error(t, executeErr(NewRulesCommand(), "edit", id, "--owner", "bob"), "locked by admin")
	assert.Error(t, executeErr(NewUnlockCommand(), id), "bob does not hold the lock")

	cfg.Actor = "admin"
	execute(t, NewUnlockCommand(), id)

	var updated ruleView
	require.NoError(t, json.Unmarshal([]byte(execute(t, NewRulesCommand(), "status", id, "active")), &updated))
	assert.Equal(t, "ACTIVE", updated.Status)

	var deleted struct {
		Deleted  int64   `json:"deleted"`
		Affected []int64 `json:"affected_rules"`
	}
	require.NoError(t, json.Unmarshal([]byte(execute(t, NewRulesCommand(), "delete", id)), &deleted))
	assert.Equal(t, created.ID, deleted.Deleted)
	assert.Equal(t, []int64{child.ID}, deleted.Affected)

	var rules []ruleView
	require.NoError(t, json.Unmarshal([]byte(execute(t, NewRulesCommand(), "list")), &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, child.ID, rules[0].ID, "children survive their parent")
}

func TestRulesAddRequiresName(t *testing.T) {
	setupExampleProject(t)
	err := executeErr(NewRulesCommand(), "add", "--sql", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestRulesGlobalNeedsAdmin(t *testing.T) {
	setupExampleProject(t)
	config.GetCurrentConfig().Actor = "bob"

	err := executeErr(NewRulesCommand(), "add", "--name", "feed present", "--sql", "SELECT 1", "--global")
	assert.Error(t, err)
}
