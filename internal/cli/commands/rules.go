package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/internal/engine"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/spf13/cobra"
)

// RuleFlags holds the editable rule fields shared by add and edit.
type RuleFlags struct {
	Name          string
	Description   string
	SQL           string
	SQLFile       string
	Parent        int64
	DecisionTable string
	Status        string
	Critical      bool
	Scope         string
	Global        bool
	Owner         string
}

func (f *RuleFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.Name, "name", "", "Rule name")
	fs.StringVar(&f.Description, "description", "", "Rule description")
	fs.StringVar(&f.SQL, "sql", "", "SQL statement the rule executes")
	fs.StringVarP(&f.SQLFile, "sql-file", "f", "", "Read the SQL statement from a file")
	fs.Int64Var(&f.Parent, "parent", 0, "Parent rule ID (0 for a root rule)")
	fs.StringVar(&f.DecisionTable, "decision-table", "", "Decision table ID evaluated instead of SQL")
	fs.StringVar(&f.Status, "status", "", "Lifecycle status (DRAFT, PENDING_APPROVAL, APPROVED, ACTIVE, INACTIVE, REJECTED)")
	fs.BoolVar(&f.Critical, "critical", false, "Skip descendants when this rule fails")
	fs.StringVar(&f.Scope, "scope", "", "Critical scope (NONE, GROUP, CLUSTER, GLOBAL)")
	fs.BoolVar(&f.Global, "global", false, "Mark as a global rule (admin only)")
	fs.StringVar(&f.Owner, "owner", "", "Owning team or person")
	cmd.MarkFlagsMutuallyExclusive("sql", "sql-file")
}

// apply copies the flags the user set onto rule.
func (f *RuleFlags) apply(cmd *cobra.Command, rule *core.Rule) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		rule.Name = f.Name
	}
	if changed("description") {
		rule.Description = f.Description
	}
	if changed("sql") {
		rule.SQL = f.SQL
	}
	if changed("sql-file") {
		data, err := os.ReadFile(f.SQLFile)
		if err != nil {
			return fmt.Errorf("failed to read SQL file: %w", err)
		}
		rule.SQL = string(data)
	}
	if changed("parent") {
		rule.ParentID = nil
		if f.Parent > 0 {
			rule.ParentID = core.ParentRef(f.Parent)
		}
	}
	if changed("decision-table") {
		rule.DecisionTableID = f.DecisionTable
	}
	if changed("status") {
		st, err := core.ParseRuleStatus(f.Status)
		if err != nil {
			return err
		}
		rule.Status = st
	}
	if changed("critical") {
		rule.Critical = f.Critical
	}
	if changed("scope") {
		sc, err := core.ParseCriticalScope(f.Scope)
		if err != nil {
			return err
		}
		rule.CriticalScope = sc
	}
	if changed("global") {
		rule.Global = f.Global
	}
	if changed("owner") {
		rule.Owner = f.Owner
	}
	return nil
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage business rules",
		Long: `Create, inspect and change business rules.

Rules form a forest through their parent links. Saving a rule extracts the
tables and columns its SQL reads and writes; those dependencies drive impact
analysis.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all rules
  leaprules rules list

  # Add a root rule
  leaprules rules add --name negative_amounts --critical \
    --sql "SELECT id FROM orders WHERE amount < 0"

  # Import rules from a file
  leaprules rules import rules.yaml`,
	}

	cmd.AddCommand(
		newRulesListCommand(),
		newRulesShowCommand(),
		newRulesAddCommand(),
		newRulesEditCommand(),
		newRulesImportCommand(),
		newRulesDeleteCommand(),
		newRulesStatusCommand(),
		newRulesConflictCommand(),
		newRulesLinkCommand(),
	)
	return cmd
}

func newRulesListCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var want core.RuleStatus
			if status != "" {
				if want, err = core.ParseRuleStatus(status); err != nil {
					return err
				}
			}

			rules, err := cmdCtx.Engine.ListRules()
			if err != nil {
				return err
			}

			var filtered []*core.Rule
			for _, r := range rules {
				if want == "" || r.Status == want {
					filtered = append(filtered, r)
				}
			}
			return renderRuleList(cmdCtx.Renderer, filtered)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list rules with this status")
	return cmd
}

func renderRuleList(r *output.Renderer, rules []*core.Rule) error {
	if r.EffectiveMode() == output.ModeJSON {
		views := make([]ruleView, 0, len(rules))
		for _, rule := range rules {
			views = append(views, toRuleView(rule))
		}
		return r.JSON(views)
	}

	r.Header(1, fmt.Sprintf("Rules (%d total)", len(rules)))
	rows := make([][]string, 0, len(rules))
	for _, rule := range rules {
		parent := "-"
		if p, ok := rule.Parent(); ok {
			parent = strconv.FormatInt(p, 10)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rule.ID, 10),
			rule.Name,
			parent,
			string(rule.Status),
			rule.Operation.String(),
			ruleFlagsLabel(rule),
		})
	}
	r.Table([]string{"ID", "Name", "Parent", "Status", "Operation", "Flags"}, rows)
	return nil
}

func ruleFlagsLabel(rule *core.Rule) string {
	var parts []string
	if rule.Critical {
		parts = append(parts, "critical:"+strings.ToLower(string(rule.CriticalScope)))
	}
	if rule.Global {
		parts = append(parts, "global")
	}
	return strings.Join(parts, " ")
}

func newRulesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a rule with its dependencies and lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return showRule(cmdCtx, id)
		},
	}
}

func showRule(cmdCtx *CommandContext, id int64) error {
	eng, r := cmdCtx.Engine, cmdCtx.Renderer

	rule, err := eng.GetRule(id)
	if err != nil {
		return fmt.Errorf("rule %d: %w", id, err)
	}
	deps, err := eng.Dependencies(id)
	if err != nil {
		return err
	}
	upstream, err := eng.Upstream(id)
	if err != nil {
		return err
	}
	downstream, err := eng.Impact(id)
	if err != nil {
		return err
	}
	lock, err := eng.Lock(id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			ruleView
			Dependencies []dependencyView `json:"dependencies"`
			Upstream     []int64          `json:"upstream"`
			Downstream   []int64          `json:"downstream"`
			LockedBy     string           `json:"locked_by,omitempty"`
		}{
			ruleView:     toRuleView(rule),
			Dependencies: toDependencyViews(deps),
			Upstream:     upstream,
			Downstream:   downstream.ChildRules,
			LockedBy:     lockedBy(lock),
		})
	}

	r.Header(1, fmt.Sprintf("Rule %d: %s", rule.ID, rule.Name))
	kv := [][2]string{
		{"Status", string(rule.Status)},
		{"Operation", rule.Operation.String()},
		{"Critical", fmt.Sprintf("%t (%s)", rule.Critical, rule.CriticalScope)},
		{"Global", strconv.FormatBool(rule.Global)},
		{"Owner", orDash(rule.Owner)},
		{"Upstream", formatIDs(upstream)},
		{"Downstream", formatIDs(downstream.ChildRules)},
		{"Locked by", orDash(lockedBy(lock))},
		{"Updated", formatTime(rule.UpdatedAt)},
	}
	if rule.DecisionTableID != "" {
		kv = append(kv, [2]string{"Decision table", rule.DecisionTableID})
	}
	for _, p := range kv {
		r.Println(output.FormatKeyValue(p[0], p[1]))
	}
	if rule.Description != "" {
		r.Println("")
		r.Println(rule.Description)
	}
	if rule.SQL != "" {
		r.Println("")
		r.Println(output.FormatCodeBlock("sql", rule.SQL))
	}

	r.Println("")
	r.Header(2, "Dependencies")
	rows := make([][]string, 0, len(deps))
	for _, d := range deps {
		rows = append(rows, []string{d.QualifiedTable(), d.Column, string(d.Op)})
	}
	r.Table([]string{"Table", "Column", "Op"}, rows)
	return nil
}

func lockedBy(lock *core.RuleLock) string {
	if lock == nil {
		return ""
	}
	return lock.LockedBy
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newRulesAddCommand() *cobra.Command {
	flags := &RuleFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Example: `  leaprules rules add --name flag_large --parent 1 \
    --sql "UPDATE orders SET flagged = 1 WHERE amount > 1000"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rule := &core.Rule{CriticalScope: core.CriticalScopeNone}
			if err := flags.apply(cmd, rule); err != nil {
				return err
			}
			if rule.Critical && rule.CriticalScope == core.CriticalScopeNone {
				rule.CriticalScope = core.CriticalScopeGroup
			}
			if err := cmdCtx.Engine.SaveRule(cmd.Context(), rule, cmdCtx.Cfg.Actor); err != nil {
				return err
			}
			return reportSaved(cmdCtx.Renderer, rule, "created")
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newRulesEditCommand() *cobra.Command {
	flags := &RuleFlags{}
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an existing rule",
		Long: `Change fields of an existing rule. Only the flags given are updated.
Dependencies are re-extracted whenever the rule is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rule, err := cmdCtx.Engine.GetRule(id)
			if err != nil {
				return fmt.Errorf("rule %d: %w", id, err)
			}
			if err := flags.apply(cmd, rule); err != nil {
				return err
			}
			if err := cmdCtx.Engine.SaveRule(cmd.Context(), rule, cmdCtx.Cfg.Actor); err != nil {
				return err
			}
			return reportSaved(cmdCtx.Renderer, rule, "updated")
		},
	}
	flags.register(cmd)
	return cmd
}

func reportSaved(r *output.Renderer, rule *core.Rule, verb string) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(toRuleView(rule))
	}
	r.Success(fmt.Sprintf("Rule %d (%s) %s as %s", rule.ID, rule.Name, verb, rule.Operation))
	return nil
}

func newRulesImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update rules from a YAML file",
		Long: `Create or update rules from a YAML file. Rules are matched to existing
rules by name and parents are referenced by name, so the same file can be
imported repeatedly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			rf, err := engine.ParseRuleFile(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			res, err := cmdCtx.Engine.Import(cmd.Context(), rf, cmdCtx.Cfg.Actor)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(res)
			}
			r.Success(fmt.Sprintf("Imported %s: %d created, %d updated, %d conflicts, %d links",
				args[0], res.Created, res.Updated, res.Conflicts, res.Links))
			return nil
		},
	}
}

func newRulesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a rule",
		Long: `Delete a rule. Its children are kept and become root rules; the
command lists them so they can be re-parented.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			affected, err := cmdCtx.Engine.DeleteRule(id, cmdCtx.Cfg.Actor)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{"deleted": id, "affected_rules": affected.ChildRules, "affected_schedules": affected.Schedules})
			}
			r.Success(fmt.Sprintf("Rule %d deleted", id))
			if !affected.Empty() {
				r.Warning(fmt.Sprintf("Previously downstream rules: %s; schedules: %s",
					formatIDs(affected.ChildRules), formatIDs(affected.Schedules)))
			}
			return nil
		},
	}
}

func newRulesStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a rule through its lifecycle",
		Example: `  leaprules rules status 3 ACTIVE
  leaprules rules status 3 inactive`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			status, err := core.ParseRuleStatus(args[1])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rule, err := cmdCtx.Engine.SetRuleStatus(id, status, cmdCtx.Cfg.Actor)
			if err != nil {
				return err
			}
			return reportSaved(cmdCtx.Renderer, rule, "saved")
		},
	}
}

func newRulesConflictCommand() *cobra.Command {
	var priority int
	cmd := &cobra.Command{
		Use:   "conflict <rule-a> <rule-b>",
		Short: "Declare two rules as conflicting",
		Long: `Declare that two rules must not produce contradictory outcomes. After a
run, a pair with one passing and one failing rule is reported. A positive
priority makes rule-a win, a negative one rule-b.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			b, err := parseRuleID(args[1])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c := core.Conflict{RuleA: a, RuleB: b, Priority: priority}
			if err := cmdCtx.Engine.AddConflict(c, cmdCtx.Cfg.Actor); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Conflict %d/%d recorded", a, b))
			return nil
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "Which rule wins a contradiction (>0 first, <0 second)")
	return cmd
}

func newRulesLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link <source> <target>",
		Short: "Link a global critical rule to a rule it guards",
		Long: `Add a global critical link. When the source rule fails, the target and
its descendants are skipped even though they are not in the source's tree.
Requires admin rights.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			dst, err := parseRuleID(args[1])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			link := core.GlobalCriticalLink{SourceID: src, TargetID: dst}
			if err := cmdCtx.Engine.AddGlobalCriticalLink(link, cmdCtx.Cfg.Actor); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Rule %d now guards rule %d", src, dst))
			return nil
		},
	}
}
