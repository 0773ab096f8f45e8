package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/internal/impact"
	"github.com/spf13/cobra"
)

// ImpactOptions holds options for the impact command.
type ImpactOptions struct {
	Table string
}

// NewImpactCommand creates the impact command.
func NewImpactCommand() *cobra.Command {
	opts := &ImpactOptions{}

	cmd := &cobra.Command{
		Use:   "impact [rule-id]",
		Short: "Show what a change to a rule or table would affect",
		Long: `Show the rules and schedules downstream of a rule, or of every rule that
reads or writes a table. Run this before editing or deleting a rule.`,
		Example: `  # Everything below rule 2
  leaprules impact 2

  # Rules touching a table and their descendants
  leaprules impact --table sales.orders`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (opts.Table == "") {
				return errors.New("specify either a rule id or --table")
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if opts.Table != "" {
				return tableImpact(cmdCtx, opts.Table)
			}
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			return ruleImpact(cmdCtx, id)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "Table name, optionally schema-qualified")
	return cmd
}

func ruleImpact(cmdCtx *CommandContext, id int64) error {
	res, err := cmdCtx.Engine.Impact(id)
	if err != nil {
		return fmt.Errorf("rule %d: %w", id, err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(impactView(res))
	}

	r.Header(1, fmt.Sprintf("Impact of rule %d", id))
	renderImpact(cmdCtx, res)
	return nil
}

func tableImpact(cmdCtx *CommandContext, table string) error {
	res, err := cmdCtx.Engine.TableImpact(table)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"table":      table,
			"readers":    nonNil(res.Readers),
			"writers":    nonNil(res.Writers),
			"downstream": impactView(res.Downstream),
		})
	}

	r.Header(1, fmt.Sprintf("Impact of table %s", table))
	r.Println(output.FormatKeyValue("Readers", formatIDs(res.Readers)))
	r.Println(output.FormatKeyValue("Writers", formatIDs(res.Writers)))
	r.Println("")
	r.Header(2, "Downstream")
	renderImpact(cmdCtx, res.Downstream)
	return nil
}

func renderImpact(cmdCtx *CommandContext, res impact.Result) {
	r := cmdCtx.Renderer
	if res.Empty() {
		r.Muted("Nothing downstream")
		return
	}

	names := make(map[int64]string)
	if rules, err := cmdCtx.Engine.ListRules(); err == nil {
		for _, rule := range rules {
			names[rule.ID] = rule.Name
		}
	}

	rows := make([][]string, 0, len(res.ChildRules))
	for _, id := range res.ChildRules {
		rows = append(rows, []string{strconv.FormatInt(id, 10), names[id], strconv.Itoa(res.Depth[id])})
	}
	r.Table([]string{"ID", "Rule", "Depth"}, rows)
	r.Println(output.FormatKeyValue("Schedules", formatIDs(res.Schedules)))
}

func impactView(res impact.Result) map[string]any {
	return map[string]any{
		"rules":     nonNil(res.ChildRules),
		"schedules": nonNil(res.Schedules),
		"depth":     res.Depth,
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
