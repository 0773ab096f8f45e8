package commands

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewDepsCommand creates the deps command group.
func NewDepsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deps",
		Aliases: []string{"dependencies"},
		Short:   "Show or refresh extracted rule dependencies",
	}
	cmd.AddCommand(newDepsShowCommand(), newDepsRefreshCommand())
	return cmd
}

func newDepsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <rule-id>",
		Short: "List the tables and columns a rule reads and writes",
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

			deps, err := cmdCtx.Engine.Dependencies(id)
			if err != nil {
				return fmt.Errorf("rule %d: %w", id, err)
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(toDependencyViews(deps))
			}
			r.Header(1, fmt.Sprintf("Dependencies of rule %d", id))
			rows := make([][]string, 0, len(deps))
			for _, d := range deps {
				rows = append(rows, []string{d.QualifiedTable(), d.Column, string(d.Op)})
			}
			r.Table([]string{"Table", "Column", "Op"}, rows)
			return nil
		},
	}
}

func newDepsRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-extract dependencies for every rule",
		Long: `Re-extract dependencies for every rule. Rules whose SQL no longer parses
are reported and keep their previous dependencies.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := cmdCtx.Engine.RefreshDependencies(cmd.Context(), cmdCtx.Cfg.Actor)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			failed := make([]int64, 0, len(res.Batch.Errors))
			for id := range res.Batch.Errors {
				failed = append(failed, id)
			}
			slices.Sort(failed)

			if r.EffectiveMode() == output.ModeJSON {
				errs := make(map[string]string, len(failed))
				for _, id := range failed {
					errs[strconv.FormatInt(id, 10)] = res.Batch.Errors[id].Error()
				}
				return r.JSON(map[string]any{
					"updated":      res.Updated,
					"reclassified": res.Reclassified,
					"errors":       errs,
				})
			}

			for _, id := range failed {
				r.Warning(fmt.Sprintf("rule %d: %v", id, res.Batch.Errors[id]))
			}
			r.Success(fmt.Sprintf("Dependencies refreshed for %d rules (%d reclassified, %d failed)",
				res.Updated, res.Reclassified, len(failed)))
			return res.Err()
		},
	}
}
