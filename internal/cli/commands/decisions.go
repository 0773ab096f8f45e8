package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewDecisionsCommand creates the decisions command group.
func NewDecisionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Work with decision tables",
		Long: `Decision tables are YAML files in the decisions directory. Each table
evaluates CEL conditions against the rows of a source query; rules reference
a table with --decision-table instead of carrying SQL.`,
	}
	cmd.AddCommand(newDecisionsListCommand(), newDecisionsEvalCommand(), newDecisionsWatchCommand())
	return cmd
}

func newDecisionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List loaded decision tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			reg := cmdCtx.Engine.Decisions()
			ids := reg.IDs()

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				type tableView struct {
					ID        string `json:"id"`
					Name      string `json:"name,omitempty"`
					HitPolicy string `json:"hit_policy"`
					Rules     int    `json:"rules"`
					Path      string `json:"path,omitempty"`
				}
				views := make([]tableView, 0, len(ids))
				for _, id := range ids {
					t, _ := reg.Get(id)
					views = append(views, tableView{ID: t.ID, Name: t.Name, HitPolicy: string(t.HitPolicy), Rules: len(t.Rules), Path: t.Path})
				}
				return r.JSON(views)
			}

			r.Header(1, fmt.Sprintf("Decision tables (%d)", len(ids)))
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				t, _ := reg.Get(id)
				rows = append(rows, []string{t.ID, t.Name, string(t.HitPolicy), strconv.Itoa(len(t.Rules)), t.Path})
			}
			r.Table([]string{"ID", "Name", "Hit policy", "Rules", "File"}, rows)
			return nil
		},
	}
}

func newDecisionsEvalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <table-id>",
		Short: "Evaluate a decision table against the target database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := cmdCtx.Engine.Decisions().Evaluate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{
					"table":        args[0],
					"passed":       out.Passed,
					"message":      out.Message,
					"record_count": out.RecordCount,
					"rows":         out.Rows,
				})
			}
			status := "PASSED"
			if !out.Passed {
				status = "FAILED"
			}
			r.StatusLine(args[0], status, out.Message)
			return nil
		},
	}
}

func newDecisionsWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload decision tables as files change",
		Long: `Watch the decisions directory and recompile tables whenever a file
changes. Compile errors are printed and the previous tables stay loaded.
Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			r := cmdCtx.Renderer
			r.Muted(fmt.Sprintf("Watching %s (%d tables loaded)", cmdCtx.Cfg.DecisionsDir, len(cmdCtx.Engine.Decisions().IDs())))
			return cmdCtx.Engine.WatchDecisions(ctx, func(err error) {
				if err != nil {
					r.Error(err.Error())
					return
				}
				r.Success(fmt.Sprintf("Reloaded %d tables", len(cmdCtx.Engine.Decisions().IDs())))
			})
		},
	}
}
