package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command group.
func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}
	cmd.AddCommand(newRunsListCommand(), newRunsShowCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := cmdCtx.Engine.RunHistory(limit)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				views := make([]runView, 0, len(runs))
				for _, run := range runs {
					views = append(views, toRunView(run, nil))
				}
				return r.JSON(views)
			}

			r.Header(1, "Runs")
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.Environment,
					strconv.FormatBool(run.DryRun),
					string(run.Status),
					formatTime(run.StartedAt),
					run.Error,
				})
			}
			r.Table([]string{"ID", "Env", "Dry run", "Status", "Started", "Error"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show per-rule results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			run, results, err := cmdCtx.Engine.RunDetail(args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			return renderRunDetail(cmdCtx.Renderer, run, results)
		},
	}
}

func renderRunDetail(r *output.Renderer, run *core.Run, results []*core.ExecutionResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(toRunView(run, results))
	}

	r.Header(1, "Run "+run.ID)
	r.Println(output.FormatKeyValue("Environment", run.Environment))
	r.Println(output.FormatKeyValue("Dry run", strconv.FormatBool(run.DryRun)))
	r.Println(output.FormatKeyValue("Status", string(run.Status)))
	r.Println(output.FormatKeyValue("Started", formatTime(run.StartedAt)))
	if run.CompletedAt != nil {
		r.Println(output.FormatKeyValue("Completed", formatTime(*run.CompletedAt)))
	}
	if run.Error != "" {
		r.Println(output.FormatKeyValue("Error", run.Error))
	}
	r.Println("")
	r.Table(resultHeader, resultRows(results))
	return nil
}
