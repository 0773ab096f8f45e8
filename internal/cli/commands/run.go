package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/internal/engine"
	"github.com/leapstack-labs/leaprules/internal/executor"
	"github.com/leapstack-labs/leaprules/pkg/core"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Live     bool
	DryRun   bool
	RuleIDs  []int64
	FailExit bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the rule forest against the target database",
		Long: `Execute rules breadth-first from the roots of the rule forest.

Children of a failed critical rule are skipped, as are the targets of global
critical links whose source failed. Runs are dry by default: every statement
executes inside a transaction that is rolled back. Use --live to commit.

Use --rule to run only some rules; their descendants are included.`,
		Example: `  # Simulate every runnable rule
  leaprules run

  # Commit changes
  leaprules run --live

  # Run rule 3 and everything below it
  leaprules run --rule 3

  # Machine-readable result
  leaprules run --output json`,
		Aliases: []string{"simulate"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Live, "live", false, "Commit statement effects instead of rolling back")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Force a dry run even when dry_run is disabled in config")
	cmd.Flags().Int64SliceVarP(&opts.RuleIDs, "rule", "r", nil, "Rule IDs to run (with descendants)")
	cmd.Flags().BoolVar(&opts.FailExit, "fail-on-violation", false, "Exit with an error when any rule fails")
	cmd.MarkFlagsMutuallyExclusive("live", "dry-run")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	dryRun := cmdCtx.Cfg.DryRun
	switch {
	case opts.Live:
		dryRun = false
	case opts.DryRun:
		dryRun = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	start := time.Now()
	res, runErr := cmdCtx.Engine.Run(ctx, engine.RunOptions{
		DryRun:  dryRun,
		RuleIDs: opts.RuleIDs,
		Actor:   cmdCtx.Cfg.Actor,
	})
	if res == nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	if err := renderRunResult(cmdCtx.Renderer, res, time.Since(start)); err != nil {
		return err
	}

	if runErr != nil {
		if engine.IsCancelled(runErr) {
			return fmt.Errorf("run %s cancelled", res.Run.ID)
		}
		return fmt.Errorf("run %s: %w", res.Run.ID, runErr)
	}
	if _, failed, _ := res.Report.Counts(); failed > 0 && opts.FailExit {
		return fmt.Errorf("%d rules failed", failed)
	}
	return nil
}

func renderRunResult(r *output.Renderer, res *engine.RunResult, elapsed time.Duration) error {
	results := append(append([]*core.ExecutionResult{}, res.Report.Results...), res.Report.Skipped...)
	passed, failed, skipped := res.Report.Counts()

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			runView
			Passed    int            `json:"passed"`
			Failed    int            `json:"failed"`
			Skipped   int            `json:"skipped"`
			Conflicts []conflictView `json:"conflicts,omitempty"`
		}{
			runView:   toRunView(res.Run, results),
			Passed:    passed,
			Failed:    failed,
			Skipped:   skipped,
			Conflicts: toConflictViews(res.Conflicts),
		})
	}

	mode := "dry run"
	if !res.Run.DryRun {
		mode = "live"
	}
	r.Header(1, fmt.Sprintf("Run %s (%s, %s)", res.Run.ID, mode, res.Run.Environment))

	for _, e := range results {
		detail := e.Message
		if e.Status == core.RuleRunSkipped && e.SkippedBy != 0 {
			detail = "skipped: rule " + strconv.FormatInt(e.SkippedBy, 10) + " failed"
		}
		r.StatusLine(fmt.Sprintf("%d %s", e.RuleID, e.RuleName), string(e.Status), detail)
	}
	r.Println("")

	for _, c := range contradictory(res.Conflicts) {
		r.Warning(describeConflict(c))
	}

	summary := fmt.Sprintf("%d passed, %d failed, %d skipped in %s", passed, failed, skipped, elapsed.Round(time.Millisecond))
	switch {
	case res.Report.Cancelled:
		r.Warning("Run cancelled: " + summary)
	case failed > 0:
		r.Error(summary)
	default:
		r.Success(summary)
	}
	return nil
}

func contradictory(reports []executor.ConflictReport) []executor.ConflictReport {
	var out []executor.ConflictReport
	for _, c := range reports {
		if c.Contradictory() {
			out = append(out, c)
		}
	}
	return out
}

func describeConflict(c executor.ConflictReport) string {
	return fmt.Sprintf("Rules %d and %d disagree; rule %d takes precedence",
		c.Conflict.RuleA, c.Conflict.RuleB, c.Winner().RuleID)
}

type conflictView struct {
	RuleA         int64  `json:"rule_a"`
	RuleB         int64  `json:"rule_b"`
	Priority      int    `json:"priority"`
	StatusA       string `json:"status_a"`
	StatusB       string `json:"status_b"`
	Contradictory bool   `json:"contradictory"`
	Winner        int64  `json:"winner,omitempty"`
}

func toConflictViews(reports []executor.ConflictReport) []conflictView {
	out := make([]conflictView, 0, len(reports))
	for _, c := range reports {
		v := conflictView{
			RuleA:         c.Conflict.RuleA,
			RuleB:         c.Conflict.RuleB,
			Priority:      c.Conflict.Priority,
			StatusA:       string(c.A.Status),
			StatusB:       string(c.B.Status),
			Contradictory: c.Contradictory(),
		}
		if v.Contradictory {
			v.Winner = c.Winner().RuleID
		}
		out = append(out, v)
	}
	return out
}
