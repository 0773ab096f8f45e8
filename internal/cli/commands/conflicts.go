package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts [run-id]",
		Short: "Report conflicting rule outcomes for a run",
		Long: `Compare the outcomes of declared conflicting rule pairs in a run. Pairs
where one rule passed and the other failed are contradictory; the pair's
priority decides which outcome stands. Defaults to the latest run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runID := ""
			if len(args) == 1 {
				runID = args[0]
			} else {
				runs, err := cmdCtx.Engine.RunHistory(1)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					return errors.New("no runs recorded yet")
				}
				runID = runs[0].ID
			}

			reports, err := cmdCtx.Engine.Conflicts(runID)
			if err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(toConflictViews(reports))
			}

			r.Header(1, fmt.Sprintf("Conflicts in run %s", runID))
			rows := make([][]string, 0, len(reports))
			for _, v := range toConflictViews(reports) {
				winner := "-"
				if v.Contradictory {
					winner = strconv.FormatInt(v.Winner, 10)
				}
				rows = append(rows, []string{
					strconv.FormatInt(v.RuleA, 10) + " / " + strconv.FormatInt(v.RuleB, 10),
					v.StatusA + " / " + v.StatusB,
					strconv.Itoa(v.Priority),
					strconv.FormatBool(v.Contradictory),
					winner,
				})
			}
			r.Table([]string{"Rules", "Outcomes", "Priority", "Contradictory", "Winner"}, rows)
			return nil
		},
	}
}
