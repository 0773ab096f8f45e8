package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "schedule [rule-id]",
		Short: "Plan a rule execution or list planned executions",
		Long: `Plan a rule execution at a given time, or list every schedule when no
rule is given. Impact analysis reports schedules of affected rules.`,
		Example: `  leaprules schedule 3 --at 2026-11-01T06:00:00Z
  leaprules schedule`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			r := cmdCtx.Renderer

			if len(args) == 1 {
				id, err := parseRuleID(args[0])
				if err != nil {
					return err
				}
				when := time.Now()
				if at != "" {
					if when, err = time.Parse(time.RFC3339, at); err != nil {
						return fmt.Errorf("invalid --at: %w", err)
					}
				}
				sch, err := cmdCtx.Engine.ScheduleRule(id, when, cmdCtx.Cfg.Actor)
				if err != nil {
					return err
				}
				r.Success(fmt.Sprintf("Schedule %d created for rule %d at %s", sch.ID, id, formatTime(sch.RunAt)))
				return nil
			}

			schedules, err := cmdCtx.Engine.Schedules()
			if err != nil {
				return err
			}
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(schedules)
			}
			r.Header(1, "Schedules")
			rows := make([][]string, 0, len(schedules))
			for _, s := range schedules {
				rows = append(rows, []string{
					strconv.FormatInt(s.ID, 10),
					strconv.FormatInt(s.RuleID, 10),
					formatTime(s.RunAt),
					string(s.Status),
				})
			}
			r.Table([]string{"ID", "Rule", "Run at", "Status"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Execution time (RFC 3339, default now)")
	return cmd
}
