package commands

import (
	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Long:  `Show recent changes to rules, locks, conflicts and runs, newest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := cmdCtx.Engine.AuditLog(limit)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				type entryView struct {
					ID        string `json:"id"`
					Action    string `json:"action"`
					Entity    string `json:"entity"`
					RecordID  string `json:"record_id"`
					Actor     string `json:"actor"`
					Old       string `json:"old,omitempty"`
					New       string `json:"new,omitempty"`
					Timestamp string `json:"timestamp"`
				}
				views := make([]entryView, 0, len(entries))
				for _, e := range entries {
					views = append(views, entryView{
						ID: e.ID, Action: e.Action, Entity: e.Entity, RecordID: e.RecordID,
						Actor: e.Actor, Old: e.Old, New: e.New,
						Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
					})
				}
				return r.JSON(views)
			}

			r.Header(1, "Audit log")
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{formatTime(e.Timestamp), e.Actor, e.Action, e.Entity, e.RecordID})
			}
			r.Table([]string{"Time", "Actor", "Action", "Entity", "Record"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	return cmd
}
