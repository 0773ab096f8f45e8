package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/internal/engine"
	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load CSV fixture tables into the target database",
		Long: `Load every CSV file in the seeds directory into the target database.
Each file replaces the table named after it.

Seeds give rules something to run against in development and tests.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Load all seeds
  leaprules seed

  # Load seeds from a specific directory
  leaprules seed --seeds-dir ./fixtures`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd)
		},
	}

	return cmd
}

func runSeed(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	seedsDir := cmdCtx.Cfg.SeedsDir

	loaded, err := cmdCtx.Engine.LoadSeeds(cmd.Context(), seedsDir)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if loaded == nil {
			loaded = []engine.SeedResult{}
		}
		return r.JSON(loaded)
	}

	r.Header(1, "Seeds")
	if len(loaded) == 0 {
		r.Muted("No seed files found in " + seedsDir)
		return nil
	}

	var total int64
	for _, s := range loaded {
		r.StatusLine(s.Table, "PASSED", strconv.FormatInt(s.Rows, 10)+" rows")
		total += s.Rows
	}
	r.Println("")
	r.Success(fmt.Sprintf("Loaded %d tables (%d rows) from %s", len(loaded), total, seedsDir))
	return nil
}
