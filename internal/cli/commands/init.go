package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new leaprules project",
		Long: `Initialize a new leaprules project with default directory structure and configuration.

This creates:
  - leaprules.yaml configuration file
  - rules.yaml for rules imported with 'leaprules rules import'
  - decisions/ directory for decision tables
  - seeds/ directory for CSV fixture data

Use --example to create a working demo with seed data, a small rule forest,
a conflict, a global critical link and a decision table.`,
		Example: `  # Initialize in current directory
  leaprules init

  # Initialize with a full working example
  leaprules init --example

  # Initialize in a new directory
  leaprules init my-rules --example

  # Force overwrite existing config
  leaprules init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			r := NewCommandContextWithoutEngine(cmd).Renderer
			if example {
				return runInitTemplate(r, "example", dir, force)
			}
			return runInitTemplate(r, "minimal", dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example project with seeds, rules and a decision table")

	return cmd
}

func runInitTemplate(r *output.Renderer, template, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "leaprules.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("leaprules.yaml already exists. Use --force to overwrite")
	}

	if err := copyTemplate(template, dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, err := listTemplateFiles(template)
	if err != nil {
		return err
	}
	groups := groupTemplateFiles(files)

	for _, g := range []struct{ key, title string }{
		{"config", "Configuration"},
		{"rules", "Rules"},
		{"decisions", "Decision tables"},
		{"seeds", "Seeds"},
	} {
		if len(groups[g.key]) == 0 {
			continue
		}
		r.Header(2, g.title)
		for _, f := range groups[g.key] {
			r.StatusLine(f, "PASSED", "")
		}
		r.Println("")
	}

	if template == "example" {
		r.Success("leaprules project initialized with example data!")
		r.Println("")
		r.Println("Next steps:")
		r.Println("  leaprules seed                                   Load CSV data into the target")
		r.Println("  leaprules rules import rules.yaml --actor admin  Create the example rules")
		r.Println("  leaprules run                                    Simulate the rule forest")
		r.Println("  leaprules impact --table orders                  See what depends on a table")
		return nil
	}

	r.Success("leaprules project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Point target in leaprules.yaml at your database")
	r.Println("  2. Describe rules in rules.yaml and run 'leaprules rules import rules.yaml'")
	r.Println("  3. Run 'leaprules run' to simulate them")
	return nil
}
