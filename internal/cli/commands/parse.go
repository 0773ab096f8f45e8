package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/leaprules/internal/cli/output"
	"github.com/leapstack-labs/leaprules/pkg/sqlref"
	"github.com/spf13/cobra"
)

// ParseOptions holds options for the parse command.
type ParseOptions struct {
	File        string
	Interactive bool
}

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	opts := &ParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse [sql]",
		Short: "Show the tables, columns and CTEs a SQL statement references",
		Long: `Extract references from one SQL statement without storing anything.

Prints the statement's operation, tables, aliases, CTEs, selected columns and
the dependency rows a rule with this SQL would record.`,
		Example: `  leaprules parse "SELECT o.id FROM sales.orders o JOIN customers c ON c.id = o.cid"
  leaprules parse -f rule.sql
  echo "DELETE FROM staging" | leaprules parse
  leaprules parse -i`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutEngine(cmd)
			if opts.Interactive {
				return runParseREPL(cmd, cmdCtx)
			}

			sql, err := readSQLInput(cmd, args, opts.File)
			if err != nil {
				return err
			}
			return renderParse(cmdCtx.Renderer, sql, true)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read the statement from a file")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "Start an interactive session")
	cmd.MarkFlagsMutuallyExclusive("file", "interactive")

	return cmd
}

func readSQLInput(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("pass SQL as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read SQL file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no SQL given")
	}
	return string(data), nil
}

type parseView struct {
	Operation    string              `json:"operation"`
	Tables       []tableRefView      `json:"tables"`
	Aliases      map[string]string   `json:"aliases"`
	CTEs         map[string][]string `json:"ctes"`
	Columns      []string            `json:"columns"`
	Target       string              `json:"target,omitempty"`
	Dependencies []dependencyView    `json:"dependencies"`
}

type tableRefView struct {
	Name       string `json:"name"`
	Alias      string `json:"alias,omitempty"`
	InSubquery bool   `json:"in_subquery,omitempty"`
}

func toParseView(res *sqlref.ParseResult) parseView {
	v := parseView{
		Operation:    res.Operation.String(),
		Aliases:      make(map[string]string, len(res.Aliases)),
		CTEs:         make(map[string][]string, len(res.CTEs)),
		Columns:      res.Columns,
		Dependencies: toDependencyViews(res.Dependencies(0)),
	}
	for _, t := range res.Tables {
		v.Tables = append(v.Tables, tableRefView{Name: t.Qualified().String(), Alias: t.Alias, InSubquery: t.InSubquery})
	}
	for alias, name := range res.Aliases {
		v.Aliases[alias] = name.String()
	}
	for name, refs := range res.CTEs {
		names := make([]string, 0, len(refs))
		for _, t := range refs {
			names = append(names, t.Qualified().String())
		}
		v.CTEs[name] = names
	}
	if res.Target != nil {
		v.Target = res.Target.Qualified().String()
	}
	return v
}

// renderParse extracts sql and prints the result. withDeps adds the
// dependency rows.
func renderParse(r *output.Renderer, sql string, withDeps bool) error {
	res, err := sqlref.Extract(sql)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(toParseView(res))
	}

	r.Println(output.FormatKeyValue("Operation", res.Operation.String()))
	if res.Target != nil {
		r.Println(output.FormatKeyValue("Target", res.Target.Qualified().String()))
	}
	if len(res.Columns) > 0 {
		r.Println(output.FormatKeyValue("Columns", strings.Join(res.Columns, ", ")))
	}
	for _, name := range res.CTEOrder {
		refs := make([]string, 0, len(res.CTEs[name]))
		for _, t := range res.CTEs[name] {
			refs = append(refs, t.Qualified().String())
		}
		r.Println(output.FormatKeyValue("CTE "+name, orDash(strings.Join(refs, ", "))))
	}
	r.Println("")

	rows := make([][]string, 0, len(res.Tables))
	for _, t := range res.Tables {
		scope := "top"
		if t.InSubquery {
			scope = "subquery"
		}
		rows = append(rows, []string{t.Qualified().String(), t.Alias, scope})
	}
	r.Table([]string{"Table", "Alias", "Scope"}, rows)

	if withDeps {
		r.Println("")
		deps := res.Dependencies(0)
		depRows := make([][]string, 0, len(deps))
		for _, d := range deps {
			depRows = append(depRows, []string{d.QualifiedTable(), d.Column, string(d.Op)})
		}
		r.Table([]string{"Table", "Column", "Op"}, depRows)
	}
	return nil
}
