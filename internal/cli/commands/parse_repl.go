package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = "leaprules> "
	replContPrompt = "      ...> "
)

func runParseREPL(cmd *cobra.Command, cmdCtx *CommandContext) error {
	// Setup history file (project-local)
	historyFile := ""
	if cmdCtx.Cfg.StatePath != "" && cmdCtx.Cfg.StatePath != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(cmdCtx.Cfg.StatePath), "parse_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newKeywordCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "leaprules SQL reference explorer")
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	showDeps := true
	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			quit := handleParseDotCommand(cmd, line, &showDeps)
			if quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString("\n")
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		sql := buf.String()
		buf.Reset()
		if err := renderParse(cmdCtx.Renderer, sql, showDeps); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

// handleParseDotCommand runs a dot-command and reports whether to exit.
func handleParseDotCommand(cmd *cobra.Command, line string, showDeps *bool) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		printParseREPLHelp(cmd.OutOrStdout())
	case ".deps":
		*showDeps = !*showDeps
		state := "off"
		if *showDeps {
			state = "on"
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dependency rows %s\n", state)
	case ".clear":
		_, _ = fmt.Fprint(cmd.OutOrStdout(), "\033[H\033[2J")
	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", line)
	}
	return false
}

func printParseREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .deps           Toggle dependency rows
  .clear          Clear the screen
  .quit / .exit   Exit

Tips:
  - Statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completes SQL keywords
`
	_, _ = fmt.Fprintln(w, help)
}

// newKeywordCompleter completes statement keywords and dot-commands.
func newKeywordCompleter() *readline.PrefixCompleter {
	keywords := []string{
		"SELECT", "INSERT INTO", "UPDATE", "DELETE FROM", "WITH",
		".help", ".deps", ".clear", ".quit", ".exit",
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(keywords))
	for _, k := range keywords {
		items = append(items, readline.PcItem(k))
	}
	return readline.NewPrefixCompleter(items...)
}
