package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	gh "github.com/rancher/cherry-pick-helper/internal/github"
	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
)

type outputFormat string

const (
	formatTable    outputFormat = "table"
	formatJSON     outputFormat = "json"
	formatMarkdown outputFormat = "markdown"
)

func parseFormat(raw string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", formatTable:
		return formatTable, nil
	case formatJSON, formatMarkdown:
		return f, nil
	case "md":
		return formatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table, json or markdown)", raw)
	}
}

func (a *App) outputFormat() outputFormat {
	f, _ := parseFormat(a.format)
	return f
}

var colorDisabled = sync.OnceValue(func() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
})

// setColors turns ANSI colors on for terminal tables. NO_COLOR always wins;
// JSON and markdown output never carry escape codes.
func setColors(enabled bool) {
	if enabled && !colorDisabled() {
		text.EnableColors()
		return
	}
	text.DisableColors()
}

func colorize(s string, c text.Colors) string {
	return c.Sprint(s)
}

func green(s string) string { return colorize(s, text.Colors{text.FgGreen}) }
func yellow(s string) string { return colorize(s, text.Colors{text.FgYellow}) }
func red(s string) string { return colorize(s, text.Colors{text.FgRed, text.Bold}) }

var helperTableStyle = table.Style{
	Name: "cherry-pick-helper",
	Box: table.BoxStyle{
		PaddingLeft:  "",
		PaddingRight: "  ",
	},
	Options: table.Options{
		DrawBorder:      false,
		SeparateHeader:  false,
		SeparateRows:    false,
		SeparateColumns: false,
	},
}

// renderTable writes header and rows as a plain table or, for markdown, as a
// GitHub-flavored markdown table.
func renderTable(w io.Writer, f outputFormat, header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(header)
	tw.AppendRows(rows)

	if f == formatMarkdown {
		tw.RenderMarkdown()
		return
	}
	tw.SetStyle(helperTableStyle)
	tw.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortHash(hash string) string {
	if len(hash) > 10 {
		return hash[:10]
	}
	return hash
}

func oneLine(s string, limit int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if r := []rune(s); limit > 0 && len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

// printError reports err on w. Orchestrator errors are broken out by step,
// commit and the raw git output.
func printError(w io.Writer, err error) {
	var oe *orchestrator.Error
	if !errors.As(err, &oe) {
		_, _ = fmt.Fprintf(w, "%s %v\n", red("error:"), err)
		if gh.IsRetryable(err) {
			_, _ = fmt.Fprintf(w, "%s GitHub is rate limiting or unreachable; try again later\n", yellow("hint:"))
		}
		return
	}

	_, _ = fmt.Fprintf(w, "%s %s failed (%s)\n", red("error:"), oe.Op, oe.Kind)
	if oe.Step != "" {
		_, _ = fmt.Fprintf(w, "  step:   %s\n", oe.Step)
	}
	if oe.Commit != "" {
		_, _ = fmt.Fprintf(w, "  commit: %s\n", oe.Commit)
	}
	if oe.Err != nil {
		_, _ = fmt.Fprintf(w, "  cause:  %v\n", oe.Err)
	}
	if detail := strings.TrimSpace(oe.Detail); detail != "" {
		_, _ = fmt.Fprintln(w, "  output:")
		for _, line := range strings.Split(detail, "\n") {
			_, _ = fmt.Fprintf(w, "    %s\n", line)
		}
	}
	if hint := hintFor(oe); hint != "" {
		_, _ = fmt.Fprintf(w, "%s %s\n", yellow("hint:"), hint)
	}
}

func hintFor(oe *orchestrator.Error) string {
	switch oe.Kind {
	case orchestrator.KindDirtyWorkingTree:
		return "commit, stash or discard the listed changes and try again"
	case orchestrator.KindConflict:
		return "resolve the conflict and run 'git cherry-pick --continue', or 'git cherry-pick --abort' to give up"
	case orchestrator.KindInvalidRepository:
		return "check the repository path with 'cherry-pick-helper config show'"
	}
	return ""
}
