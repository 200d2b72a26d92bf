package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-helper/internal/app"
	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
	"github.com/rancher/cherry-pick-helper/internal/refs"
	"github.com/rancher/cherry-pick-helper/internal/repo"
	"github.com/rancher/cherry-pick-helper/internal/session"
)

func (a *App) applyCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "apply <source> <target> [hash...]",
		Short: "Cherry-pick the given commits of <source> onto <target>",
		Long: `Check out <target> and cherry-pick the given commits in order. Every hash
must be one of the commits 'diff <source> <target>' lists; abbreviations of at
least 7 characters are accepted. The run stops at the first conflict and leaves
the repository in the conflicted state.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return errors.New("requires <source> and <target>")
			}
			switch {
			case all && len(args) > 2:
				return errors.New("pass commit hashes or --all, not both")
			case !all && len(args) == 2:
				return errors.New("no commits given: pass commit hashes or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target, hashes := refs.NormalizeBranch(args[0]), refs.NormalizeBranch(args[1]), args[2:]
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				ctx := cmd.Context()
				orch := r.Orchestrator()
				if all {
					candidates, err := orch.DiffForCherryPick(ctx, h, source, target)
					if err != nil {
						return err
					}
					if len(candidates) == 0 {
						_, err := fmt.Fprintf(cmd.OutOrStdout(), "Nothing to cherry-pick: %s already has every commit of %s.\n", target, source)
						return err
					}
					hashes = commitHashes(candidates)
				}

				plan, err := orch.BuildPlan(ctx, h, source, target, hashes)
				if err != nil {
					return err
				}
				result, err := orch.ApplyCherryPickPlan(ctx, h, plan)
				if printErr := a.printApplyResult(cmd.OutOrStdout(), result); printErr != nil && err == nil {
					err = printErr
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Cherry-pick every commit the diff lists")
	return cmd
}

func (a *App) pickCmd() *cobra.Command {
	var (
		all bool
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "pick <source> <target> [hash...]",
		Short: "Interactively choose commits of <source> and cherry-pick them onto <target>",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				p := &picker{
					app:    a,
					orch:   r.Orchestrator(),
					repo:   h,
					sess:   session.New(),
					in:     bufio.NewScanner(cmd.InOrStdin()),
					out:    cmd.OutOrStdout(),
					prompt: cmd.ErrOrStderr(),
				}
				return p.run(cmd, refs.NormalizeBranch(args[0]), refs.NormalizeBranch(args[1]), args[2:], all, yes)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Select every listed commit")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation before applying")
	return cmd
}

// picker drives one session through branches, diff, selection and apply.
type picker struct {
	app    *App
	orch   *orchestrator.Orchestrator
	repo   repo.Handle
	sess   *session.Session
	in     *bufio.Scanner
	out    io.Writer
	prompt io.Writer
}

func (p *picker) run(cmd *cobra.Command, source, target string, hashes []string, all, yes bool) error {
	ctx := cmd.Context()

	branches, err := p.orch.ListBranches(ctx, p.repo)
	if err != nil {
		return err
	}
	if err := p.sess.LoadBranches(branches); err != nil {
		return err
	}
	if !hasBranch(branches, source) {
		return fmt.Errorf("unknown source branch %q", source)
	}
	if !hasBranch(branches, target) {
		return fmt.Errorf("unknown target branch %q", target)
	}

	candidates, err := p.orch.DiffForCherryPick(ctx, p.repo, source, target)
	if err != nil {
		return err
	}
	if err := p.sess.ComputeDiff(source, target, candidates); err != nil {
		return err
	}
	if len(candidates) == 0 {
		_, err := fmt.Fprintf(p.out, "Nothing to cherry-pick: %s already has every commit of %s.\n", target, source)
		return err
	}

	switch {
	case all:
		hashes = commitHashes(candidates)
	case len(hashes) == 0:
		hashes, err = p.choose(candidates)
		if err != nil {
			return err
		}
		if len(hashes) == 0 {
			_, err := fmt.Fprintln(p.out, "No commits selected.")
			return err
		}
	}

	plan, err := p.orch.BuildPlan(ctx, p.repo, source, target, hashes)
	if err != nil {
		return err
	}
	if err := p.sess.SelectPlan(plan); err != nil {
		return err
	}

	if !yes && !p.confirm(fmt.Sprintf("Cherry-pick %d commit(s) onto %s?", len(plan.Commits), target)) {
		_, err := fmt.Fprintln(p.out, "Aborted.")
		return err
	}

	if err := p.sess.Begin(); err != nil {
		return err
	}
	result, applyErr := p.orch.ApplyCherryPickPlan(ctx, p.repo, plan)
	if err := p.sess.Finish(result, applyErr); err != nil {
		return err
	}
	if err := p.app.printApplyResult(p.out, result); err != nil && applyErr == nil {
		return err
	}
	return applyErr
}

func (p *picker) choose(candidates []orchestrator.Commit) ([]string, error) {
	rows := make([]table.Row, 0, len(candidates))
	for i, c := range candidates {
		rows = append(rows, table.Row{i + 1, yellow(shortHash(c.Hash)), c.Author, oneLine(c.Message, 72)})
	}
	renderTable(p.prompt, formatTable, table.Row{"#", "HASH", "AUTHOR", "MESSAGE"}, rows)

	_, _ = fmt.Fprint(p.prompt, "Select commits (e.g. 1,3-5 or all): ")
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return nil, fmt.Errorf("read selection: %w", err)
		}
		return nil, nil
	}
	indexes, err := parseSelection(p.in.Text(), len(candidates))
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(indexes))
	for _, i := range indexes {
		hashes = append(hashes, candidates[i].Hash)
	}
	return hashes, nil
}

func (p *picker) confirm(message string) bool {
	_, _ = fmt.Fprintf(p.prompt, "%s [y/N] ", message)
	if p.in.Scan() {
		answer := strings.TrimSpace(strings.ToLower(p.in.Text()))
		return answer == "y" || answer == "yes"
	}
	return false
}

// parseSelection turns "1,3-5" into zero-based indexes in ascending order,
// without duplicates. "all" selects 1..n.
func parseSelection(input string, n int) ([]int, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return nil, nil
	}
	selected := make([]bool, n)
	if input == "all" || input == "*" {
		for i := range selected {
			selected[i] = true
		}
	} else {
		for _, part := range strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' }) {
			lo, hi, isRange := strings.Cut(part, "-")
			if !isRange {
				hi = lo
			}
			from, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("invalid selection %q", part)
			}
			to, err := strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("invalid selection %q", part)
			}
			if from < 1 || to > n || from > to {
				return nil, fmt.Errorf("selection %q out of range 1-%d", part, n)
			}
			for i := from; i <= to; i++ {
				selected[i-1] = true
			}
		}
	}

	var out []int
	for i, ok := range selected {
		if ok {
			out = append(out, i)
		}
	}
	return out, nil
}

func hasBranch(branches []orchestrator.Branch, name string) bool {
	for _, b := range branches {
		if b.Name == name {
			return true
		}
	}
	return false
}

func commitHashes(commits []orchestrator.Commit) []string {
	hashes := make([]string, 0, len(commits))
	for _, c := range commits {
		hashes = append(hashes, c.Hash)
	}
	return hashes
}

type applyResultJSON struct {
	RunID     string   `json:"run_id"`
	Target    string   `json:"target"`
	Applied   []string `json:"applied"`
	Failed    string   `json:"failed,omitempty"`
	Remaining []string `json:"remaining,omitempty"`
	Clean     bool     `json:"clean"`
}

func (a *App) printApplyResult(w io.Writer, r orchestrator.ApplyResult) error {
	f := a.outputFormat()
	if f == formatJSON {
		applied := r.Applied
		if applied == nil {
			applied = []string{}
		}
		return printJSON(w, applyResultJSON{
			RunID: r.RunID, Target: r.Target, Applied: applied, Failed: r.Failed, Remaining: r.Remaining, Clean: r.Clean,
		})
	}
	if r.Count() == 0 && r.Failed == "" {
		return nil
	}

	rows := make([]table.Row, 0, len(r.Applied)+1+len(r.Remaining))
	for _, hash := range r.Applied {
		rows = append(rows, table.Row{shortHash(hash), green("applied")})
	}
	if r.Failed != "" {
		rows = append(rows, table.Row{shortHash(r.Failed), red("conflict")})
	}
	for _, hash := range r.Remaining {
		rows = append(rows, table.Row{shortHash(hash), "not attempted"})
	}
	if len(rows) > 0 {
		renderTable(w, f, table.Row{"COMMIT", "RESULT"}, rows)
	}

	summary := fmt.Sprintf("Applied %d commit(s) onto %s.", r.Count(), r.Target)
	if r.Failed == "" && !r.Clean {
		summary += " " + yellow("Working tree is not clean afterwards; check 'git status'.")
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}
