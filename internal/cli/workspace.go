package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-helper/internal/app"
	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
	"github.com/rancher/cherry-pick-helper/internal/refs"
	"github.com/rancher/cherry-pick-helper/internal/repo"
)

func (a *App) syncCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "sync <branch>",
		Short: "Reset a local branch to its remote counterpart",
		Long: `Fetch <branch>, check it out and hard-reset it to origin/<branch>.
Local commits and uncommitted changes on the branch are discarded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch := refs.NormalizeBranch(args[0])
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				remote := r.Config().Remote
				if err := checkRemoteBranch(cmd.Context(), r, h, branch); err != nil {
					return err
				}
				if !yes {
					prompt := fmt.Sprintf("Reset %s to %s/%s? Local commits and changes on it will be lost.", branch, remote, branch)
					if !confirmPrompt(cmd, prompt) {
						_, err := fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
						return err
					}
				}
				if err := r.Orchestrator().SyncBranch(cmd.Context(), h, branch); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", green(fmt.Sprintf("%s now matches %s/%s", branch, remote, branch)))
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func (a *App) checkoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "checkout <branch>",
		Aliases: []string{"co"},
		Short:   "Check out a branch (the working tree must be clean)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch := refs.NormalizeBranch(args[0])
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				if err := r.Orchestrator().CheckoutBranch(cmd.Context(), h, branch); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Switched to %s\n", branch)
				return err
			})
		},
	}
}

func (a *App) pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Fast-forward the current branch from the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				if err := r.Orchestrator().Pull(cmd.Context(), h); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Up to date.")
				return err
			})
		},
	}
}

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current branch and uncommitted changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				st, err := r.Orchestrator().Status(cmd.Context(), h)
				if err != nil {
					return err
				}
				return a.printStatus(cmd.OutOrStdout(), st)
			})
		},
	}
}

func (a *App) currentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the current branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				branch, err := r.Orchestrator().CurrentBranch(cmd.Context(), h)
				if err != nil {
					return err
				}
				if a.outputFormat() == formatJSON {
					return printJSON(cmd.OutOrStdout(), map[string]string{"branch": branch})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), branch)
				return err
			})
		},
	}
}

type changeJSON struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Code string `json:"code"`
}

type statusJSON struct {
	Branch   string       `json:"branch"`
	Detached bool         `json:"detached"`
	Clean    bool         `json:"clean"`
	Changes  []changeJSON `json:"changes"`
}

func (a *App) printStatus(w io.Writer, st orchestrator.RepoStatus) error {
	f := a.outputFormat()
	if f == formatJSON {
		out := statusJSON{Branch: st.CurrentBranch, Detached: st.Detached, Clean: st.Clean, Changes: make([]changeJSON, 0, len(st.Changes))}
		for _, c := range st.Changes {
			out.Changes = append(out.Changes, changeJSON{Path: c.Path, Kind: string(c.Kind), Code: c.Code})
		}
		return printJSON(w, out)
	}

	branch := st.CurrentBranch
	if st.Detached {
		branch = yellow("(detached HEAD)")
	}
	if _, err := fmt.Fprintf(w, "On branch %s\n", branch); err != nil {
		return err
	}
	if len(st.Changes) == 0 {
		_, err := fmt.Fprintln(w, green("Working tree clean."))
		return err
	}

	rows := make([]table.Row, 0, len(st.Changes))
	for _, c := range st.Changes {
		rows = append(rows, table.Row{c.Code, string(c.Kind), c.Path})
	}
	renderTable(w, f, table.Row{"CODE", "KIND", "PATH"}, rows)
	if st.Clean {
		_, err := fmt.Fprintln(w, "Only untracked files; cherry-picks may proceed.")
		return err
	}
	return nil
}

func confirmPrompt(cmd *cobra.Command, message string) bool {
	_, _ = fmt.Fprintf(cmd.OutOrStderr(), "%s [y/N] ", message)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
	return false
}
