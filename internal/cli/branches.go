package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-helper/internal/app"
	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
	"github.com/rancher/cherry-pick-helper/internal/repo"
)

func (a *App) branchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "branches",
		Aliases: []string{"br"},
		Short:   "List local and remote branches",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				branches, err := r.Orchestrator().ListBranches(cmd.Context(), h)
				if err != nil {
					return err
				}
				return a.printBranches(cmd.OutOrStdout(), branches)
			})
		},
	}
}

type branchJSON struct {
	Name      string `json:"name"`
	IsCurrent bool   `json:"is_current"`
	IsRemote  bool   `json:"is_remote"`
}

func (a *App) printBranches(w io.Writer, branches []orchestrator.Branch) error {
	f := a.outputFormat()
	if f == formatJSON {
		out := make([]branchJSON, 0, len(branches))
		for _, b := range branches {
			out = append(out, branchJSON(b))
		}
		return printJSON(w, out)
	}

	rows := make([]table.Row, 0, len(branches))
	for _, b := range branches {
		marker := " "
		if b.IsCurrent {
			marker = green("*")
		}
		location := "local"
		if b.IsRemote {
			location = yellow("remote")
		}
		rows = append(rows, table.Row{marker, b.Name, location})
	}
	renderTable(w, f, table.Row{"", "BRANCH", "LOCATION"}, rows)
	return nil
}
