package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-helper/internal/app"
	"github.com/rancher/cherry-pick-helper/internal/git"
	gh "github.com/rancher/cherry-pick-helper/internal/github"
	"github.com/rancher/cherry-pick-helper/internal/repo"
)

func (a *App) remotesCmd() *cobra.Command {
	var withGitHub bool
	cmd := &cobra.Command{
		Use:   "remotes",
		Short: "List configured remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				ctx := cmd.Context()
				remotes, err := r.Orchestrator().ListRemotes(ctx, h)
				if err != nil {
					return err
				}

				var meta map[string]remoteMeta
				if withGitHub {
					client, err := r.GitHubClient(ctx)
					if err != nil {
						return err
					}
					meta = describeRemotes(ctx, client, r.Config().GitHub.BaseURL, remotes)
				}
				return a.printRemotes(cmd.OutOrStdout(), remotes, meta)
			})
		},
	}
	cmd.Flags().BoolVar(&withGitHub, "github", false, "Look up GitHub metadata for remotes hosted there")
	return cmd
}

// remoteMeta is what GitHub knows about a remote. Note explains a missing
// lookup.
type remoteMeta struct {
	Repo *gh.Repository
	Note string
}

func describeRemotes(ctx context.Context, client gh.Client, baseURL string, remotes []git.Remote) map[string]remoteMeta {
	out := make(map[string]remoteMeta, len(remotes))
	for _, rem := range remotes {
		if len(rem.URLs) == 0 {
			continue
		}
		ref, err := gh.ParseRemoteURL(rem.URLs[0])
		if err != nil || !gh.IsGitHubHost(ref.Host, baseURL) {
			out[rem.Name] = remoteMeta{Note: "not on GitHub"}
			continue
		}
		repository, err := client.GetRepository(ctx, ref.Owner, ref.Name)
		switch {
		case errors.Is(err, gh.ErrNotConfigured):
			out[rem.Name] = remoteMeta{Note: "no token"}
		case gh.IsRetryable(err):
			out[rem.Name] = remoteMeta{Note: "GitHub unavailable, try again later"}
		case err != nil:
			out[rem.Name] = remoteMeta{Note: "lookup failed: " + err.Error()}
		default:
			out[rem.Name] = remoteMeta{Repo: &repository}
		}
	}
	return out
}

type remoteJSON struct {
	Name          string   `json:"name"`
	URLs          []string `json:"urls"`
	GitHubRepo    string   `json:"github_repo,omitempty"`
	DefaultBranch string   `json:"default_branch,omitempty"`
	Private       *bool    `json:"private,omitempty"`
	Note          string   `json:"note,omitempty"`
}

func (a *App) printRemotes(w io.Writer, remotes []git.Remote, meta map[string]remoteMeta) error {
	f := a.outputFormat()
	if f == formatJSON {
		out := make([]remoteJSON, 0, len(remotes))
		for _, rem := range remotes {
			rj := remoteJSON{Name: rem.Name, URLs: rem.URLs}
			if m, ok := meta[rem.Name]; ok {
				rj.Note = m.Note
				if m.Repo != nil {
					private := m.Repo.Private
					rj.GitHubRepo = m.Repo.FullName
					rj.DefaultBranch = m.Repo.DefaultBranch
					rj.Private = &private
				}
			}
			out = append(out, rj)
		}
		return printJSON(w, out)
	}

	header := table.Row{"NAME", "URL"}
	if meta != nil {
		header = append(header, "GITHUB", "DEFAULT BRANCH")
	}
	rows := make([]table.Row, 0, len(remotes))
	for _, rem := range remotes {
		row := table.Row{rem.Name, strings.Join(rem.URLs, ", ")}
		if meta != nil {
			m := meta[rem.Name]
			switch {
			case m.Repo != nil:
				name := m.Repo.FullName
				if m.Repo.Private {
					name += " (private)"
				}
				if m.Repo.Archived {
					name += " " + yellow("(archived)")
				}
				row = append(row, name, m.Repo.DefaultBranch)
			default:
				row = append(row, m.Note, "-")
			}
		}
		rows = append(rows, row)
	}
	renderTable(w, f, header, rows)
	return nil
}

// checkRemoteBranch asks GitHub whether branch exists on the configured
// remote. Only a definite "not found" is an error; without a token, or for a
// remote not hosted on GitHub, the check is skipped.
func checkRemoteBranch(ctx context.Context, r *app.Runner, h repo.Handle, branch string) error {
	if r.Config().GitHub.Token == "" {
		return nil
	}
	gr, err := r.GitHub(ctx, h)
	if err != nil {
		r.Logger().Debug("skipping github branch check", "error", err)
		return nil
	}
	err = gr.Client.EnsureBranchExists(ctx, gr.Ref.Owner, gr.Ref.Name, branch)
	if errors.Is(err, gh.ErrBranchNotFound) {
		return fmt.Errorf("branch %s does not exist on %s", branch, gr.Ref)
	}
	if err != nil {
		r.Logger().Warn("github branch check failed", "branch", branch, "error", err)
	}
	return nil
}
