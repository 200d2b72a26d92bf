package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rancher/cherry-pick-helper/internal/app"
	gh "github.com/rancher/cherry-pick-helper/internal/github"
	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
	"github.com/rancher/cherry-pick-helper/internal/refs"
	"github.com/rancher/cherry-pick-helper/internal/repo"
	"github.com/rancher/cherry-pick-helper/internal/view"
)

// prLookupConcurrency bounds concurrent GitHub requests per page.
const prLookupConcurrency = 4

type listOptions struct {
	author   string
	message  string
	hash     string
	page     int
	pageSize int
}

func (o *listOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.author, "author", "", "Only commits whose author contains this text")
	cmd.Flags().StringVar(&o.message, "grep", "", "Only commits whose subject contains this text")
	cmd.Flags().StringVar(&o.hash, "hash", "", "Only commits whose hash starts with this prefix")
	cmd.Flags().IntVar(&o.page, "page", 1, "Page to show")
	cmd.Flags().IntVar(&o.pageSize, "page-size", view.DefaultPageSize, "Commits per page")
}

func (o listOptions) apply(commits []orchestrator.Commit) view.PageResult {
	filtered := view.Apply(commits, view.Filter{Author: o.author, Message: o.message, Hash: o.hash})
	return view.Paginate(filtered, view.Page{Number: o.page, Size: o.pageSize})
}

func (a *App) commitsCmd() *cobra.Command {
	var (
		opts        listOptions
		sinceMonths int
	)
	cmd := &cobra.Command{
		Use:   "commits [branch]",
		Short: "List recent commits of a branch (HEAD by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch := ""
			if len(args) == 1 {
				branch = refs.NormalizeBranch(args[0])
			}
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				commits, err := r.Orchestrator().ListCommits(cmd.Context(), h, branch, sinceMonths)
				if err != nil {
					return err
				}
				return a.printCommits(cmd.OutOrStdout(), commitListing{Branch: branch, Page: opts.apply(commits)})
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVar(&sinceMonths, "since-months", 0, "Only commits authored in the last n months (default from config)")
	return cmd
}

func (a *App) diffCmd() *cobra.Command {
	var (
		opts    listOptions
		withPRs bool
	)
	cmd := &cobra.Command{
		Use:   "diff <source> <target>",
		Short: "List commits of origin/<source> that are missing from <target>",
		Long: `List the commits reachable from origin/<source> but not from <target>,
skipping commits whose patch is already on <target> and merge commits.
Commits are listed oldest first, which is the order they apply in.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := refs.NormalizeBranch(args[0]), refs.NormalizeBranch(args[1])
			return a.withRepo(cmd, func(r *app.Runner, h repo.Handle) error {
				ctx := cmd.Context()
				commits, err := r.Orchestrator().DiffForCherryPick(ctx, h, source, target)
				if err != nil {
					return err
				}

				listing := commitListing{Source: source, Target: target, Page: opts.apply(commits)}
				if withPRs && len(listing.Page.Items) > 0 {
					gr, err := r.GitHub(ctx, h)
					if err != nil {
						return err
					}
					prs, err := lookupPullRequests(ctx, gr, listing.Page.Items)
					if err != nil {
						return err
					}
					listing.PullRequests = prs
				}
				return a.printCommits(cmd.OutOrStdout(), listing)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&withPRs, "with-prs", false, "Show the GitHub pull requests each commit belongs to")
	return cmd
}

// lookupPullRequests returns the pull requests of each commit, keyed by hash.
func lookupPullRequests(ctx context.Context, gr app.GitHubRepo, commits []orchestrator.Commit) (map[string][]gh.PullRequest, error) {
	var (
		mu  sync.Mutex
		out = make(map[string][]gh.PullRequest, len(commits))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prLookupConcurrency)
	for _, c := range commits {
		g.Go(func() error {
			prs, err := gr.Client.PullRequestsForCommit(gctx, gr.Ref.Owner, gr.Ref.Name, c.Hash)
			if err != nil {
				return fmt.Errorf("pull requests for %s: %w", shortHash(c.Hash), err)
			}
			mu.Lock()
			out[c.Hash] = prs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, gh.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: set a token with 'cherry-pick-helper config set-token' or GITHUB_TOKEN", err)
		}
		return nil, err
	}
	return out, nil
}

type commitListing struct {
	Branch       string
	Source       string
	Target       string
	Page         view.PageResult
	PullRequests map[string][]gh.PullRequest
}

type pullRequestJSON struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	State  string `json:"state"`
	Merged bool   `json:"merged"`
}

type commitJSON struct {
	Hash         string            `json:"hash"`
	Message      string            `json:"message"`
	Author       string            `json:"author"`
	AuthoredAt   time.Time         `json:"authored_at"`
	PullRequests []pullRequestJSON `json:"pull_requests,omitempty"`
}

type commitPageJSON struct {
	Branch     string       `json:"branch,omitempty"`
	Source     string       `json:"source,omitempty"`
	Target     string       `json:"target,omitempty"`
	Commits    []commitJSON `json:"commits"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
}

func (a *App) printCommits(w io.Writer, l commitListing) error {
	f := a.outputFormat()
	if f == formatJSON {
		out := commitPageJSON{
			Branch:     l.Branch,
			Source:     l.Source,
			Target:     l.Target,
			Commits:    make([]commitJSON, 0, len(l.Page.Items)),
			Page:       l.Page.Number,
			PageSize:   l.Page.Size,
			Total:      l.Page.Total,
			TotalPages: l.Page.TotalPages,
		}
		for _, c := range l.Page.Items {
			cj := commitJSON{Hash: c.Hash, Message: c.Message, Author: c.Author, AuthoredAt: c.AuthoredAt}
			for _, pr := range l.PullRequests[c.Hash] {
				cj.PullRequests = append(cj.PullRequests, pullRequestJSON{
					Number: pr.Number, Title: pr.Title, URL: pr.URL, State: pr.State, Merged: pr.Merged,
				})
			}
			out.Commits = append(out.Commits, cj)
		}
		return printJSON(w, out)
	}

	if l.Page.Total == 0 {
		if l.Target != "" {
			_, err := fmt.Fprintf(w, "Nothing to cherry-pick: %s already has every commit of %s.\n", l.Target, l.Source)
			return err
		}
		_, err := fmt.Fprintln(w, "No commits found.")
		return err
	}

	header := table.Row{"HASH", "AUTHOR", "DATE", "MESSAGE"}
	if l.PullRequests != nil {
		header = append(header, "PULL REQUESTS")
	}
	rows := make([]table.Row, 0, len(l.Page.Items))
	for _, c := range l.Page.Items {
		row := table.Row{yellow(shortHash(c.Hash)), c.Author, c.AuthoredAt.Format(time.DateOnly), oneLine(c.Message, 72)}
		if l.PullRequests != nil {
			row = append(row, describePullRequests(l.PullRequests[c.Hash], f))
		}
		rows = append(rows, row)
	}
	renderTable(w, f, header, rows)

	if l.Page.TotalPages > 1 {
		footer := fmt.Sprintf("Page %d of %d, %d commits.", l.Page.Number, l.Page.TotalPages, l.Page.Total)
		if l.Page.HasNext() {
			footer += fmt.Sprintf(" Use --page %d for more.", l.Page.Number+1)
		}
		_, err := fmt.Fprintln(w, footer)
		return err
	}
	return nil
}

func describePullRequests(prs []gh.PullRequest, f outputFormat) string {
	if len(prs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(prs))
	for _, pr := range prs {
		label := fmt.Sprintf("#%d", pr.Number)
		if f == formatMarkdown && pr.URL != "" {
			label = fmt.Sprintf("[#%d](%s)", pr.Number, pr.URL)
		}
		if pr.Merged {
			label += " (merged)"
		} else if pr.State != "" {
			label += " (" + pr.State + ")"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}
