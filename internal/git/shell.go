package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
)

// ShellGateway shells out to the system git binary. It never retries: git
// failures are rarely transient and a blind retry against a conflicted tree
// makes things worse.
type ShellGateway struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// NetworkTimeout bounds network commands (fetch, pull, remote prune) that
	// would otherwise inherit an unbounded context. When zero, a default of
	// 2 minutes is used. Negative disables the bound.
	NetworkTimeout time.Duration
}

// NewShellGateway returns a Gateway backed by system git commands.
func NewShellGateway() *ShellGateway {
	return &ShellGateway{}
}

var _ Gateway = (*ShellGateway)(nil)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
	logFormat = "--format=%H%x1f%an%x1f%aI%x1f%s%x1e"
	refFormat = "--format=%(HEAD)%1f%(refname)%1f%(symref)"
)

func (g *ShellGateway) gitBinary() string {
	if g.Git == "" {
		return "git"
	}
	return g.Git
}

func (g *ShellGateway) BranchList(ctx context.Context, path string) (BranchListing, error) {
	out, err := g.output(ctx, path, "for-each-ref", refFormat, "refs/heads", "refs/remotes")
	if err != nil {
		return BranchListing{}, err
	}
	return parseRefs(out), nil
}

func (g *ShellGateway) PruneRemote(ctx context.Context, path, remote string) error {
	if remote == "" {
		remote = DefaultRemote
	}
	if err := g.exec(ctx, path, "remote", "prune", remote); err != nil {
		return fmt.Errorf("git remote prune %s: %w", remote, err)
	}
	return nil
}

func (g *ShellGateway) Log(ctx context.Context, path string, opts LogOptions) ([]LogEntry, error) {
	out, err := g.output(ctx, path, logArgs(opts)...)
	if err != nil {
		return nil, err
	}
	return parseLog(out)
}

func logArgs(opts LogOptions) []string {
	args := []string{"log", logFormat}
	if opts.ExcludeMerges {
		args = append(args, "--no-merges")
	}
	if !opts.Since.IsZero() {
		args = append(args, "--since="+opts.Since.Format(time.RFC3339))
	}
	switch {
	case opts.Range != "":
		if opts.CherryPickAware {
			args = append(args, "--cherry-pick", "--right-only")
		}
		args = append(args, opts.Range)
	case opts.Ref != "":
		args = append(args, opts.Ref)
	}
	return append(args, "--")
}

func (g *ShellGateway) Fetch(ctx context.Context, path, remote string, refs []string) error {
	if remote == "" {
		remote = DefaultRemote
	}
	args := append([]string{"fetch", remote}, refs...)
	if err := g.exec(ctx, path, args...); err != nil {
		return fmt.Errorf("git fetch %s %s: %w", remote, strings.Join(refs, " "), err)
	}
	return nil
}

func (g *ShellGateway) Checkout(ctx context.Context, path, ref string) error {
	if err := g.exec(ctx, path, "checkout", ref); err != nil {
		return fmt.Errorf("git checkout %s: %w", ref, err)
	}
	return nil
}

func (g *ShellGateway) CherryPick(ctx context.Context, path, commit string) error {
	isMerge, err := g.isMergeCommit(ctx, path, commit)
	if err != nil {
		return fmt.Errorf("check if merge commit: %w", err)
	}

	// For merge commits, use -m 1 to specify the first parent as mainline
	args := []string{"cherry-pick", commit}
	if isMerge {
		args = []string{"cherry-pick", "-m", "1", commit}
	}
	if err := g.exec(ctx, path, args...); err != nil {
		return fmt.Errorf("git cherry-pick %s: %w", commit, err)
	}
	return nil
}

func (g *ShellGateway) isMergeCommit(ctx context.Context, path, commit string) (bool, error) {
	// Output format: "commit_sha parent1_sha [parent2_sha ...]"
	out, err := g.output(ctx, path, "rev-list", "--parents", "-n", "1", commit)
	if err != nil {
		return false, err
	}
	return len(strings.Fields(out)) > 2, nil
}

func (g *ShellGateway) Status(ctx context.Context, path string) (Status, error) {
	out, err := g.output(ctx, path, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return Status{}, err
	}
	return parseStatus(out), nil
}

func (g *ShellGateway) ResetHard(ctx context.Context, path, ref string) error {
	if err := g.exec(ctx, path, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("git reset --hard %s: %w", ref, err)
	}
	return nil
}

func (g *ShellGateway) Pull(ctx context.Context, path, remote string) error {
	args := []string{"pull", "--ff-only"}
	if remote != "" {
		args = append(args, remote)
	}
	if err := g.exec(ctx, path, args...); err != nil {
		return fmt.Errorf("git pull: %w", err)
	}
	return nil
}

// ListRemotes reads remotes straight from the repository config.
func (g *ShellGateway) ListRemotes(_ context.Context, path string) ([]Remote, error) {
	r, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	remotes, err := r.Remotes()
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}

	result := make([]Remote, 0, len(remotes))
	for _, rem := range remotes {
		cfg := rem.Config()
		if cfg == nil {
			continue
		}
		result = append(result, Remote{Name: cfg.Name, URLs: append([]string(nil), cfg.URLs...)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (g *ShellGateway) exec(ctx context.Context, path string, args ...string) error {
	_, err := g.output(ctx, path, args...)
	return err
}

func (g *ShellGateway) output(ctx context.Context, path string, args ...string) (string, error) {
	cmd := append([]string{"-C", path}, args...)
	return g.runGit(ctx, cmd...)
}

func (g *ShellGateway) runGit(ctx context.Context, args ...string) (string, error) {
	isNetwork := isNetworkCommand(primaryGitCommand(args))
	runCtx, cancel := g.applyNetworkTimeout(ctx, isNetwork)
	defer cancel()
	return g.runGitOnce(runCtx, args...)
}

func (g *ShellGateway) runGitOnce(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitBinary(), args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	setProcessGroup(cmd)

	var stdout, combined bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, &combined)
	cmd.Stderr = &combined

	if err := cmd.Start(); err != nil {
		return "", &GitError{Args: args, Output: combined.String(), Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", &GitError{Args: args, Output: combined.String(), Err: err}
		}
	}

	return stdout.String(), nil
}

func primaryGitCommand(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, "-") {
			switch arg {
			case "-C", "--git-dir", "-c":
				i++
			}
			continue
		}
		return arg
	}
	return ""
}

func isNetworkCommand(cmd string) bool {
	switch cmd {
	case "clone", "fetch", "push", "pull", "remote":
		return true
	default:
		return false
	}
}

func (g *ShellGateway) networkTimeoutValue() time.Duration {
	if g.NetworkTimeout == 0 {
		return 2 * time.Minute
	}
	return g.NetworkTimeout
}

func (g *ShellGateway) applyNetworkTimeout(ctx context.Context, network bool) (context.Context, context.CancelFunc) {
	if !network {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && !deadline.IsZero() {
		return ctx, func() {}
	}
	timeout := g.networkTimeoutValue()
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// GitError wraps failures when invoking the git binary.
type GitError struct {
	Args   []string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("git %s: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *GitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message returns what git printed, falling back to the process error.
func (e *GitError) Message() string {
	if e == nil {
		return ""
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		return out
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// OutputOf extracts git's own output from err, or err's text when err did not
// come from the git binary.
func OutputOf(err error) string {
	if err == nil {
		return ""
	}
	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return gitErr.Message()
	}
	return err.Error()
}

// IsMissingRemoteBranch reports whether err is git complaining about a ref the
// remote does not have.
func IsMissingRemoteBranch(err error) bool {
	var gitErr *GitError
	if !errors.As(err, &gitErr) {
		return false
	}
	out := gitErr.Output
	return strings.Contains(out, "couldn't find remote ref") ||
		strings.Contains(out, "invalid refspec") ||
		strings.Contains(out, "unknown revision")
}
