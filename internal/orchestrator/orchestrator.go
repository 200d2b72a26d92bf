package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rancher/cherry-pick-helper/internal/git"
	"github.com/rancher/cherry-pick-helper/internal/refs"
	"github.com/rancher/cherry-pick-helper/internal/repo"
)

const (
	opListBranches  = "list-branches"
	opListCommits   = "list-commits"
	opDiff          = "diff"
	opBuildPlan     = "build-plan"
	opApply         = "apply"
	opSync          = "sync"
	opCheckout      = "checkout"
	opPull          = "pull"
	opStatus        = "status"
	opCurrentBranch = "current-branch"
	opListRemotes   = "list-remotes"
)

// Orchestrator sequences gateway calls into failure-aware operations. It keeps
// no repository state between calls; only the per-path mutation locks live
// across them.
type Orchestrator struct {
	cfg   Config
	git   git.Gateway
	log   *slog.Logger
	locks *pathLocks
}

// Commit is a commit as returned to callers. Author is the display name.
type Commit struct {
	Hash       string
	Message    string
	Author     string
	AuthoredAt time.Time
}

// RepoStatus is the working tree state of a repository.
type RepoStatus struct {
	CurrentBranch string
	Detached      bool
	Changes       []git.FileChange
	Clean         bool
}

// New returns a configured Orchestrator instance.
func New(cfg Config, gateway git.Gateway, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{cfg: cfg, git: gateway, log: logger, locks: newPathLocks()}
}

func (o *Orchestrator) open(op string, h repo.Handle) (string, error) {
	if err := h.Check(); err != nil {
		return "", &Error{Kind: KindInvalidRepository, Op: op, Err: err}
	}
	return h.Path(), nil
}

func (o *Orchestrator) lock(ctx context.Context, op, path string) (func(), error) {
	release, err := o.locks.acquire(ctx, path)
	if err != nil {
		return nil, &Error{Kind: KindCanceled, Op: op, Step: "lock", Err: err}
	}
	return release, nil
}

func (o *Orchestrator) clean(st git.Status) bool {
	return st.IsClean(!o.cfg.IgnoreUntracked)
}

// ListBranches prunes stale tracking refs and returns local branches followed
// by remote-only ones.
func (o *Orchestrator) ListBranches(ctx context.Context, h repo.Handle) ([]Branch, error) {
	path, err := o.open(opListBranches, h)
	if err != nil {
		return nil, err
	}
	remote := o.cfg.remote()

	if err := o.git.PruneRemote(ctx, path, remote); err != nil {
		o.log.Warn("failed to prune remote", "repo", path, "remote", remote, "error", err)
		return nil, gatewayError(opListBranches, "prune", "", err)
	}

	listing, err := o.git.BranchList(ctx, path)
	if err != nil {
		return nil, gatewayError(opListBranches, "branch-list", "", err)
	}

	branches := mergeBranches(listing, remote)
	o.log.Debug("listed branches", "repo", path, "local", len(listing.Local), "remote", len(listing.Remote), "merged", len(branches))
	return branches, nil
}

// ListCommits returns commits of branch (HEAD when empty) authored within the
// last sinceMonths months, newest first.
func (o *Orchestrator) ListCommits(ctx context.Context, h repo.Handle, branch string, sinceMonths int) ([]Commit, error) {
	path, err := o.open(opListCommits, h)
	if err != nil {
		return nil, err
	}
	if branch != "" {
		if err := refs.ValidateBranchName(branch); err != nil {
			return nil, &Error{Kind: KindGateway, Op: opListCommits, Step: "validate", Err: err}
		}
	}

	ref := branch
	if branch != "" {
		listing, err := o.git.BranchList(ctx, path)
		if err != nil {
			return nil, gatewayError(opListCommits, "branch-list", "", err)
		}
		if resolved, ok := lookupBranch(listing, o.cfg.remote(), branch); ok {
			ref = resolved
		}
	}

	months := o.cfg.sinceMonths(sinceMonths)
	bound := o.cfg.now().AddDate(0, -months, 0)

	entries, err := o.git.Log(ctx, path, git.LogOptions{Ref: ref, Since: bound})
	if err != nil {
		return nil, gatewayError(opListCommits, "log", "", err)
	}

	commits := make([]Commit, 0, len(entries))
	for _, e := range entries {
		// --since filters on committer date; the window is about authorship.
		if e.AuthoredAt.Before(bound) {
			continue
		}
		commits = append(commits, toCommit(e))
	}

	o.log.Debug("listed commits", "repo", path, "branch", branch, "ref", ref, "since", bound.Format(time.RFC3339), "count", len(commits))
	return commits, nil
}

// DiffForCherryPick fetches source and target and returns the commits of
// <remote>/source missing from target, oldest first. Merge commits and
// commits whose patch already exists on target under another hash are
// excluded.
func (o *Orchestrator) DiffForCherryPick(ctx context.Context, h repo.Handle, source, target string) ([]Commit, error) {
	path, err := o.open(opDiff, h)
	if err != nil {
		return nil, err
	}
	return o.diff(ctx, opDiff, path, source, target)
}

func (o *Orchestrator) diff(ctx context.Context, op, path, source, target string) ([]Commit, error) {
	for _, name := range []string{source, target} {
		if err := refs.ValidateBranchName(name); err != nil {
			return nil, &Error{Kind: KindGateway, Op: op, Step: "validate", Err: err}
		}
	}
	remote := o.cfg.remote()
	log := o.log.With("repo", path, "source", source, "target", target)

	for _, name := range refs.Unique(source, target) {
		err := o.git.Fetch(ctx, path, remote, []string{name})
		if err == nil {
			continue
		}
		// A target that only exists locally is still diffable.
		if name != source && git.IsMissingRemoteBranch(err) {
			log.Debug("target branch not on remote, diffing against local branch")
			continue
		}
		log.Warn("failed to fetch branch", "branch", name, "error", err)
		return nil, gatewayError(op, "fetch", "", err)
	}

	targetRef, err := o.resolveTarget(ctx, op, path, remote, target)
	if err != nil {
		return nil, err
	}

	entries, err := o.git.Log(ctx, path, git.LogOptions{
		Range:           targetRef + "..." + refs.RemoteRef(remote, source),
		CherryPickAware: true,
		ExcludeMerges:   true,
	})
	if err != nil {
		return nil, gatewayError(op, "log", "", err)
	}

	commits := make([]Commit, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		commits = append(commits, toCommit(entries[i]))
	}
	log.Debug("computed cherry-pick candidates", "target_ref", targetRef, "count", len(commits))
	return commits, nil
}

// resolveTarget prefers a local branch and falls back to its tracking ref.
func (o *Orchestrator) resolveTarget(ctx context.Context, op, path, remote, target string) (string, error) {
	listing, err := o.git.BranchList(ctx, path)
	if err != nil {
		return "", gatewayError(op, "branch-list", "", err)
	}
	if ref, ok := lookupBranch(listing, remote, target); ok {
		return ref, nil
	}
	return "", &Error{Kind: KindGateway, Op: op, Step: "resolve", Err: fmt.Errorf("branch %q not found locally or on %s", target, remote)}
}

// lookupBranch maps a name as ListBranches reports it to a ref git accepts:
// the local branch, else <remote>/<name>, else a qualified remote ref as is.
func lookupBranch(listing git.BranchListing, remote, name string) (string, bool) {
	for _, lb := range listing.Local {
		if lb.Name == name {
			return name, true
		}
	}
	tracking := refs.RemoteRef(remote, name)
	for _, rb := range listing.Remote {
		if rb.Name == tracking {
			return tracking, true
		}
	}
	for _, rb := range listing.Remote {
		if rb.Name == name {
			return name, true
		}
	}
	return "", false
}

// BuildPlan checks hashes against the current diff of source onto target and
// returns a Plan with abbreviations expanded to full hashes.
func (o *Orchestrator) BuildPlan(ctx context.Context, h repo.Handle, source, target string, hashes []string) (Plan, error) {
	path, err := o.open(opBuildPlan, h)
	if err != nil {
		return Plan{}, err
	}
	if len(hashes) == 0 {
		return Plan{}, &Error{Kind: KindInvalidPlan, Op: opBuildPlan, Err: fmt.Errorf("at least one commit is required")}
	}

	candidates, err := o.diff(ctx, opBuildPlan, path, source, target)
	if err != nil {
		return Plan{}, err
	}

	resolved, err := resolveHashes(hashes, candidates)
	if err != nil {
		return Plan{}, &Error{Kind: KindInvalidPlan, Op: opBuildPlan, Err: err}
	}
	return Plan{Source: source, Target: target, Commits: resolved}, nil
}

// ApplyCherryPickPlan checks out plan.Target and cherry-picks plan.Commits in
// order. It refuses to start on a dirty tree. On the first failing commit it
// stops and leaves the repository as git left it, without aborting. A
// canceled ctx is honored between commits only.
func (o *Orchestrator) ApplyCherryPickPlan(ctx context.Context, h repo.Handle, plan Plan) (ApplyResult, error) {
	path, err := o.open(opApply, h)
	if err != nil {
		return ApplyResult{}, err
	}
	if err := plan.validate(); err != nil {
		return ApplyResult{}, &Error{Kind: KindInvalidPlan, Op: opApply, Err: err}
	}

	release, err := o.lock(ctx, opApply, path)
	if err != nil {
		return ApplyResult{}, err
	}
	defer release()

	result := ApplyResult{
		RunID:     uuid.NewString(),
		Target:    plan.Target,
		Remaining: slices.Clone(plan.Commits),
	}
	log := o.log.With("repo", path, "run_id", result.RunID, "source", plan.Source, "target", plan.Target)

	st, err := o.git.Status(ctx, path)
	if err != nil {
		return result, gatewayError(opApply, "status", "", err)
	}
	if !o.clean(st) {
		log.Warn("refusing to apply plan: working tree is dirty", "changes", len(st.ChangedFiles))
		return result, &Error{Kind: KindDirtyWorkingTree, Op: opApply, Step: "status", Detail: describeChanges(st.ChangedFiles)}
	}

	if err := o.git.Checkout(ctx, path, plan.Target); err != nil {
		log.Warn("failed to check out target", "error", err)
		return result, gatewayError(opApply, "checkout", "", err)
	}
	log.Info("applying cherry-pick plan", "commits", len(plan.Commits))

	for i, hash := range plan.Commits {
		if err := ctx.Err(); err != nil {
			log.Info("cherry-pick plan canceled", "applied", result.Count(), "next", hash)
			return result, &Error{Kind: KindCanceled, Op: opApply, Step: "cherry-pick", Commit: hash, Err: err}
		}

		// A cherry-pick is never interrupted once started.
		if err := o.git.CherryPick(context.WithoutCancel(ctx), path, hash); err != nil {
			result.Failed = hash
			result.Remaining = slices.Clone(plan.Commits[i+1:])
			log.Warn("cherry-pick failed, leaving repository for manual resolution", "commit", hash, "applied", result.Count(), "error", err)
			return result, &Error{Kind: KindConflict, Op: opApply, Step: "cherry-pick", Commit: hash, Detail: git.OutputOf(err), Err: err}
		}

		result.Applied = append(result.Applied, hash)
		result.Remaining = slices.Clone(plan.Commits[i+1:])
		log.Debug("cherry-picked commit", "commit", hash)
	}

	after, err := o.git.Status(context.WithoutCancel(ctx), path)
	switch {
	case err != nil:
		log.Warn("failed to verify working tree after apply", "error", err)
	case !o.clean(after):
		log.Warn("working tree not clean after apply", "changes", len(after.ChangedFiles))
	default:
		result.Clean = true
	}

	log.Info("applied cherry-pick plan", "applied", result.Count(), "clean", result.Clean)
	return result, nil
}

// SyncBranch hard-resets branch to its remote-tracking ref, checking it out
// first when needed. Local divergence is discarded without confirmation.
func (o *Orchestrator) SyncBranch(ctx context.Context, h repo.Handle, branch string) error {
	path, err := o.open(opSync, h)
	if err != nil {
		return err
	}
	if err := refs.ValidateBranchName(branch); err != nil {
		return &Error{Kind: KindGateway, Op: opSync, Step: "validate", Err: err}
	}

	release, err := o.lock(ctx, opSync, path)
	if err != nil {
		return err
	}
	defer release()

	remote := o.cfg.remote()
	log := o.log.With("repo", path, "branch", branch)

	if err := o.git.Fetch(ctx, path, remote, []string{branch}); err != nil {
		log.Warn("failed to fetch branch for sync", "error", err)
		return gatewayError(opSync, "fetch", "", err)
	}

	st, err := o.git.Status(ctx, path)
	if err != nil {
		return gatewayError(opSync, "status", "", err)
	}
	if st.Detached || st.CurrentBranch != branch {
		if err := o.git.Checkout(ctx, path, branch); err != nil {
			return gatewayError(opSync, "checkout", "", err)
		}
	}

	ref := refs.RemoteRef(remote, branch)
	if err := o.git.ResetHard(ctx, path, ref); err != nil {
		return gatewayError(opSync, "reset", "", err)
	}
	log.Info("synced branch to remote", "ref", ref)
	return nil
}

// CheckoutBranch switches the working tree to branch. It refuses to run on a
// dirty tree.
func (o *Orchestrator) CheckoutBranch(ctx context.Context, h repo.Handle, branch string) error {
	path, err := o.open(opCheckout, h)
	if err != nil {
		return err
	}
	if err := refs.ValidateBranchName(branch); err != nil {
		return &Error{Kind: KindGateway, Op: opCheckout, Step: "validate", Err: err}
	}

	release, err := o.lock(ctx, opCheckout, path)
	if err != nil {
		return err
	}
	defer release()

	st, err := o.git.Status(ctx, path)
	if err != nil {
		return gatewayError(opCheckout, "status", "", err)
	}
	if !o.clean(st) {
		return &Error{Kind: KindDirtyWorkingTree, Op: opCheckout, Step: "status", Detail: describeChanges(st.ChangedFiles)}
	}

	if err := o.git.Checkout(ctx, path, branch); err != nil {
		return gatewayError(opCheckout, "checkout", "", err)
	}
	o.log.Info("checked out branch", "repo", path, "branch", branch)
	return nil
}

// Pull fast-forwards the current branch from the configured remote.
func (o *Orchestrator) Pull(ctx context.Context, h repo.Handle) error {
	path, err := o.open(opPull, h)
	if err != nil {
		return err
	}

	release, err := o.lock(ctx, opPull, path)
	if err != nil {
		return err
	}
	defer release()

	if err := o.git.Pull(ctx, path, o.cfg.remote()); err != nil {
		return gatewayError(opPull, "pull", "", err)
	}
	o.log.Info("pulled current branch", "repo", path, "remote", o.cfg.remote())
	return nil
}

// Status reports HEAD and the working tree.
func (o *Orchestrator) Status(ctx context.Context, h repo.Handle) (RepoStatus, error) {
	path, err := o.open(opStatus, h)
	if err != nil {
		return RepoStatus{}, err
	}
	st, err := o.git.Status(ctx, path)
	if err != nil {
		return RepoStatus{}, gatewayError(opStatus, "status", "", err)
	}
	return RepoStatus{
		CurrentBranch: st.CurrentBranch,
		Detached:      st.Detached,
		Changes:       st.ChangedFiles,
		Clean:         o.clean(st),
	}, nil
}

// CurrentBranch returns the checked out branch, or "HEAD" when detached.
func (o *Orchestrator) CurrentBranch(ctx context.Context, h repo.Handle) (string, error) {
	path, err := o.open(opCurrentBranch, h)
	if err != nil {
		return "", err
	}
	st, err := o.git.Status(ctx, path)
	if err != nil {
		return "", gatewayError(opCurrentBranch, "status", "", err)
	}
	if st.Detached {
		return "HEAD", nil
	}
	return st.CurrentBranch, nil
}

// ListRemotes returns the configured remotes and their URLs.
func (o *Orchestrator) ListRemotes(ctx context.Context, h repo.Handle) ([]git.Remote, error) {
	path, err := o.open(opListRemotes, h)
	if err != nil {
		return nil, err
	}
	remotes, err := o.git.ListRemotes(ctx, path)
	if err != nil {
		return nil, gatewayError(opListRemotes, "list-remotes", "", err)
	}
	return remotes, nil
}

func toCommit(e git.LogEntry) Commit {
	return Commit{Hash: e.Hash, Message: e.Message, Author: e.AuthorName, AuthoredAt: e.AuthoredAt}
}

func describeChanges(changes []git.FileChange) string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, fmt.Sprintf("%s %s", c.Code, c.Path))
	}
	return strings.Join(lines, "\n")
}
