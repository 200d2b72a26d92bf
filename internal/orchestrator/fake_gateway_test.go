package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rancher/cherry-pick-helper/internal/git"
)

type fetchCall struct {
	remote string
	refs   []string
}

type fakeGateway struct {
	mu sync.Mutex

	listing    git.BranchListing
	listingErr error
	pruneErr   error

	logEntries []git.LogEntry
	logErr     error
	logCalls   []git.LogOptions

	fetchErrs  map[string]error
	fetchCalls []fetchCall

	statuses  []git.Status
	statusErr error

	checkoutErr error
	checkouts   []string

	pickErrs   map[string]error
	picks      []string
	onPick     func(ctx context.Context, hash string)
	pickCtxErr []error

	resets  []string
	pulls   []string
	pullErr error

	remotes []git.Remote

	calls []string
}

func (f *fakeGateway) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeGateway) BranchList(context.Context, string) (git.BranchListing, error) {
	f.record("branch-list")
	return f.listing, f.listingErr
}

func (f *fakeGateway) PruneRemote(_ context.Context, _, remote string) error {
	f.record("prune " + remote)
	return f.pruneErr
}

func (f *fakeGateway) Log(_ context.Context, _ string, opts git.LogOptions) ([]git.LogEntry, error) {
	f.record("log")
	f.mu.Lock()
	f.logCalls = append(f.logCalls, opts)
	f.mu.Unlock()
	if f.logErr != nil {
		return nil, f.logErr
	}
	return append([]git.LogEntry(nil), f.logEntries...), nil
}

func (f *fakeGateway) Fetch(_ context.Context, _, remote string, refs []string) error {
	f.record("fetch " + strings.Join(refs, " "))
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, fetchCall{remote: remote, refs: append([]string(nil), refs...)})
	f.mu.Unlock()
	for _, r := range refs {
		if err, ok := f.fetchErrs[r]; ok {
			return err
		}
	}
	return nil
}

func (f *fakeGateway) Checkout(_ context.Context, _, ref string) error {
	f.record("checkout " + ref)
	f.mu.Lock()
	f.checkouts = append(f.checkouts, ref)
	f.mu.Unlock()
	return f.checkoutErr
}

func (f *fakeGateway) CherryPick(ctx context.Context, _, hash string) error {
	f.record("cherry-pick " + hash)
	if f.onPick != nil {
		f.onPick(ctx, hash)
	}
	f.mu.Lock()
	f.picks = append(f.picks, hash)
	f.pickCtxErr = append(f.pickCtxErr, ctx.Err())
	f.mu.Unlock()
	return f.pickErrs[hash]
}

// Status returns queued statuses in order, repeating the last one.
func (f *fakeGateway) Status(context.Context, string) (git.Status, error) {
	f.record("status")
	if f.statusErr != nil {
		return git.Status{}, f.statusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return git.Status{CurrentBranch: "main"}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

func (f *fakeGateway) ResetHard(_ context.Context, _, ref string) error {
	f.record("reset " + ref)
	f.mu.Lock()
	f.resets = append(f.resets, ref)
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) ListRemotes(context.Context, string) ([]git.Remote, error) {
	f.record("remotes")
	return f.remotes, nil
}

func (f *fakeGateway) Pull(_ context.Context, _, remote string) error {
	f.record("pull " + remote)
	f.mu.Lock()
	f.pulls = append(f.pulls, remote)
	f.mu.Unlock()
	return f.pullErr
}

func (f *fakeGateway) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		for _, prefix := range []string{"checkout", "cherry-pick", "reset", "pull"} {
			if strings.HasPrefix(c, prefix) {
				out = append(out, c)
			}
		}
	}
	return out
}

func gitFailure(output string, args ...string) error {
	return &git.GitError{Args: args, Output: output, Err: errExit}
}

var errExit = errors.New("exit status 1")
