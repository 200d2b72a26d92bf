package git

import (
	"context"
	"time"
)

// DefaultRemote is the remote consulted when callers do not name one.
const DefaultRemote = "origin"

// Gateway executes primitive git operations against a repository path. Every
// call receives the path explicitly; implementations hold no per-repository state.
// Implementations may shell out to git or use a pure Go library.
type Gateway interface {
	BranchList(ctx context.Context, path string) (BranchListing, error)
	PruneRemote(ctx context.Context, path, remote string) error
	Log(ctx context.Context, path string, opts LogOptions) ([]LogEntry, error)
	Fetch(ctx context.Context, path, remote string, refs []string) error
	Checkout(ctx context.Context, path, ref string) error
	CherryPick(ctx context.Context, path, commit string) error
	Status(ctx context.Context, path string) (Status, error)
	ResetHard(ctx context.Context, path, ref string) error
	ListRemotes(ctx context.Context, path string) ([]Remote, error)
	Pull(ctx context.Context, path, remote string) error
}

// LocalBranch is a branch under refs/heads.
type LocalBranch struct {
	Name      string
	IsCurrent bool
}

// RemoteBranch is a remote-tracking branch, named "<remote>/<branch>".
type RemoteBranch struct {
	Name string
}

// BranchListing is the raw result of a branch query, in ref order.
type BranchListing struct {
	Local  []LocalBranch
	Remote []RemoteBranch
}

// LogOptions narrows a log query. Range takes precedence over Ref when both are set.
type LogOptions struct {
	Ref             string
	Since           time.Time
	CherryPickAware bool
	ExcludeMerges   bool
	Range           string
}

// LogEntry is one commit as reported by git log, newest first.
type LogEntry struct {
	Hash       string
	Message    string
	AuthorName string
	AuthoredAt time.Time
}

// ChangeKind classifies an entry of the working tree status.
type ChangeKind string

const (
	ChangeStaged    ChangeKind = "staged"
	ChangeUnstaged  ChangeKind = "unstaged"
	ChangeUnmerged  ChangeKind = "unmerged"
	ChangeUntracked ChangeKind = "untracked"
)

// FileChange is a single path reported by git status.
type FileChange struct {
	Path string
	Kind ChangeKind
	// Code is the XY status from porcelain v2 output ("??" for untracked).
	Code string
}

// Status describes HEAD and the working tree.
type Status struct {
	CurrentBranch string
	Detached      bool
	ChangedFiles  []FileChange
}

// IsClean reports whether there are no changes. Untracked files only count
// when includeUntracked is set.
func (s Status) IsClean(includeUntracked bool) bool {
	for _, c := range s.ChangedFiles {
		if c.Kind == ChangeUntracked && !includeUntracked {
			continue
		}
		return false
	}
	return true
}

// Remote is a configured remote and its URLs.
type Remote struct {
	Name string
	URLs []string
}
