package gh

import (
	"context"
	"errors"
)

// Repository is the hosting metadata of a GitHub repository.
type Repository struct {
	Owner         string
	Name          string
	FullName      string
	DefaultBranch string
	HTMLURL       string
	Private       bool
	Archived      bool
}

// PullRequest is a pull request associated with a commit.
type PullRequest struct {
	Number int
	Title  string
	URL    string
	State  string
	Author string
	Base   string
	Head   string
	Merged bool
}

// Client exposes the read-only GitHub lookups the CLI decorates its output with.
type Client interface {
	GetRepository(ctx context.Context, owner, repo string) (Repository, error)
	EnsureBranchExists(ctx context.Context, owner, repo, branch string) error
	PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]PullRequest, error)
}

// Factory builds concrete GitHub clients (e.g., REST-backed).
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

// ErrBranchNotFound indicates the requested branch does not exist on GitHub.
var ErrBranchNotFound = errors.New("github: branch not found")

// ErrNotConfigured is returned by the noop client when no token is set.
var ErrNotConfigured = errors.New("github: no token configured")

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a transient
// GitHub API failure (for example, a network timeout or rate-limited request).
// Nothing retries automatically; callers use it to word the failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
