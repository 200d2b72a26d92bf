package gh

import (
	"context"
)

// NewNoopFactory returns a Factory whose clients fail every lookup with
// ErrNotConfigured.
func NewNoopFactory() Factory {
	return noopFactory{}
}

type noopFactory struct{}

func (noopFactory) New(context.Context, string) (Client, error) {
	return noopClient{}, nil
}

type noopClient struct{}

func (noopClient) GetRepository(context.Context, string, string) (Repository, error) {
	return Repository{}, ErrNotConfigured
}

func (noopClient) EnsureBranchExists(context.Context, string, string, string) error {
	return ErrNotConfigured
}

func (noopClient) PullRequestsForCommit(context.Context, string, string, string) ([]PullRequest, error) {
	return nil, ErrNotConfigured
}
