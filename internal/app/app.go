package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rancher/cherry-pick-helper/internal/git"
	gh "github.com/rancher/cherry-pick-helper/internal/github"
	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
	"github.com/rancher/cherry-pick-helper/internal/repo"
)

// ErrNoRepository is returned when no repository path is configured.
var ErrNoRepository = errors.New("no repository configured: pass --repo or run 'cherry-pick-helper config set-repo <path>'")

// Runner glues together the orchestrator and supporting services for one
// CLI invocation.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	ghFactory gh.Factory
	gateway   git.Gateway
	orch      *orchestrator.Orchestrator
}

// GitHubRepo is a GitHub client bound to the repository behind the
// configured remote.
type GitHubRepo struct {
	Client gh.Client
	Ref    gh.RepoRef
}

// NewRunner constructs a Runner with the supplied configuration. Logs are
// written to logOut.
func NewRunner(cfg Config, logOut io.Writer) (*Runner, error) {
	logger, err := NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	var factory gh.Factory = gh.NewNoopFactory()
	if cfg.GitHub.Token != "" {
		factory = gh.NewRESTFactory(cfg.GitHub.BaseURL, cfg.GitHub.UploadURL)
	}

	return NewRunnerWithDeps(cfg, logger, factory, buildGateway(cfg, logger)), nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for testing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, ghFactory gh.Factory, gateway git.Gateway) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if ghFactory == nil {
		ghFactory = gh.NewNoopFactory()
	}
	return &Runner{
		cfg:       cfg,
		log:       log,
		ghFactory: ghFactory,
		gateway:   gateway,
		orch:      orchestrator.New(cfg.OrchestratorConfig(), gateway, log),
	}
}

func buildGateway(cfg Config, logger *slog.Logger) git.Gateway {
	shell := git.NewShellGateway()
	shell.Git = cfg.GitBinary
	shell.NetworkTimeout = cfg.NetworkTimeout

	if cfg.DryRun {
		logger.Info("dry run enabled: repository mutations will be skipped")
		return git.NewDryRunGateway(shell, logger)
	}
	return shell
}

func (r *Runner) Config() Config { return r.cfg }
func (r *Runner) Logger() *slog.Logger { return r.log }
func (r *Runner) Orchestrator() *orchestrator.Orchestrator { return r.orch }

// Repository opens the configured repository.
func (r *Runner) Repository() (repo.Handle, error) {
	if r.cfg.RepositoryPath == "" {
		return repo.Handle{}, ErrNoRepository
	}
	h, err := repo.Open(r.cfg.RepositoryPath)
	if err != nil {
		return repo.Handle{}, err
	}
	r.log.Debug("opened repository", "repo", h.Path())
	return h, nil
}

// GitHub resolves the configured remote of h to a GitHub repository and
// returns a client for it. Without a token the client answers every lookup
// with gh.ErrNotConfigured.
func (r *Runner) GitHub(ctx context.Context, h repo.Handle) (GitHubRepo, error) {
	remotes, err := r.orch.ListRemotes(ctx, h)
	if err != nil {
		return GitHubRepo{}, err
	}

	name := r.cfg.Remote
	for _, rem := range remotes {
		if rem.Name != name || len(rem.URLs) == 0 {
			continue
		}
		ref, err := gh.ParseRemoteURL(rem.URLs[0])
		if err != nil {
			return GitHubRepo{}, fmt.Errorf("remote %s: %w", name, err)
		}
		if !gh.IsGitHubHost(ref.Host, r.cfg.GitHub.BaseURL) {
			return GitHubRepo{}, fmt.Errorf("remote %s points at %s, not GitHub", name, ref.Host)
		}

		client, err := r.GitHubClient(ctx)
		if err != nil {
			return GitHubRepo{}, err
		}
		return GitHubRepo{Client: client, Ref: ref}, nil
	}
	return GitHubRepo{}, fmt.Errorf("remote %s is not configured", name)
}

// GitHubClient returns a client for the configured GitHub host.
func (r *Runner) GitHubClient(ctx context.Context) (gh.Client, error) {
	client, err := r.ghFactory.New(ctx, r.cfg.GitHub.Token)
	if err != nil {
		return nil, fmt.Errorf("initialize github client: %w", err)
	}
	return client, nil
}
