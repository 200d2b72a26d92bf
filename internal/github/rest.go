package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	github "github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

const defaultUserAgent = "cherry-pick-helper"

// NewRESTFactory returns a GitHub client factory backed by the go-github REST client. When
// base and upload URLs are provided, the factory targets a GitHub Enterprise instance.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(baseURL),
		uploadURL: strings.TrimSpace(uploadURL),
	}
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
}

type restClient struct {
	client *github.Client
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	var ghClient *github.Client
	if f.baseURL != "" {
		baseURLNormalized, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		uploadURL := f.uploadURL
		if uploadURL == "" {
			return nil, fmt.Errorf("github upload url must be provided when base url is set")
		}

		uploadURLNormalized, err := normalizeGitHubURL(uploadURL)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = github.NewClient(tc).WithEnterpriseURLs(baseURLNormalized, uploadURLNormalized)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	} else {
		ghClient = github.NewClient(tc)
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	return &restClient{client: ghClient}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

func (c *restClient) GetRepository(ctx context.Context, owner, repo string) (Repository, error) {
	r, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		err = classifyGitHubError(err)
		return Repository{}, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}

	result := Repository{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		HTMLURL:       r.GetHTMLURL(),
		Private:       r.GetPrivate(),
		Archived:      r.GetArchived(),
	}
	if o := r.GetOwner(); o != nil {
		result.Owner = o.GetLogin()
	}
	return result, nil
}

func (c *restClient) EnsureBranchExists(ctx context.Context, owner, repo, branch string) error {
	_, resp, err := c.client.Repositories.GetBranch(ctx, owner, repo, branch, false)
	if err != nil {
		if isNotFound(resp, err) {
			return ErrBranchNotFound
		}
		err = classifyGitHubError(err)
		return fmt.Errorf("get branch %s: %w", branch, err)
	}
	return nil
}

// PullRequestsForCommit lists pull requests that contain sha, following
// pagination. An unknown commit yields no pull requests.
func (c *restClient) PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]PullRequest, error) {
	opts := &github.ListOptions{PerPage: 100}

	var results []PullRequest
	for {
		prs, resp, err := c.client.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, sha, opts)
		if err != nil {
			if isNotFound(resp, err) || isUnprocessable(resp) {
				return nil, nil
			}
			err = classifyGitHubError(err)
			return nil, fmt.Errorf("list pull requests for %s: %w", sha, err)
		}

		for _, pr := range prs {
			if pr == nil {
				continue
			}
			result := PullRequest{
				Number: pr.GetNumber(),
				Title:  pr.GetTitle(),
				URL:    pr.GetHTMLURL(),
				State:  pr.GetState(),
				Merged: pr.MergedAt != nil,
			}
			if user := pr.GetUser(); user != nil {
				result.Author = user.GetLogin()
			}
			if head := pr.GetHead(); head != nil {
				result.Head = head.GetRef()
			}
			if base := pr.GetBase(); base != nil {
				result.Base = base.GetRef()
			}
			results = append(results, result)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return results, nil
}

func isUnprocessable(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusUnprocessableEntity
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var githubErr *github.ErrorResponse
	if errors.As(err, &githubErr) {
		if githubErr.Response != nil && githubErr.Response.StatusCode == http.StatusNotFound {
			return true
		}
	}
	return false
}

func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitHubError(err) {
		return &retryableError{err: err}
	}
	return err
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil {
			code := respErr.Response.StatusCode
			if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	return false
}
