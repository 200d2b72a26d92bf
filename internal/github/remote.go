package gh

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// scpLike matches the scp-style syntax git accepts for ssh remotes,
// e.g. git@github.com:rancher/rancher.git.
var scpLike = regexp.MustCompile(`^(?:[A-Za-z0-9._-]+@)?([A-Za-z0-9.-]+):([^/][^:]*)$`)

// RepoRef identifies a repository on a GitHub host.
type RepoRef struct {
	Host  string
	Owner string
	Name  string
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRemoteURL extracts host, owner and repository from a git remote URL.
// https, ssh, git and scp-style URLs are accepted; a trailing ".git" and
// slashes are ignored.
func ParseRemoteURL(raw string) (RepoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepoRef{}, fmt.Errorf("remote url cannot be empty")
	}

	var host, path string
	if m := scpLike.FindStringSubmatch(raw); m != nil && !strings.Contains(raw, "://") {
		host, path = m[1], m[2]
	} else {
		parsed, err := url.Parse(raw)
		if err != nil {
			return RepoRef{}, fmt.Errorf("parse remote url: %w", err)
		}
		switch parsed.Scheme {
		case "https", "http", "ssh", "git":
		default:
			return RepoRef{}, fmt.Errorf("unsupported remote url scheme %q", parsed.Scheme)
		}
		host, path = parsed.Hostname(), parsed.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("remote url %q does not name an owner/repository", raw)
	}

	return RepoRef{Host: strings.ToLower(host), Owner: parts[0], Name: parts[1]}, nil
}

// IsGitHubHost reports whether host is github.com or, when enterpriseBaseURL
// is set, the host of that GitHub Enterprise instance.
func IsGitHubHost(host, enterpriseBaseURL string) bool {
	host = strings.ToLower(host)
	if host == "github.com" || host == "www.github.com" {
		return true
	}
	if enterpriseBaseURL == "" {
		return false
	}
	u, err := url.Parse(enterpriseBaseURL)
	return err == nil && strings.EqualFold(u.Hostname(), host)
}
