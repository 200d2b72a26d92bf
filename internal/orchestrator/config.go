package orchestrator

import (
	"time"

	"github.com/rancher/cherry-pick-helper/internal/git"
)

// DefaultSinceMonths bounds commit listings when neither the caller nor the
// configuration names a window.
const DefaultSinceMonths = 6

// Config captures the runtime controls the orchestrator needs.
type Config struct {
	// Remote is the remote whose tracking refs are pruned, fetched and diffed
	// against. Defaults to origin.
	Remote string
	// DefaultSinceMonths applies when ListCommits is called with a
	// non-positive window.
	DefaultSinceMonths int
	// IgnoreUntracked lets mutations proceed when the only changes are
	// untracked files.
	IgnoreUntracked bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c Config) remote() string {
	if c.Remote == "" {
		return git.DefaultRemote
	}
	return c.Remote
}

func (c Config) sinceMonths(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.DefaultSinceMonths > 0 {
		return c.DefaultSinceMonths
	}
	return DefaultSinceMonths
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
