package orchestrator

import (
	"github.com/rancher/cherry-pick-helper/internal/git"
	"github.com/rancher/cherry-pick-helper/internal/refs"
)

// Branch is a local or remote-only branch as shown to callers.
type Branch struct {
	Name      string
	IsCurrent bool
	IsRemote  bool
}

// mergeBranches lists locals in gateway order, then remote-only branches.
// Tracking refs of remote lose their "<remote>/" prefix and are dropped when
// a local branch of the same name exists. Other remotes keep full names.
func mergeBranches(listing git.BranchListing, remote string) []Branch {
	result := make([]Branch, 0, len(listing.Local)+len(listing.Remote))
	seen := make(map[string]struct{}, len(listing.Local)+len(listing.Remote))

	for _, lb := range listing.Local {
		if _, ok := seen[lb.Name]; ok {
			continue
		}
		seen[lb.Name] = struct{}{}
		result = append(result, Branch{Name: lb.Name, IsCurrent: lb.IsCurrent})
	}

	for _, rb := range listing.Remote {
		name := rb.Name
		if short, ok := refs.TrimRemote(rb.Name, remote); ok {
			if short == "HEAD" {
				continue
			}
			name = short
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, Branch{Name: name, IsRemote: true})
	}

	return result
}
