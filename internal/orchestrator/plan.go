package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rancher/cherry-pick-helper/internal/refs"
)

const minAbbrevLen = 7

// Plan is an ordered batch of commits to apply from Source onto Target.
// Build it with Orchestrator.BuildPlan so every hash is known to be a
// candidate of the diff at construction time.
type Plan struct {
	Source  string
	Target  string
	Commits []string
}

func (p Plan) validate() error {
	if len(p.Commits) == 0 {
		return errors.New("plan has no commits")
	}
	if err := refs.ValidateBranchName(p.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	seen := make(map[string]struct{}, len(p.Commits))
	for _, h := range p.Commits {
		if strings.TrimSpace(h) == "" {
			return errors.New("plan contains an empty hash")
		}
		if _, ok := seen[h]; ok {
			return fmt.Errorf("commit %s listed twice", h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

// ApplyResult reports how far a plan got. On a conflict, Failed names the
// commit that stopped the run and Remaining the commits never attempted.
type ApplyResult struct {
	RunID     string
	Target    string
	Applied   []string
	Failed    string
	Remaining []string
	// Clean is the post-apply working tree state.
	Clean bool
}

// Count is the number of commits applied.
func (r ApplyResult) Count() int {
	return len(r.Applied)
}

// resolveHashes maps each requested hash onto a candidate, expanding
// abbreviations. Order is preserved; duplicates are rejected.
func resolveHashes(requested []string, candidates []Commit) ([]string, error) {
	if len(requested) == 0 {
		return nil, errors.New("at least one commit is required")
	}

	resolved := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, raw := range requested {
		full, err := resolveHash(strings.ToLower(strings.TrimSpace(raw)), candidates)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[full]; dup {
			return nil, fmt.Errorf("commit %s selected more than once", raw)
		}
		seen[full] = struct{}{}
		resolved = append(resolved, full)
	}
	return resolved, nil
}

func resolveHash(h string, candidates []Commit) (string, error) {
	if h == "" {
		return "", errors.New("empty commit hash")
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Hash, h) {
			return c.Hash, nil
		}
	}
	if len(h) < minAbbrevLen || !isHex(h) {
		return "", fmt.Errorf("commit %s is not a cherry-pick candidate", h)
	}

	var match string
	for _, c := range candidates {
		if !strings.HasPrefix(strings.ToLower(c.Hash), h) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("commit %s is ambiguous", h)
		}
		match = c.Hash
	}
	if match == "" {
		return "", fmt.Errorf("commit %s is not a cherry-pick candidate", h)
	}
	return match, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
