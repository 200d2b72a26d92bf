// Package refs normalizes and validates branch names and the remote-tracking
// names derived from them.
package refs

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const headsPrefix = "refs/heads/"

// NormalizeBranch turns a user-typed branch into the short name the
// orchestrator expects: surrounding space and slashes go, as does a
// refs/heads/ prefix in any case.
func NormalizeBranch(branch string) string {
	name := strings.Trim(strings.TrimSpace(branch), "/")
	if len(name) >= len(headsPrefix) && strings.EqualFold(name[:len(headsPrefix)], headsPrefix) {
		name = strings.Trim(name[len(headsPrefix):], "/")
	}
	return strings.TrimSpace(name)
}

// ValidateBranchName rejects names git would refuse, or that would be read as
// a revision expression once interpolated into a range.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return errors.New("branch cannot be empty")
	}

	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch %q cannot start with '-'", branch)
	}

	if strings.ContainsAny(branch, " \t\n\r") {
		return fmt.Errorf("branch %q cannot contain whitespace", branch)
	}

	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch %q cannot contain '..'", branch)
	}

	if strings.ContainsAny(branch, "~^:?*[]@{\\") {
		return fmt.Errorf("branch %q contains forbidden git characters", branch)
	}

	if strings.HasSuffix(branch, ".lock") || strings.HasSuffix(branch, ".") {
		return fmt.Errorf("branch %q has a forbidden suffix", branch)
	}

	return nil
}

// RemoteRef returns the remote-tracking name of branch on remote.
func RemoteRef(remote, branch string) string {
	return remote + "/" + branch
}

// TrimRemote strips "<remote>/" from ref. ok is false when ref belongs to
// another remote.
func TrimRemote(ref, remote string) (branch string, ok bool) {
	branch, ok = strings.CutPrefix(ref, remote+"/")
	if !ok || branch == "" {
		return "", false
	}
	return branch, true
}

// Unique drops repeated names and keeps the first occurrence of each.
func Unique(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
