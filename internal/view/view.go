// Package view filters and pages commit lists for display. Every function is
// pure: inputs are never modified and results share no backing arrays with
// them.
package view

import (
	"slices"
	"strings"

	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
)

// DefaultPageSize is used when a Page has no size.
const DefaultPageSize = 20

// Filter narrows a commit list. Empty fields match everything; set fields
// must all match, case-insensitively, as substrings.
type Filter struct {
	Author  string
	Message string
	// Hash matches as a prefix.
	Hash string
}

// IsZero reports whether f matches every commit.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Author) == "" && strings.TrimSpace(f.Message) == "" && strings.TrimSpace(f.Hash) == ""
}

// Match reports whether c satisfies f.
func (f Filter) Match(c orchestrator.Commit) bool {
	if !containsFold(c.Author, f.Author) {
		return false
	}
	if !containsFold(c.Message, f.Message) {
		return false
	}
	if h := strings.TrimSpace(f.Hash); h != "" && !strings.HasPrefix(strings.ToLower(c.Hash), strings.ToLower(h)) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Apply returns the commits matching f, in input order.
func Apply(commits []orchestrator.Commit, f Filter) []orchestrator.Commit {
	if f.IsZero() {
		return slices.Clone(commits)
	}
	out := make([]orchestrator.Commit, 0, len(commits))
	for _, c := range commits {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

// Page selects one page. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// PageResult is one page of commits plus enough context to render a pager.
type PageResult struct {
	Items      []orchestrator.Commit
	Number     int
	Size       int
	Total      int
	TotalPages int
}

// HasNext reports whether a later page exists.
func (p PageResult) HasNext() bool {
	return p.Number < p.TotalPages
}

// Paginate returns page p of commits. Out-of-range page numbers are clamped
// to the first or last page.
func Paginate(commits []orchestrator.Commit, p Page) PageResult {
	size := p.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(commits)
	pages := total / size
	if total%size != 0 || pages == 0 {
		pages++
	}

	number := p.Number
	if number < 1 {
		number = 1
	}
	if number > pages {
		number = pages
	}

	start := (number - 1) * size
	end := start + min(size, total-start)

	items := make([]orchestrator.Commit, end-start)
	copy(items, commits[start:end])

	return PageResult{Items: items, Number: number, Size: size, Total: total, TotalPages: pages}
}
