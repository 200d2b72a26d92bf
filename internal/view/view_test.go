package view_test

import (
	"fmt"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
	"github.com/rancher/cherry-pick-helper/internal/view"
)

func commits(n int) []orchestrator.Commit {
	out := make([]orchestrator.Commit, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, orchestrator.Commit{
			Hash:    fmt.Sprintf("%040x", i+1),
			Message: fmt.Sprintf("commit %d", i+1),
			Author:  []string{"Alice Smith", "Bob Jones"}[i%2],
		})
	}
	return out
}

var _ = Describe("View", func() {
	Describe("Apply", func() {
		list := []orchestrator.Commit{
			{Hash: "abc1234", Author: "Alice Smith", Message: "fix: handle empty branch"},
			{Hash: "def5678", Author: "Bob Jones", Message: "feat: add sync"},
			{Hash: "abd0000", Author: "alice", Message: "Fix typo"},
		}

		It("matches author and message case-insensitively", func() {
			got := view.Apply(list, view.Filter{Author: "ALICE", Message: "fix"})
			Expect(got).To(HaveLen(2))
			Expect(got[0].Hash).To(Equal("abc1234"))
			Expect(got[1].Hash).To(Equal("abd0000"))
		})

		It("matches hashes by prefix", func() {
			Expect(view.Apply(list, view.Filter{Hash: "AB"})).To(HaveLen(2))
			Expect(view.Apply(list, view.Filter{Hash: "1234"})).To(BeEmpty())
		})

		It("returns everything for a zero filter without aliasing the input", func() {
			f := view.Filter{Author: "  "}
			Expect(f.IsZero()).To(BeTrue())

			got := view.Apply(list, f)
			Expect(got).To(Equal(list))
			got[0].Message = "changed"
			Expect(list[0].Message).To(Equal("fix: handle empty branch"))
		})
	})

	Describe("Paginate", func() {
		It("splits into pages of the requested size", func() {
			page := view.Paginate(commits(45), view.Page{Number: 3, Size: 20})
			Expect(page.Items).To(HaveLen(5))
			Expect(page.Items[0].Message).To(Equal("commit 41"))
			Expect(page.TotalPages).To(Equal(3))
			Expect(page.Total).To(Equal(45))
			Expect(page.HasNext()).To(BeFalse())
		})

		It("defaults the page size and clamps the page number", func() {
			page := view.Paginate(commits(45), view.Page{Number: 99})
			Expect(page.Size).To(Equal(view.DefaultPageSize))
			Expect(page.Number).To(Equal(3))

			page = view.Paginate(commits(45), view.Page{Number: -1})
			Expect(page.Number).To(Equal(1))
			Expect(page.HasNext()).To(BeTrue())
		})

		It("handles a page size larger than any list", func() {
			page := view.Paginate(commits(2), view.Page{Number: 1, Size: math.MaxInt})
			Expect(page.Items).To(HaveLen(2))
			Expect(page.Number).To(Equal(1))
			Expect(page.TotalPages).To(Equal(1))
			Expect(page.HasNext()).To(BeFalse())

			page = view.Paginate(commits(2), view.Page{Number: 5, Size: math.MaxInt})
			Expect(page.Number).To(Equal(1))
			Expect(page.Items).To(HaveLen(2))
		})

		It("returns one empty page for an empty list", func() {
			page := view.Paginate(nil, view.Page{Number: 2, Size: 10})
			Expect(page.Items).To(BeEmpty())
			Expect(page.Number).To(Equal(1))
			Expect(page.TotalPages).To(Equal(1))
		})
	})
})
