package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/cherry-pick-helper/internal/git"
	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
	"github.com/rancher/cherry-pick-helper/internal/repo"
	"github.com/rancher/cherry-pick-helper/internal/testutil"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx  context.Context
		now  time.Time
		fake *fakeGateway
		orch *orchestrator.Orchestrator
		h    repo.Handle
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		fake = &fakeGateway{}
		orch = orchestrator.New(orchestrator.Config{Now: func() time.Time { return now }}, fake, nil)

		var err error
		h, err = repo.Open(testutil.InitRepo(GinkgoT()))
		Expect(err).NotTo(HaveOccurred())
	})

	It("tags operations on an invalid handle", func() {
		_, err := orch.ListBranches(ctx, repo.Handle{})
		Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindInvalidRepository))
		Expect(fake.calls).To(BeEmpty())

		_, err = orch.ApplyCherryPickPlan(ctx, repo.Handle{}, orchestrator.Plan{Target: "main", Commits: []string{"abc"}})
		Expect(orchestrator.IsKind(err, orchestrator.KindInvalidRepository)).To(BeTrue())
	})

	Describe("ListBranches", func() {
		It("prefers the local branch and reports remote-only branches by short name", func() {
			fake.listing = git.BranchListing{
				Local: []git.LocalBranch{{Name: "A", IsCurrent: true}},
				Remote: []git.RemoteBranch{
					{Name: "origin/HEAD"},
					{Name: "origin/A"},
					{Name: "origin/B"},
				},
			}

			branches, err := orch.ListBranches(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(branches).To(Equal([]orchestrator.Branch{
				{Name: "A", IsCurrent: true},
				{Name: "B", IsRemote: true},
			}))
			Expect(fake.calls).To(Equal([]string{"prune origin", "branch-list"}))
		})

		It("keeps branches of other remotes qualified", func() {
			fake.listing = git.BranchListing{
				Local:  []git.LocalBranch{{Name: "main", IsCurrent: true}},
				Remote: []git.RemoteBranch{{Name: "origin/main"}, {Name: "upstream/main"}},
			}

			branches, err := orch.ListBranches(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(branches).To(HaveLen(2))
			Expect(branches[1]).To(Equal(orchestrator.Branch{Name: "upstream/main", IsRemote: true}))
		})

		It("passes gateway output through without retrying", func() {
			fake.pruneErr = gitFailure("fatal: 'origin' does not appear to be a git repository", "remote", "prune", "origin")

			_, err := orch.ListBranches(ctx, h)
			var oe *orchestrator.Error
			Expect(errors.As(err, &oe)).To(BeTrue())
			Expect(oe.Kind).To(Equal(orchestrator.KindGateway))
			Expect(oe.Step).To(Equal("prune"))
			Expect(oe.Detail).To(ContainSubstring("does not appear to be a git repository"))
			Expect(fake.calls).To(Equal([]string{"prune origin"}))
		})
	})

	Describe("ListCommits", func() {
		It("uses a six month window by default and drops older authorship", func() {
			fake.logEntries = []git.LogEntry{
				{Hash: "new", AuthorName: "Alice", AuthoredAt: now.AddDate(0, -1, 0), Message: "recent"},
				{Hash: "edge", AuthorName: "Bob", AuthoredAt: now.AddDate(0, -6, 0), Message: "boundary"},
				{Hash: "old", AuthorName: "Carol", AuthoredAt: now.AddDate(0, -7, 0), Message: "rebased long ago"},
			}

			commits, err := orch.ListCommits(ctx, h, "main", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(commits).To(HaveLen(2))
			Expect(commits[0]).To(Equal(orchestrator.Commit{Hash: "new", Author: "Alice", AuthoredAt: now.AddDate(0, -1, 0), Message: "recent"}))
			Expect(commits[1].Hash).To(Equal("edge"))

			Expect(fake.logCalls).To(HaveLen(1))
			Expect(fake.logCalls[0].Ref).To(Equal("main"))
			Expect(fake.logCalls[0].Since).To(Equal(now.AddDate(0, -6, 0)))
		})

		It("honors an explicit window and an empty branch as HEAD", func() {
			_, err := orch.ListCommits(ctx, h, "", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.logCalls[0].Ref).To(BeEmpty())
			Expect(fake.logCalls[0].Since).To(Equal(now.AddDate(0, -2, 0)))
		})

		It("uses the configured default window", func() {
			orch = orchestrator.New(orchestrator.Config{DefaultSinceMonths: 3, Now: func() time.Time { return now }}, fake, nil)

			_, err := orch.ListCommits(ctx, h, "main", -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.logCalls[0].Since).To(Equal(now.AddDate(0, -3, 0)))
		})

		It("reads a remote-only branch through its tracking ref", func() {
			fake.listing = git.BranchListing{
				Local:  []git.LocalBranch{{Name: "main", IsCurrent: true}},
				Remote: []git.RemoteBranch{{Name: "origin/main"}, {Name: "origin/release"}, {Name: "upstream/hotfix"}},
			}

			_, err := orch.ListCommits(ctx, h, "release", 0)
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.ListCommits(ctx, h, "main", 0)
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.ListCommits(ctx, h, "upstream/hotfix", 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(fake.logCalls).To(HaveLen(3))
			Expect(fake.logCalls[0].Ref).To(Equal("origin/release"))
			Expect(fake.logCalls[1].Ref).To(Equal("main"))
			Expect(fake.logCalls[2].Ref).To(Equal("upstream/hotfix"))
		})

		It("fails with a gateway error for an unknown branch", func() {
			fake.logErr = gitFailure("fatal: bad revision 'nope'", "log", "nope")

			_, err := orch.ListCommits(ctx, h, "nope", 0)
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindGateway))
			Expect(err.(*orchestrator.Error).Detail).To(Equal("fatal: bad revision 'nope'"))
		})
	})

	Describe("DiffForCherryPick", func() {
		BeforeEach(func() {
			fake.listing = git.BranchListing{
				Local:  []git.LocalBranch{{Name: "main", IsCurrent: true}},
				Remote: []git.RemoteBranch{{Name: "origin/main"}, {Name: "origin/feature"}, {Name: "origin/release"}},
			}
			fake.logEntries = []git.LogEntry{
				{Hash: "c5", Message: "five"},
				{Hash: "c4", Message: "four"},
			}
		})

		It("fetches both branches and returns candidates oldest first", func() {
			commits, err := orch.DiffForCherryPick(ctx, h, "feature", "main")
			Expect(err).NotTo(HaveOccurred())
			Expect(commits).To(HaveLen(2))
			Expect(commits[0].Hash).To(Equal("c4"))
			Expect(commits[1].Hash).To(Equal("c5"))

			Expect(fake.fetchCalls).To(Equal([]fetchCall{
				{remote: "origin", refs: []string{"feature"}},
				{remote: "origin", refs: []string{"main"}},
			}))
			Expect(fake.logCalls).To(Equal([]git.LogOptions{{
				Range:           "main...origin/feature",
				CherryPickAware: true,
				ExcludeMerges:   true,
			}}))
		})

		It("fetches once when source and target are the same branch", func() {
			_, err := orch.DiffForCherryPick(ctx, h, "main", "main")
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.fetchCalls).To(Equal([]fetchCall{{remote: "origin", refs: []string{"main"}}}))
		})

		It("is stable across repeated calls", func() {
			first, err := orch.DiffForCherryPick(ctx, h, "feature", "main")
			Expect(err).NotTo(HaveOccurred())
			second, err := orch.DiffForCherryPick(ctx, h, "feature", "main")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("diffs against the tracking ref when the target has no local branch", func() {
			_, err := orch.DiffForCherryPick(ctx, h, "feature", "release")
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.logCalls[0].Range).To(Equal("origin/release...origin/feature"))
		})

		It("tolerates a target that only exists locally", func() {
			fake.listing.Local = append(fake.listing.Local, git.LocalBranch{Name: "local-only"})
			fake.fetchErrs = map[string]error{"local-only": gitFailure("fatal: couldn't find remote ref local-only")}

			_, err := orch.DiffForCherryPick(ctx, h, "feature", "local-only")
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.logCalls[0].Range).To(Equal("local-only...origin/feature"))
		})

		It("fails when the source is missing on the remote", func() {
			fake.fetchErrs = map[string]error{"gone": gitFailure("fatal: couldn't find remote ref gone")}

			_, err := orch.DiffForCherryPick(ctx, h, "gone", "main")
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindGateway))
			Expect(err.(*orchestrator.Error).Step).To(Equal("fetch"))
			Expect(fake.logCalls).To(BeEmpty())
		})

		It("fails when the target cannot be resolved", func() {
			_, err := orch.DiffForCherryPick(ctx, h, "feature", "nowhere")
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindGateway))
			Expect(err.(*orchestrator.Error).Step).To(Equal("resolve"))
		})

		It("rejects option-like names before touching git", func() {
			_, err := orch.DiffForCherryPick(ctx, h, "--upload-pack=evil", "main")
			Expect(err).To(HaveOccurred())
			Expect(fake.calls).To(BeEmpty())
		})
	})

	Describe("BuildPlan", func() {
		const (
			c4 = "4444444444444444444444444444444444444444"
			c5 = "5555555555555555555555555555555555555555"
		)

		BeforeEach(func() {
			fake.listing = git.BranchListing{Local: []git.LocalBranch{{Name: "release"}}}
			fake.logEntries = []git.LogEntry{{Hash: c5}, {Hash: c4}}
		})

		It("expands abbreviations and preserves the requested order", func() {
			plan, err := orch.BuildPlan(ctx, h, "main", "release", []string{c5, "4444444"})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan).To(Equal(orchestrator.Plan{Source: "main", Target: "release", Commits: []string{c5, c4}}))
		})

		It("rejects hashes outside the diff", func() {
			_, err := orch.BuildPlan(ctx, h, "main", "release", []string{"deadbeefdeadbeef"})
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindInvalidPlan))
		})

		It("rejects short abbreviations and duplicates", func() {
			_, err := orch.BuildPlan(ctx, h, "main", "release", []string{"444"})
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindInvalidPlan))

			_, err = orch.BuildPlan(ctx, h, "main", "release", []string{c4, "44444444"})
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindInvalidPlan))
		})

		It("rejects an empty selection without touching git", func() {
			_, err := orch.BuildPlan(ctx, h, "main", "release", nil)
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindInvalidPlan))
			Expect(fake.calls).To(BeEmpty())
		})
	})

	Describe("ApplyCherryPickPlan", func() {
		plan := orchestrator.Plan{Source: "main", Target: "release", Commits: []string{"h1", "h2", "h3"}}

		It("refuses a dirty working tree without mutating anything", func() {
			fake.statuses = []git.Status{{
				CurrentBranch: "main",
				ChangedFiles:  []git.FileChange{{Path: "README.md", Kind: git.ChangeUnstaged, Code: ".M"}},
			}}

			result, err := orch.ApplyCherryPickPlan(ctx, h, plan)
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindDirtyWorkingTree))
			Expect(err.(*orchestrator.Error).Detail).To(Equal(".M README.md"))
			Expect(result.Count()).To(Equal(0))
			Expect(fake.checkouts).To(BeEmpty())
			Expect(fake.picks).To(BeEmpty())
		})

		It("treats untracked files as dirty unless configured otherwise", func() {
			untracked := git.Status{CurrentBranch: "main", ChangedFiles: []git.FileChange{{Path: "scratch", Kind: git.ChangeUntracked, Code: "??"}}}
			fake.statuses = []git.Status{untracked}

			_, err := orch.ApplyCherryPickPlan(ctx, h, plan)
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindDirtyWorkingTree))

			orch = orchestrator.New(orchestrator.Config{IgnoreUntracked: true}, fake, nil)
			result, err := orch.ApplyCherryPickPlan(ctx, h, plan)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Count()).To(Equal(3))
		})

		It("stops at the first conflict and leaves the rest unattempted", func() {
			fake.pickErrs = map[string]error{"h2": gitFailure("CONFLICT (content): Merge conflict in README.md", "cherry-pick", "h2")}

			result, err := orch.ApplyCherryPickPlan(ctx, h, plan)
			var oe *orchestrator.Error
			Expect(errors.As(err, &oe)).To(BeTrue())
			Expect(oe.Kind).To(Equal(orchestrator.KindConflict))
			Expect(oe.Commit).To(Equal("h2"))
			Expect(oe.Detail).To(ContainSubstring("Merge conflict in README.md"))

			Expect(result.Applied).To(Equal([]string{"h1"}))
			Expect(result.Failed).To(Equal("h2"))
			Expect(result.Remaining).To(Equal([]string{"h3"}))
			Expect(fake.picks).To(Equal([]string{"h1", "h2"}))
			Expect(fake.calls).NotTo(ContainElement(ContainSubstring("abort")))
			Expect(fake.calls).NotTo(ContainElement(ContainSubstring("reset")))
		})

		It("applies every commit in order and verifies the tree afterwards", func() {
			result, err := orch.ApplyCherryPickPlan(ctx, h, plan)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Count()).To(Equal(3))
			Expect(result.Applied).To(Equal(plan.Commits))
			Expect(result.Remaining).To(BeEmpty())
			Expect(result.Clean).To(BeTrue())
			Expect(result.RunID).NotTo(BeEmpty())
			Expect(result.Target).To(Equal("release"))
			Expect(fake.calls).To(Equal([]string{
				"status", "checkout release", "cherry-pick h1", "cherry-pick h2", "cherry-pick h3", "status",
			}))
		})

		It("reports a dirty tree after a successful run without failing", func() {
			fake.statuses = []git.Status{
				{CurrentBranch: "main"},
				{CurrentBranch: "release", ChangedFiles: []git.FileChange{{Path: "gen.go", Kind: git.ChangeUnstaged, Code: ".M"}}},
			}

			result, err := orch.ApplyCherryPickPlan(ctx, h, plan)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Count()).To(Equal(3))
			Expect(result.Clean).To(BeFalse())
		})

		It("tags a failed checkout as a gateway error", func() {
			fake.checkoutErr = gitFailure("error: pathspec 'release' did not match", "checkout", "release")

			_, err := orch.ApplyCherryPickPlan(ctx, h, plan)
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindGateway))
			Expect(err.(*orchestrator.Error).Step).To(Equal("checkout"))
			Expect(fake.picks).To(BeEmpty())
		})

		It("honors cancellation only between commits", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			fake.onPick = func(_ context.Context, hash string) {
				if hash == "h1" {
					cancel()
				}
			}

			result, err := orch.ApplyCherryPickPlan(cctx, h, plan)
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindCanceled))
			Expect(err.(*orchestrator.Error).Commit).To(Equal("h2"))
			Expect(result.Applied).To(Equal([]string{"h1"}))
			Expect(result.Remaining).To(Equal([]string{"h2", "h3"}))
			Expect(fake.pickCtxErr).To(Equal([]error{nil}))
		})

		It("rejects malformed plans", func() {
			_, err := orch.ApplyCherryPickPlan(ctx, h, orchestrator.Plan{Target: "release"})
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindInvalidPlan))

			_, err = orch.ApplyCherryPickPlan(ctx, h, orchestrator.Plan{Target: "release", Commits: []string{"h1", "h1"}})
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindInvalidPlan))
			Expect(fake.calls).To(BeEmpty())
		})

		It("never runs two mutations on the same path at once", func() {
			var inFlight, maxInFlight int32
			fake.onPick = func(context.Context, string) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
			}

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := orch.ApplyCherryPickPlan(ctx, h, plan)
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			Expect(atomic.LoadInt32(&maxInFlight)).To(Equal(int32(1)))
			Expect(fake.picks).To(HaveLen(12))
		})

		It("gives up waiting for the lock when the context ends", func() {
			started := make(chan struct{})
			unblock := make(chan struct{})
			fake.onPick = func(_ context.Context, hash string) {
				if hash == "h1" {
					close(started)
					<-unblock
				}
			}

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				_, err := orch.ApplyCherryPickPlan(ctx, h, orchestrator.Plan{Target: "release", Commits: []string{"h1"}})
				Expect(err).NotTo(HaveOccurred())
			}()
			Eventually(started).Should(BeClosed())

			waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := orch.SyncBranch(waitCtx, h, "main")
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindCanceled))
			Expect(err.(*orchestrator.Error).Step).To(Equal("lock"))

			close(unblock)
			Eventually(done).Should(BeClosed())
			Expect(fake.resets).To(BeEmpty())
		})
	})

	Describe("SyncBranch", func() {
		It("fetches, checks out and hard-resets to the tracking ref", func() {
			fake.statuses = []git.Status{{CurrentBranch: "main"}}

			Expect(orch.SyncBranch(ctx, h, "release")).To(Succeed())
			Expect(fake.calls).To(Equal([]string{"fetch release", "status", "checkout release", "reset origin/release"}))
		})

		It("skips the checkout when the branch is already current", func() {
			fake.statuses = []git.Status{{CurrentBranch: "release"}}

			Expect(orch.SyncBranch(ctx, h, "release")).To(Succeed())
			Expect(fake.checkouts).To(BeEmpty())
			Expect(fake.resets).To(Equal([]string{"origin/release"}))
		})

		It("fails with a gateway error when the remote branch is missing", func() {
			fake.fetchErrs = map[string]error{"gone": gitFailure("fatal: couldn't find remote ref gone")}

			err := orch.SyncBranch(ctx, h, "gone")
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindGateway))
			Expect(fake.mutations()).To(BeEmpty())
		})
	})

	Describe("supplemental operations", func() {
		It("refuses to check out over a dirty tree", func() {
			fake.statuses = []git.Status{{CurrentBranch: "main", ChangedFiles: []git.FileChange{{Path: "a", Kind: git.ChangeStaged, Code: "M."}}}}

			err := orch.CheckoutBranch(ctx, h, "release")
			Expect(orchestrator.KindOf(err)).To(Equal(orchestrator.KindDirtyWorkingTree))
			Expect(fake.checkouts).To(BeEmpty())
		})

		It("checks out a clean tree", func() {
			Expect(orch.CheckoutBranch(ctx, h, "release")).To(Succeed())
			Expect(fake.checkouts).To(Equal([]string{"release"}))
		})

		It("pulls from the configured remote", func() {
			orch = orchestrator.New(orchestrator.Config{Remote: "upstream"}, fake, nil)
			Expect(orch.Pull(ctx, h)).To(Succeed())
			Expect(fake.pulls).To(Equal([]string{"upstream"}))
		})

		It("reports status and the current branch", func() {
			fake.statuses = []git.Status{{CurrentBranch: "release", ChangedFiles: []git.FileChange{{Path: "x", Kind: git.ChangeUntracked, Code: "??"}}}}

			st, err := orch.Status(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.CurrentBranch).To(Equal("release"))
			Expect(st.Clean).To(BeFalse())
			Expect(st.Changes).To(HaveLen(1))

			current, err := orch.CurrentBranch(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(current).To(Equal("release"))
		})

		It("reports a detached HEAD", func() {
			fake.statuses = []git.Status{{Detached: true}}

			current, err := orch.CurrentBranch(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(current).To(Equal("HEAD"))
		})

		It("lists remotes", func() {
			fake.remotes = []git.Remote{{Name: "origin", URLs: []string{"git@github.com:rancher/rancher.git"}}}

			remotes, err := orch.ListRemotes(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(remotes).To(Equal(fake.remotes))
		})
	})
})
