// Package session tracks the caller's progress through one cherry-pick flow:
// load branches, compute a diff, select a plan, apply it.
package session

import (
	"errors"
	"fmt"

	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
)

// State is a step of the flow.
type State string

const (
	Idle           State = "idle"
	BranchesLoaded State = "branches_loaded"
	DiffComputed   State = "diff_computed"
	PlanSelected   State = "plan_selected"
	Applying       State = "applying"
	Applied        State = "applied"
	Conflicted     State = "conflicted"
)

var transitions = map[State][]State{
	Idle:           {BranchesLoaded},
	BranchesLoaded: {BranchesLoaded, DiffComputed},
	DiffComputed:   {BranchesLoaded, DiffComputed, PlanSelected},
	PlanSelected:   {DiffComputed, PlanSelected, Applying},
	Applying:       {Applied, Conflicted, PlanSelected},
	Applied:        {BranchesLoaded},
	Conflicted:     {},
}

// ErrInvalidTransition is wrapped by every rejected transition.
var ErrInvalidTransition = errors.New("invalid session transition")

// Session is not safe for concurrent use; it belongs to one caller.
type Session struct {
	state      State
	branches   []orchestrator.Branch
	source     string
	target     string
	candidates []orchestrator.Commit
	plan       orchestrator.Plan
	result     orchestrator.ApplyResult
	failure    error
}

// New returns a session in the Idle state.
func New() *Session {
	return &Session{state: Idle}
}

func (s *Session) State() State { return s.state }
func (s *Session) Branches() []orchestrator.Branch { return s.branches }
func (s *Session) Source() string { return s.source }
func (s *Session) Target() string { return s.target }
func (s *Session) Candidates() []orchestrator.Commit { return s.candidates }
func (s *Session) Plan() orchestrator.Plan { return s.plan }
func (s *Session) Result() orchestrator.ApplyResult { return s.result }
func (s *Session) Failure() error { return s.failure }

func (s *Session) move(to State) error {
	if s.state == "" {
		s.state = Idle
	}
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
}

// LoadBranches records the branch listing.
func (s *Session) LoadBranches(branches []orchestrator.Branch) error {
	if err := s.move(BranchesLoaded); err != nil {
		return err
	}
	s.branches = branches
	s.source, s.target, s.candidates = "", "", nil
	s.plan = orchestrator.Plan{}
	return nil
}

// ComputeDiff records the candidates of source onto target.
func (s *Session) ComputeDiff(source, target string, candidates []orchestrator.Commit) error {
	if err := s.move(DiffComputed); err != nil {
		return err
	}
	s.source, s.target, s.candidates = source, target, candidates
	s.plan = orchestrator.Plan{}
	return nil
}

// SelectPlan records the plan to apply. It must match the computed diff's
// branches.
func (s *Session) SelectPlan(plan orchestrator.Plan) error {
	if s.state == DiffComputed || s.state == PlanSelected {
		if plan.Source != s.source || plan.Target != s.target {
			return fmt.Errorf("%w: plan %s -> %s does not match diff %s -> %s", ErrInvalidTransition, plan.Source, plan.Target, s.source, s.target)
		}
		if len(plan.Commits) == 0 {
			return fmt.Errorf("%w: empty plan", ErrInvalidTransition)
		}
	}
	if err := s.move(PlanSelected); err != nil {
		return err
	}
	s.plan = plan
	return nil
}

// Begin marks the plan as being applied.
func (s *Session) Begin() error {
	return s.move(Applying)
}

// Finish records the outcome of applying the plan. A conflict moves the
// session to Conflicted. Any other failure returns it to PlanSelected so the
// caller can fix the cause (a dirty tree, say) and try again.
func (s *Session) Finish(result orchestrator.ApplyResult, err error) error {
	next := Applied
	switch {
	case orchestrator.IsKind(err, orchestrator.KindConflict):
		next = Conflicted
	case err != nil:
		next = PlanSelected
	}
	if moveErr := s.move(next); moveErr != nil {
		return moveErr
	}
	s.result = result
	s.failure = err
	return nil
}

// Reset discards everything and returns to Idle. It is the only way out of
// Conflicted, once the repository has been resolved by hand.
func (s *Session) Reset() {
	*s = Session{state: Idle}
}
