package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rancher/cherry-pick-helper/internal/git"
)

// Kind classifies orchestrator failures so callers can branch without
// matching on messages.
type Kind string

const (
	KindInvalidRepository Kind = "invalid_repository"
	KindGateway           Kind = "gateway"
	KindDirtyWorkingTree  Kind = "dirty_working_tree"
	KindConflict          Kind = "conflict"
	KindInvalidPlan       Kind = "invalid_plan"
	KindCanceled          Kind = "canceled"
)

// Error is the only error type returned by exported Orchestrator operations.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "apply".
	Op string
	// Step is the git step within Op, e.g. "checkout" or "cherry-pick".
	Step string
	// Commit is set when the failure is tied to one commit of a plan.
	Commit string
	// Detail is the raw output reported by git, when there was any.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, e.Kind)
	if e.Step != "" {
		fmt.Fprintf(&b, " during %s", e.Step)
	}
	if e.Commit != "" {
		fmt.Fprintf(&b, " of %s", e.Commit)
	}
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	case e.Detail != "":
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// gatewayError tags a gateway failure. Context errors become KindCanceled.
func gatewayError(op, step, commit string, err error) *Error {
	kind := KindGateway
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &Error{Kind: kind, Op: op, Step: step, Commit: commit, Detail: git.OutputOf(err), Err: err}
}
