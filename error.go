package fern

import (
	"errors"
	"fmt"
)

// Build-time error categories. Every *BuildError wraps exactly one of
// these sentinels, so callers can classify failures with errors.Is without
// parsing messages.
var (
	// ErrUnbuildable marks a structure that cannot become a node at all:
	// a nil structure, a nil step function or a bad name.
	ErrUnbuildable = errors.New("unbuildable structure")

	// ErrEmptySequence marks a Seq with no real elements — empty, or
	// containing only markers and Pass.
	ErrEmptySequence = errors.New("sequence must contain at least one node")

	// ErrEmptyBranchSet marks a Group or Model with no children.
	ErrEmptyBranchSet = errors.New("branch set must contain at least one branch")

	// ErrNoRequiredBranch marks a Group or Model whose children are all
	// explicitly Optional.
	ErrNoRequiredBranch = errors.New("branch set needs at least one non-optional branch")

	// ErrUnknownMarker marks a Mark token other than "*" or "?".
	ErrUnknownMarker = errors.New("unknown sequence marker")

	// ErrDanglingMarker marks a Mark with no element following it.
	ErrDanglingMarker = errors.New("marker must precede an element")

	// ErrMatchChildren marks a Match with fewer than two children.
	ErrMatchChildren = errors.New("match needs at least two children")

	// ErrOptionalInMatch marks an explicitly Optional child of a Match;
	// positional pairing makes "skip this branch" ill-defined.
	ErrOptionalInMatch = errors.New("match children cannot be optional")
)

// BuildError reports a malformed pipeline structure. It is returned
// synchronously by New; a pipeline is never constructed from an invalid
// structure. Unwrap yields the category sentinel.
type BuildError struct {
	Category error  // one of the Err* sentinels above
	Detail   string // human-readable context: where and what
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Detail == "" {
		return e.Category.Error()
	}
	return fmt.Sprintf("%s: %s", e.Category.Error(), e.Detail)
}

// Unwrap returns the category sentinel, supporting errors.Is.
func (e *BuildError) Unwrap() error {
	return e.Category
}

func buildErr(category error, format string, args ...any) *BuildError {
	return &BuildError{Category: category, Detail: fmt.Sprintf(format, args...)}
}
