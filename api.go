// Package fern builds data-transformation pipelines as executable trees with
// per-step failure isolation.
//
// # Overview
//
// fern lets you describe a computation as a nested structure of steps —
// sequential stages, parallel branches keyed by name or position,
// element-wise mapping, positional matching — and compiles that structure
// once into an executable tree. Invoking the tree runs the described
// computation and produces both a result and an execution report. A broken
// step never crashes the pipeline: its failure is contained at the step
// boundary, recorded, and the rest of the tree degrades according to each
// step's severity.
//
// # Core Concepts
//
// Pipelines are described with a small structure algebra:
//
//	Step    - a single named function            (leaf)
//	Seq     - run elements in order, output feeding input
//	Group   - run every element on the same input, collect by position
//	Model   - run every element on the same input, collect by key
//	Match   - pair element i with input element i
//	Loop    - apply one element to every item of an iterable input
//	Pass    - identity, never fails
//
// Structures are compiled exactly once:
//
//	pipe, err := fern.New("stats", fern.Seq(
//	    fern.Step("fields", splitFields),
//	    fern.Loop(fern.Step("atoi", parseField)),
//	    fern.Model(map[string]fern.Structure{
//	        "max": fern.Step("max", maxOf),
//	        "min": fern.Step("min", minOf),
//	    }),
//	))
//	result, report := pipe.Process(ctx, "1, 2, 3")
//	// result: map[string]any{"max": 3, "min": 1}, report.Rate: 1.0
//
// # Severity
//
// Every node carries a severity controlling failure propagation:
//
//   - Normal: the default. A failing step fails its container, but sibling
//     branches in a Group, Model or Loop still count toward success.
//   - Optional: failures are absorbed locally. A Seq forwards the step's
//     input unchanged; a Group or Model simply omits the branch.
//   - Required: a failure forces every ancestor to fail, overriding the
//     any-success rule of branch containers.
//
// Optional and Required are pure wrappers returning new structures; they
// never mutate a structure shared between trees. Inside a Seq, the markers
// Mark("?") and Mark("*") wrap the following element as Optional or in a
// Loop respectively.
//
// # Failure Isolation
//
// Step errors (and panics) are always caught at the step boundary, never
// propagated out of Process. Each attempt is recorded against the step's
// identity in a Reporter, and each failure keeps the step's fully qualified
// title, the offending input and the error. Processing a pipeline therefore
// never returns an error for data-level failures — it returns a possibly
// partial result plus a report:
//
//	result, report := pipe.Process(ctx, input)
//	for _, f := range report.Failures {
//	    log.Printf("%s failed on %v: %v (fatal=%v)", f.Source, f.Input, f.Err, f.Fatal)
//	}
//
// Malformed structures, by contrast, fail loudly: New returns a *BuildError
// wrapping a stable category sentinel, and no pipeline is constructed.
//
// # Concurrency
//
// Evaluation is single-threaded and depth-first by default. Group, Model and
// Loop can opt into concurrent fan-out with Parallel(); branches then run
// concurrently, each writing a private reporter that is merged after the
// join, and results are reassembled in original branch order. Seq is
// inherently serial — each stage depends on the previous result. A Required
// failure short-circuits a Seq immediately, but never cancels
// already-launched concurrent siblings; their outcomes are still recorded.
//
// # Observability
//
// Each Pipeline owns a metricz registry, a tracez tracer and hookz-backed
// report events. Register report handlers with OnReport; they receive the
// final report after every call. Time is read through a clockz clock so
// tests can substitute a fake.
package fern

import (
	"context"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"
)

// Name is a short identifier for a step or pipeline. Names appear in
// fully qualified titles and failure records, so keep them stable and
// descriptive.
type Name = string

// Title is a fully qualified, hierarchical path of a node inside one
// pipeline, computed from the pipeline name and the branch keys on the way
// down (for example "stats/fields" or "stats/model[max]/max"). Titles are
// assigned once at build time and used for failure attribution.
type Title = string

// StepFunc is the contract for a leaf step: one input value in, one output
// value out. Returning an error marks the step as failed; the error is
// contained at the step boundary and recorded, never propagated. The
// context carries cancellation from the caller of Process.
type StepFunc func(context.Context, any) (any, error)

// Severity controls how a node's failure propagates through its ancestors.
type Severity uint8

const (
	// SeverityNormal fails the immediate container but lets branch
	// containers keep partial results from successful siblings.
	SeverityNormal Severity = iota

	// SeverityOptional absorbs failures locally: sequences forward the
	// input unchanged, branch containers omit the branch.
	SeverityOptional

	// SeverityRequired escalates a failure to every ancestor, overriding
	// the any-success rule of Group, Model and Loop.
	SeverityRequired
)

// String returns the lowercase severity label.
func (s Severity) String() string {
	switch s {
	case SeverityOptional:
		return "optional"
	case SeverityRequired:
		return "required"
	default:
		return "normal"
	}
}

// node is one evaluable unit of a compiled tree. The variant set is closed:
// leaf, sequence, group, model, match, loop and passthrough. Nodes are
// immutable after compilation except for the single title-assignment pass.
type node interface {
	name() Name
	title() Title
	severity() Severity

	// retitle assigns this node's title and recursively derives the
	// titles of its children. Called exactly once, from the pipeline root.
	retitle(base Title)

	// eval runs this node against input, recording attempts and failures
	// in the environment's reporter. It never panics and never returns a
	// Go error; failure is expressed through the outcome.
	eval(ctx context.Context, env *evalEnv, input any) outcome

	// fallback is the value this node stands in when it fails.
	fallback() any

	// kids returns direct children, for traversal and sketching.
	kids() []node

	// kind is the variant tag, used in sketches.
	kind() string

	// fansOut reports whether this node or any descendant evaluates
	// children concurrently.
	fansOut() bool
}

// outcome is the result of evaluating one node. halt marks a
// Required-severity failure somewhere in the subtree; it forces every
// ancestor container to fail regardless of sibling successes.
type outcome struct {
	value any
	ok    bool
	halt  bool
}

// evalEnv carries the per-invocation evaluation state through the
// recursive descent: the reporter collecting outcomes, the pipeline's
// tracer and its clock.
type evalEnv struct {
	rep    *Reporter
	tracer *tracez.Tracer
	clock  clockz.Clock
}

// with returns a copy of the environment writing into a different reporter.
// Used by concurrent fan-out so each branch records into a private fork.
func (e *evalEnv) with(rep *Reporter) *evalEnv {
	return &evalEnv{rep: rep, tracer: e.tracer, clock: e.clock}
}

// collectLeaves gathers every leaf reachable from n in depth-first order.
func collectLeaves(n node, acc *[]*leaf) {
	if l, isLeaf := n.(*leaf); isLeaf {
		*acc = append(*acc, l)
		return
	}
	for _, k := range n.kids() {
		collectLeaves(k, acc)
	}
}
