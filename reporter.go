package fern

import (
	"time"
)

// Failure is one recorded step failure: where it happened, what input
// triggered it, and the contained error. Fatal mirrors the failing node's
// severity — false only for Optional nodes.
type Failure struct {
	Source    Title     // fully qualified title of the failing node
	Input     any       // the input that caused the failure
	Err       error     // the contained error
	Fatal     bool      // false when the failing node was Optional
	Timestamp time.Time // when the failure was recorded
}

// Reporter records step outcomes for pipeline invocations. A fresh Reporter
// is created per Process call; obtain one from (*Pipeline).Reporter and pass
// it to ProcessWith to aggregate outcomes across calls instead.
//
// A Reporter is seeded with the pipeline's components (its leaf steps) so it
// can tell attempted steps from missed ones. Per-leaf outcomes are ordered
// lists, one entry per attempt, so a step reused inside a Loop accumulates
// one entry per element.
//
// Reporter is not safe for concurrent writers. Concurrent fan-out inside a
// pipeline never shares one: each branch writes a private fork that the
// parent merges after the join.
type Reporter struct {
	order      []*leaf
	components map[*leaf]struct{}
	required   int
	counter    map[*leaf][]bool
	failures   []Failure
}

func newReporter(components []*leaf, required int) *Reporter {
	set := make(map[*leaf]struct{}, len(components))
	for _, l := range components {
		set[l] = struct{}{}
	}
	return &Reporter{
		order:      components,
		components: set,
		required:   required,
		counter:    make(map[*leaf][]bool),
	}
}

// recordAttempt appends one outcome to the leaf's attempt list. Attempts
// against leaves outside the seeded component set are still tracked — they
// count toward the raw Succeeded/Failed totals but not toward rates — and
// never fail the invocation.
func (r *Reporter) recordAttempt(l *leaf, ok bool) {
	r.counter[l] = append(r.counter[l], ok)
}

// recordFailure appends one failure record. Repeated failures of the same
// title (a step inside a Loop, say) are all retained.
func (r *Reporter) recordFailure(source Title, input any, err error, fatal bool, at time.Time) {
	r.failures = append(r.failures, Failure{
		Source:    source,
		Input:     input,
		Err:       err,
		Fatal:     fatal,
		Timestamp: at,
	})
}

// fork returns an empty Reporter sharing this one's component seeding.
// Concurrent branches each write into a fork; merge folds them back in.
func (r *Reporter) fork() *Reporter {
	return &Reporter{
		order:      r.order,
		components: r.components,
		required:   r.required,
		counter:    make(map[*leaf][]bool),
	}
}

// merge folds a fork's outcomes into this Reporter. Called single-threaded
// after the fan-out join, in branch order.
func (r *Reporter) merge(o *Reporter) {
	for l, outs := range o.counter {
		r.counter[l] = append(r.counter[l], outs...)
	}
	r.failures = append(r.failures, o.failures...)
}

// Reset clears all recorded outcomes, keeping the component seeding. The
// Reporter behaves as freshly created afterwards.
func (r *Reporter) Reset() {
	r.counter = make(map[*leaf][]bool)
	r.failures = nil
}

// Report is an immutable snapshot of one or more pipeline invocations.
type Report struct {
	// Rate is the sum over attempted components of their per-step success
	// ratio, divided by the total component count. 1.0 means every
	// component was attempted and never failed.
	Rate float64

	// ExpectedRate divides the same sum by the count of required
	// (non-optional) components, clamped to [0, 1].
	ExpectedRate float64

	Succeeded int // raw successful attempts across all steps
	Failed    int // raw failed attempts across all steps
	Missed    int // components never attempted at all
	Total     int // components declared by the pipeline
	Required  int // components that must succeed

	// Failures lists every recorded failure in evaluation order.
	Failures []Failure
}

// Report computes a snapshot of everything recorded so far. It is
// read-only: calling it repeatedly without intervening evaluation yields
// identical values. Zero components yields zero rates, never a division
// error.
func (r *Reporter) Report() *Report {
	var sum float64
	missed := 0
	for _, l := range r.order {
		outs := r.counter[l]
		if len(outs) == 0 {
			missed++
			continue
		}
		succ := 0
		for _, ok := range outs {
			if ok {
				succ++
			}
		}
		sum += float64(succ) / float64(len(outs))
	}

	succeeded, failed := 0, 0
	for _, outs := range r.counter {
		for _, ok := range outs {
			if ok {
				succeeded++
			} else {
				failed++
			}
		}
	}

	rep := &Report{
		Succeeded: succeeded,
		Failed:    failed,
		Missed:    missed,
		Total:     len(r.order),
		Required:  r.required,
		Failures:  append([]Failure(nil), r.failures...),
	}
	if rep.Total > 0 {
		rep.Rate = sum / float64(rep.Total)
	}
	if rep.Required > 0 {
		rep.ExpectedRate = min(sum/float64(rep.Required), 1)
	}
	return rep
}
