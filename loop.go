package fern

import (
	"context"
	"fmt"
)

// loop applies its single child to every element of an iterable input.
// Results keep element order and contain only the successful applications;
// failed elements leave no slot behind. An empty input succeeds with an
// empty result, and the loop as a whole succeeds if any element did.
// Non-iterable input is a shape failure attributed to the loop itself,
// under the child's title with the "-mapper" suffix.
type loop struct {
	nm       Name
	t        Title
	sev      Severity
	kid      node
	parallel bool
}

func (l *loop) name() Name         { return l.nm }
func (l *loop) title() Title       { return l.t }
func (l *loop) severity() Severity { return l.sev }
func (l *loop) kids() []node       { return []node{l.kid} }
func (l *loop) kind() string       { return "loop" }

func (l *loop) retitle(base Title) {
	l.t = base
	l.kid.retitle(base + "/" + l.kid.name())
}

func (l *loop) fallback() any { return []any{} }

func (l *loop) fansOut() bool { return l.parallel || l.kid.fansOut() }

func (l *loop) eval(ctx context.Context, env *evalEnv, input any) outcome {
	elems, err := elements(input)
	if err != nil {
		env.rep.recordFailure(l.t, input, fmt.Errorf("cannot map: %w", err),
			l.sev != SeverityOptional, env.clock.Now())
		return outcome{value: l.fallback(), halt: l.sev == SeverityRequired}
	}
	if len(elems) == 0 {
		return outcome{value: []any{}, ok: true}
	}

	var outs []outcome
	if l.parallel {
		outs = fanOutElements(ctx, env, l.kid, elems)
	} else {
		outs = make([]outcome, len(elems))
		for i, e := range elems {
			outs[i] = l.kid.eval(ctx, env, e)
		}
	}

	results := make([]any, 0, len(outs))
	anyOK, halt := false, false
	for _, out := range outs {
		if out.halt {
			halt = true
		}
		if out.ok {
			results = append(results, out.value)
			anyOK = true
		}
	}
	if halt {
		return outcome{value: l.fallback(), halt: true}
	}
	if !anyOK {
		return outcome{value: l.fallback()}
	}
	return outcome{value: results, ok: true}
}
