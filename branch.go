package fern

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// group and model are the two branch-set variants: every branch receives
// the same input independently, with no short-circuiting between siblings.
// A branch set succeeds if at least one branch succeeds; failed branches
// are omitted from the collected result rather than defaulted. When every
// branch fails, the set stands in its fallback: the fallbacks of its
// non-optional branches only, so required keys stay visible even in a dead
// result.
//
// Parallel branch sets fan out with errgroup. Each branch writes a forked
// reporter merged after the join, so the shared Reporter never sees
// concurrent writers, and results are reassembled in branch order. A
// Required failure in one branch never cancels its already-running
// siblings; it only forces the aggregate decision.

// fanOut evaluates branches concurrently against the same input and
// returns their outcomes in branch order. Reporter forks are merged in
// branch order after the join.
func fanOut(ctx context.Context, env *evalEnv, branches []node, input any) []outcome {
	outs := make([]outcome, len(branches))
	forks := make([]*Reporter, len(branches))
	eg, gctx := errgroup.WithContext(ctx)
	for i, b := range branches {
		forks[i] = env.rep.fork()
		benv := env.with(forks[i])
		eg.Go(func() error {
			outs[i] = b.eval(gctx, benv, input)
			return nil
		})
	}
	_ = eg.Wait() //nolint:errcheck // branches report through outcomes, never errors
	for _, f := range forks {
		env.rep.merge(f)
	}
	return outs
}

// fanOutElements evaluates one node concurrently against many inputs,
// returning outcomes in element order. Used by parallel loops; reporter
// forks are merged in element order, so a step reused across elements
// accumulates its attempt list deterministically.
func fanOutElements(ctx context.Context, env *evalEnv, n node, elems []any) []outcome {
	outs := make([]outcome, len(elems))
	forks := make([]*Reporter, len(elems))
	eg, gctx := errgroup.WithContext(ctx)
	for i, e := range elems {
		forks[i] = env.rep.fork()
		benv := env.with(forks[i])
		eg.Go(func() error {
			outs[i] = n.eval(gctx, benv, e)
			return nil
		})
	}
	_ = eg.Wait() //nolint:errcheck
	for _, f := range forks {
		env.rep.merge(f)
	}
	return outs
}

// group collects branch results by position.
type group struct {
	nm       Name
	t        Title
	sev      Severity
	branches []node
	parallel bool
}

func (g *group) name() Name         { return g.nm }
func (g *group) title() Title       { return g.t }
func (g *group) severity() Severity { return g.sev }
func (g *group) kids() []node       { return g.branches }
func (g *group) kind() string       { return "group" }

func (g *group) retitle(base Title) {
	g.t = base
	for i, b := range g.branches {
		b.retitle(Title(fmt.Sprintf("%s[%d]/%s", base, i, b.name())))
	}
}

func (g *group) fallback() any {
	defaults := make([]any, 0, len(g.branches))
	for _, b := range g.branches {
		if b.severity() != SeverityOptional {
			defaults = append(defaults, b.fallback())
		}
	}
	return defaults
}

func (g *group) fansOut() bool {
	if g.parallel {
		return true
	}
	for _, b := range g.branches {
		if b.fansOut() {
			return true
		}
	}
	return false
}

func (g *group) eval(ctx context.Context, env *evalEnv, input any) outcome {
	var outs []outcome
	if g.parallel {
		outs = fanOut(ctx, env, g.branches, input)
	} else {
		outs = make([]outcome, len(g.branches))
		for i, b := range g.branches {
			outs[i] = b.eval(ctx, env, input)
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
		return outcome{value: g.fallback(), halt: true}
	}
	if !anyOK {
		return outcome{value: g.fallback()}
	}
	return outcome{value: results, ok: true}
}

// model collects branch results by key. Branches are held in sorted key
// order so evaluation and reporting stay deterministic.
type model struct {
	nm       Name
	t        Title
	sev      Severity
	keys     []string
	branches []node
	parallel bool
}

func (m *model) name() Name         { return m.nm }
func (m *model) title() Title       { return m.t }
func (m *model) severity() Severity { return m.sev }
func (m *model) kids() []node       { return m.branches }
func (m *model) kind() string       { return "model" }

func (m *model) retitle(base Title) {
	m.t = base
	for i, b := range m.branches {
		b.retitle(Title(fmt.Sprintf("%s[%s]/%s", base, m.keys[i], b.name())))
	}
}

func (m *model) fallback() any {
	defaults := make(map[string]any)
	for i, b := range m.branches {
		if b.severity() != SeverityOptional {
			defaults[m.keys[i]] = b.fallback()
		}
	}
	return defaults
}

func (m *model) fansOut() bool {
	if m.parallel {
		return true
	}
	for _, b := range m.branches {
		if b.fansOut() {
			return true
		}
	}
	return false
}

func (m *model) eval(ctx context.Context, env *evalEnv, input any) outcome {
	var outs []outcome
	if m.parallel {
		outs = fanOut(ctx, env, m.branches, input)
	} else {
		outs = make([]outcome, len(m.branches))
		for i, b := range m.branches {
			outs[i] = b.eval(ctx, env, input)
		}
	}

	results := make(map[string]any, len(outs))
	anyOK, halt := false, false
	for i, out := range outs {
		if out.halt {
			halt = true
		}
		if out.ok {
			results[m.keys[i]] = out.value
			anyOK = true
		}
	}
	if halt {
		return outcome{value: m.fallback(), halt: true}
	}
	if !anyOK {
		return outcome{value: m.fallback()}
	}
	return outcome{value: results, ok: true}
}
