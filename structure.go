package fern

// Structure is a description of a pipeline tree, built only through the
// package constructors (Step, Seq, Group, Model, Match, Loop, Optional,
// Required, Mark, Pass). The set of shapes is closed; compilation dispatches
// over it structurally, with no runtime type inspection of user values.
//
// Structures are plain values: they hold no evaluation state and may be
// reused in any number of pipelines. Compiling a structure never mutates it.
type Structure interface {
	// compile turns the structure into an executable node. sev is the
	// severity inherited from the enclosing structure; an explicit
	// Optional or Required wrapper overrides it for its subtree.
	compile(sev Severity) (node, error)
}

// StepDef describes a single leaf step. Create one with Step, or with the
// typed adapters Transform, Apply and Effect.
type StepDef struct {
	nm  Name
	fn  StepFunc
	def func() any
}

// Step wraps a single-argument function as a leaf step. If name is empty, a
// deterministic name is derived from the function's runtime identity.
//
// The function's error (or panic) is contained at the step boundary: the
// step reports a failure and stands in its default value, nil unless
// overridden with Default.
func Step(name Name, fn StepFunc) *StepDef {
	return &StepDef{nm: name, fn: fn}
}

// Default returns a copy of the step whose failure value comes from the
// given provider instead of nil. The provider is called once per failure.
func (s *StepDef) Default(provider func() any) *StepDef {
	c := *s
	c.def = provider
	return &c
}

// seqDef is the ordered pipeline shape produced by Seq.
type seqDef struct {
	elems []Structure
}

// Seq describes an ordered sequence: the output of element i feeds the
// input of element i+1. Mark("*") and Mark("?") may precede an element to
// wrap it in a Loop or mark it Optional. A one-element Seq collapses to
// that element. A Seq with no real elements is a build error.
func Seq(elems ...Structure) Structure {
	return &seqDef{elems: elems}
}

// GroupDef describes a list-keyed branch set: every child receives the same
// input independently, and results are collected in branch order. Create
// one with Group.
type GroupDef struct {
	elems    []Structure
	parallel bool
}

// Group describes a branch set keyed by position. Each branch receives the
// same input; failed branches are omitted from the collected []any result.
// The group succeeds if at least one branch succeeds.
func Group(elems ...Structure) *GroupDef {
	return &GroupDef{elems: elems}
}

// Parallel returns a copy of the group that evaluates its branches
// concurrently. Results keep branch order regardless of completion order.
func (g *GroupDef) Parallel() *GroupDef {
	c := *g
	c.elems = append([]Structure(nil), g.elems...)
	c.parallel = true
	return &c
}

// ModelDef describes a dict-keyed branch set. Create one with Model.
type ModelDef struct {
	entries  map[string]Structure
	parallel bool
}

// Model describes a branch set keyed by name. Each branch receives the same
// input; failed branches are absent from the collected map[string]any
// result. The model succeeds if at least one branch succeeds. Branches are
// compiled and evaluated in sorted key order for determinism.
func Model(entries map[string]Structure) *ModelDef {
	return &ModelDef{entries: entries}
}

// Parallel returns a copy of the model that evaluates its branches
// concurrently.
func (m *ModelDef) Parallel() *ModelDef {
	c := *m
	c.entries = make(map[string]Structure, len(m.entries))
	for k, v := range m.entries {
		c.entries[k] = v
	}
	c.parallel = true
	return &c
}

// MatchDef describes a positional pairing shape. Create one with Match.
type MatchDef struct {
	elems []Structure
}

// Match describes positional correspondence: child i processes element i of
// an iterable input of exactly matching length. Any arity mismatch is a
// failure of the match itself, and any child failure fails the whole match.
// A Match needs at least two children, none of them Optional.
func Match(elems ...Structure) *MatchDef {
	return &MatchDef{elems: elems}
}

// LoopDef describes an element-wise mapping shape. Create one with Loop.
type LoopDef struct {
	elem     Structure
	parallel bool
}

// Loop describes element-wise application: the wrapped structure runs once
// per element of an iterable input. Results keep element order and contain
// only the successful applications; an empty input succeeds with an empty
// result.
func Loop(elem Structure) *LoopDef {
	return &LoopDef{elem: elem}
}

// Parallel returns a copy of the loop that processes elements concurrently.
func (l *LoopDef) Parallel() *LoopDef {
	c := *l
	c.parallel = true
	return &c
}

// sevDef overrides the severity of its subtree.
type sevDef struct {
	child Structure
	sev   Severity
}

// Optional marks a structure as optional: its failures are absorbed by the
// enclosing container. The wrapper is pure — it returns a new structure and
// never modifies the wrapped one.
func Optional(s Structure) Structure {
	return &sevDef{child: s, sev: SeverityOptional}
}

// Required marks a structure as required: its failure forces every ancestor
// container to fail, overriding any-success aggregation. Pure, like
// Optional.
func Required(s Structure) Structure {
	return &sevDef{child: s, sev: SeverityRequired}
}

// markDef is a positional option token inside a Seq.
type markDef struct {
	token string
}

// Mark is a positional marker inside a Seq: "*" wraps the next element in a
// Loop, "?" marks the next element Optional. Any other token, a marker with
// nothing following it, or a marker outside a Seq is a build error.
func Mark(token string) Structure {
	return &markDef{token: token}
}

// passDef is the explicit no-op slot.
type passDef struct{}

// Pass describes an identity node: it forwards its input unchanged and
// never fails. It cannot be the sole content of a Seq.
func Pass() Structure {
	return passDef{}
}
