package fern

import (
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// This file turns structures into executable nodes. Compilation is a single
// recursive pass: validate the shape, resolve effective severities (nearest
// explicit wrapper wins, children inherit their container's), and build the
// node variant. All build-time errors surface here as *BuildError; nothing
// is ever half-constructed.

func (s *StepDef) compile(sev Severity) (node, error) {
	if s == nil {
		return nil, buildErr(ErrUnbuildable, "nil step")
	}
	if s.fn == nil {
		return nil, buildErr(ErrUnbuildable, "step %q has no function", s.nm)
	}
	nm := s.nm
	if nm == "" {
		nm = inferName(s.fn)
	}
	def := s.def
	if def == nil {
		def = func() any { return nil }
	}
	return &leaf{nm: nm, sev: sev, fn: s.fn, def: def}, nil
}

func (s *seqDef) compile(sev Severity) (node, error) {
	elems, err := applyMarkers(s.elems)
	if err != nil {
		return nil, err
	}
	real := 0
	for _, e := range elems {
		if _, isPass := e.(passDef); !isPass {
			real++
		}
	}
	if real == 0 {
		return nil, buildErr(ErrEmptySequence, "%d elements, none executable", len(s.elems))
	}
	// A one-element sequence is just that element.
	if len(elems) == 1 {
		return elems[0].compile(sev)
	}
	steps := make([]node, len(elems))
	for i, e := range elems {
		n, cerr := e.compile(sev)
		if cerr != nil {
			return nil, cerr
		}
		steps[i] = n
	}
	return &sequence{nm: "seq", sev: sev, steps: steps}, nil
}

// applyMarkers consumes Mark tokens positionally, wrapping the element that
// follows each one. Markers are only meaningful directly inside a Seq.
func applyMarkers(elems []Structure) ([]Structure, error) {
	out := make([]Structure, 0, len(elems))
	wrapLoop, wrapOpt := false, false
	for i, e := range elems {
		if e == nil {
			return nil, buildErr(ErrUnbuildable, "nil element at position %d", i)
		}
		if m, isMark := e.(*markDef); isMark {
			switch m.token {
			case "*":
				wrapLoop = true
			case "?":
				wrapOpt = true
			default:
				return nil, buildErr(ErrUnknownMarker, "%q", m.token)
			}
			continue
		}
		if wrapLoop {
			e = Loop(e)
		}
		if wrapOpt {
			e = Optional(e)
		}
		wrapLoop, wrapOpt = false, false
		out = append(out, e)
	}
	if wrapLoop || wrapOpt {
		return nil, buildErr(ErrDanglingMarker, "marker at end of sequence")
	}
	return out, nil
}

func (g *GroupDef) compile(sev Severity) (node, error) {
	if len(g.elems) == 0 {
		return nil, buildErr(ErrEmptyBranchSet, "empty group")
	}
	if allExplicitlyOptional(g.elems) {
		return nil, buildErr(ErrNoRequiredBranch, "all %d group branches are optional", len(g.elems))
	}
	branches := make([]node, len(g.elems))
	for i, e := range g.elems {
		if e == nil {
			return nil, buildErr(ErrUnbuildable, "nil branch at position %d", i)
		}
		n, err := e.compile(sev)
		if err != nil {
			return nil, err
		}
		branches[i] = n
	}
	return &group{nm: "group", sev: sev, branches: branches, parallel: g.parallel}, nil
}

func (m *ModelDef) compile(sev Severity) (node, error) {
	if len(m.entries) == 0 {
		return nil, buildErr(ErrEmptyBranchSet, "empty model")
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	all := true
	for _, k := range keys {
		if !explicitlyOptional(m.entries[k]) {
			all = false
			break
		}
	}
	if all {
		return nil, buildErr(ErrNoRequiredBranch, "all %d model branches are optional", len(keys))
	}

	branches := make([]node, len(keys))
	for i, k := range keys {
		e := m.entries[k]
		if e == nil {
			return nil, buildErr(ErrUnbuildable, "nil branch %q", k)
		}
		n, err := e.compile(sev)
		if err != nil {
			return nil, err
		}
		branches[i] = n
	}
	return &model{nm: "model", sev: sev, keys: keys, branches: branches, parallel: m.parallel}, nil
}

func (m *MatchDef) compile(sev Severity) (node, error) {
	if len(m.elems) < 2 {
		return nil, buildErr(ErrMatchChildren, "got %d", len(m.elems))
	}
	branches := make([]node, len(m.elems))
	for i, e := range m.elems {
		if e == nil {
			return nil, buildErr(ErrUnbuildable, "nil element at position %d", i)
		}
		if explicitlyOptional(e) {
			return nil, buildErr(ErrOptionalInMatch, "position %d", i)
		}
		n, err := e.compile(sev)
		if err != nil {
			return nil, err
		}
		branches[i] = n
	}
	return &match{nm: "match", sev: sev, branches: branches}, nil
}

func (l *LoopDef) compile(sev Severity) (node, error) {
	if l.elem == nil {
		return nil, buildErr(ErrUnbuildable, "loop has no element")
	}
	if _, isPass := l.elem.(passDef); isPass {
		return nil, buildErr(ErrUnbuildable, "loop requires an executable element")
	}
	kid, err := l.elem.compile(sev)
	if err != nil {
		return nil, err
	}
	return &loop{nm: kid.name() + "-mapper", sev: sev, kid: kid, parallel: l.parallel}, nil
}

func (s *sevDef) compile(Severity) (node, error) {
	if s.child == nil {
		return nil, buildErr(ErrUnbuildable, "%s wrapper around nil", s.sev)
	}
	return s.child.compile(s.sev)
}

func (m *markDef) compile(Severity) (node, error) {
	return nil, buildErr(ErrUnbuildable, "marker %q outside a sequence", m.token)
}

func (passDef) compile(Severity) (node, error) {
	return passthrough{}, nil
}

// explicitlyOptional reports whether the structure carries a direct
// Optional wrapper. Validation looks at declared intent, not inherited
// severity, so wrapping a whole Group in Optional stays legal.
func explicitlyOptional(s Structure) bool {
	sd, isSev := s.(*sevDef)
	return isSev && sd.sev == SeverityOptional
}

func allExplicitlyOptional(elems []Structure) bool {
	for _, e := range elems {
		if !explicitlyOptional(e) {
			return false
		}
	}
	return true
}

// inferName derives a deterministic step name from the function's runtime
// identity: the trailing symbol of its qualified name, with package and
// method-value noise trimmed.
func inferName(fn StepFunc) Name {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "step"
	}
	nm := f.Name()
	nm = nm[strings.LastIndexByte(nm, '/')+1:]
	if i := strings.IndexByte(nm, '.'); i >= 0 {
		nm = nm[i+1:]
	}
	nm = strings.TrimSuffix(nm, "-fm")
	if nm == "" {
		return "step"
	}
	return nm
}
