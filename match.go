package fern

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// match pairs child i with element i of an iterable input of exactly
// matching length. It asserts positional correspondence: a length or shape
// mismatch is a failure of the match node itself — no child is attempted —
// and any single child failure fails the whole match immediately. There is
// no optional-branch leniency; the builder rejects Optional children.
type match struct {
	nm       Name
	t        Title
	sev      Severity
	branches []node
}

func (m *match) name() Name         { return m.nm }
func (m *match) title() Title       { return m.t }
func (m *match) severity() Severity { return m.sev }
func (m *match) kids() []node       { return m.branches }
func (m *match) kind() string       { return "match" }

func (m *match) retitle(base Title) {
	m.t = base
	for i, b := range m.branches {
		b.retitle(Title(fmt.Sprintf("%s[%d]/%s", base, i, b.name())))
	}
}

// fallback is the aligned tuple of every child's fallback.
func (m *match) fallback() any {
	defaults := make([]any, len(m.branches))
	for i, b := range m.branches {
		defaults[i] = b.fallback()
	}
	return defaults
}

func (m *match) fansOut() bool {
	for _, b := range m.branches {
		if b.fansOut() {
			return true
		}
	}
	return false
}

func (m *match) eval(ctx context.Context, env *evalEnv, input any) outcome {
	elems, err := elements(input)
	if err == nil && len(elems) != len(m.branches) {
		err = fmt.Errorf("expected %d elements, got %d", len(m.branches), len(elems))
	}
	if err != nil {
		env.rep.recordFailure(m.t, input, err, m.sev != SeverityOptional, env.clock.Now())
		return outcome{value: m.fallback(), halt: m.sev == SeverityRequired}
	}

	results := make([]any, len(m.branches))
	for i, b := range m.branches {
		out := b.eval(ctx, env, elems[i])
		if !out.ok {
			return outcome{value: m.fallback(), halt: out.halt}
		}
		results[i] = out.value
	}
	return outcome{value: results, ok: true}
}

// elements flattens an iterable input into []any. Slices and arrays of any
// element type qualify; everything else is a shape error for the caller to
// attribute.
func elements(input any) ([]any, error) {
	if input == nil {
		return nil, errors.New("input is not iterable: <nil>")
	}
	rv := reflect.ValueOf(input)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("input of type %T is not iterable", input)
	}
}
