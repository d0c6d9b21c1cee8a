package fern

import (
	"context"
	"errors"
	"testing"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"
)

// mustCompile builds a node directly for white-box evaluation tests.
func mustCompile(t *testing.T, s Structure) node {
	t.Helper()
	n, err := s.compile(SeverityNormal)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return n
}

// reporterFor seeds a Reporter with every leaf under n.
func reporterFor(n node) *Reporter {
	var ls []*leaf
	collectLeaves(n, &ls)
	required := 0
	for _, l := range ls {
		if l.sev != SeverityOptional {
			required++
		}
	}
	return newReporter(ls, required)
}

func newTestEnv(rep *Reporter) *evalEnv {
	return &evalEnv{rep: rep, tracer: tracez.New(), clock: clockz.RealClock}
}

// echo is a step that returns its input unchanged.
func echo(name Name) *StepDef {
	return Step(name, func(_ context.Context, v any) (any, error) {
		return v, nil
	})
}

// boom is a step that always fails.
func boom(name Name) *StepDef {
	return Step(name, func(_ context.Context, _ any) (any, error) {
		return nil, errors.New("boom")
	})
}

// incr is a step that adds one to an int input.
func incr(name Name) *StepDef {
	return Step(name, func(_ context.Context, v any) (any, error) {
		return v.(int) + 1, nil
	})
}
