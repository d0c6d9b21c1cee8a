package fern

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatch(t *testing.T) {
	t.Run("Pairs Elements Positionally", func(t *testing.T) {
		n := mustCompile(t, Match(
			incr("first"),
			Step("second", func(_ context.Context, v any) (any, error) { return v.(string) + "!", nil }),
		))
		rep := reporterFor(n)

		out := n.eval(context.Background(), newTestEnv(rep), []any{1, "hi"})
		if !out.ok {
			t.Fatal("expected success")
		}
		if diff := cmp.Diff([]any{2, "hi!"}, out.value); diff != "" {
			t.Errorf("unexpected results (-want +got):\n%s", diff)
		}
	})

	t.Run("Arity Mismatch Fails The Match", func(t *testing.T) {
		n := mustCompile(t, Match(incr("a"), incr("b")))
		n.retitle("p")
		rep := reporterFor(n)

		var leaves []*leaf
		collectLeaves(n, &leaves)

		out := n.eval(context.Background(), newTestEnv(rep), []int{1, 2, 3})
		if out.ok {
			t.Fatal("expected failure")
		}
		// No child may run against a misshapen input.
		for i, l := range leaves {
			if len(rep.counter[l]) != 0 {
				t.Errorf("expected no attempts for child %d, got %v", i, rep.counter[l])
			}
		}
		if len(rep.failures) != 1 {
			t.Fatalf("expected one failure, got %d", len(rep.failures))
		}
		if rep.failures[0].Source != "p" {
			t.Errorf("expected failure attributed to the match, got %q", rep.failures[0].Source)
		}
		if diff := cmp.Diff([]any{nil, nil}, out.value); diff != "" {
			t.Errorf("expected aligned defaults tuple (-want +got):\n%s", diff)
		}
	})

	t.Run("Non Iterable Input Fails The Match", func(t *testing.T) {
		n := mustCompile(t, Match(incr("a"), incr("b")))
		rep := reporterFor(n)

		out := n.eval(context.Background(), newTestEnv(rep), 42)
		if out.ok {
			t.Fatal("expected failure")
		}
		if len(rep.failures) != 1 || !rep.failures[0].Fatal {
			t.Errorf("expected one fatal failure, got %+v", rep.failures)
		}
	})

	t.Run("Child Failure Fails Fast", func(t *testing.T) {
		probe := 0
		n := mustCompile(t, Match(
			boom("bad").Default(func() any { return -1 }),
			Step("late", func(_ context.Context, v any) (any, error) {
				probe++
				return v, nil
			}),
		))
		rep := reporterFor(n)

		out := n.eval(context.Background(), newTestEnv(rep), []any{1, 2})
		if out.ok {
			t.Fatal("expected failure")
		}
		if probe != 0 {
			t.Error("expected later child to be skipped after the failure")
		}
		if diff := cmp.Diff([]any{-1, nil}, out.value); diff != "" {
			t.Errorf("expected defaults tuple (-want +got):\n%s", diff)
		}
	})

	t.Run("Required Child Failure Halts", func(t *testing.T) {
		n := mustCompile(t, Match(Required(boom("vital")), incr("b")))
		rep := reporterFor(n)

		out := n.eval(context.Background(), newTestEnv(rep), []any{1, 2})
		if out.ok || !out.halt {
			t.Fatalf("expected halting failure, got ok=%v halt=%v", out.ok, out.halt)
		}
	})

	t.Run("Titles Carry Position", func(t *testing.T) {
		n := mustCompile(t, Match(incr("a"), boom("b")))
		n.retitle("p")
		rep := reporterFor(n)

		n.eval(context.Background(), newTestEnv(rep), []any{1, 2})
		if len(rep.failures) != 1 {
			t.Fatalf("expected one failure, got %d", len(rep.failures))
		}
		if rep.failures[0].Source != "p[1]/b" {
			t.Errorf("expected 'p[1]/b', got %q", rep.failures[0].Source)
		}
	})
}
