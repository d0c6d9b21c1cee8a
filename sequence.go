package fern

import (
	"context"
	"fmt"
)

// sequence runs its steps in order, the output of each feeding the next.
//
// Failure handling follows severity:
//   - an Optional step's failure is swallowed and the step's own input is
//     forwarded unchanged to the next step;
//   - a Normal step's failure fails the sequence immediately with that
//     step's fallback, and later steps are never attempted;
//   - a Required failure additionally halts every ancestor.
type sequence struct {
	nm    Name
	t     Title
	sev   Severity
	steps []node
}

func (s *sequence) name() Name         { return s.nm }
func (s *sequence) title() Title       { return s.t }
func (s *sequence) severity() Severity { return s.sev }
func (s *sequence) kids() []node       { return s.steps }
func (s *sequence) kind() string       { return "seq" }

func (s *sequence) retitle(base Title) {
	s.t = base
	for _, st := range s.steps {
		st.retitle(base + "/" + st.name())
	}
}

// fallback is the shape of the sequence's output: the last step's fallback.
func (s *sequence) fallback() any {
	return s.steps[len(s.steps)-1].fallback()
}

func (s *sequence) fansOut() bool {
	for _, st := range s.steps {
		if st.fansOut() {
			return true
		}
	}
	return false
}

func (s *sequence) eval(ctx context.Context, env *evalEnv, input any) outcome {
	current := input
	for _, st := range s.steps {
		// Check cancellation before each step; a canceled sequence is a
		// fatal structural failure of the sequence itself.
		select {
		case <-ctx.Done():
			env.rep.recordFailure(s.t, current,
				fmt.Errorf("sequence interrupted: %w", ctx.Err()), true, env.clock.Now())
			return outcome{value: s.fallback(), halt: true}
		default:
		}

		out := st.eval(ctx, env, current)
		if out.ok {
			current = out.value
			continue
		}
		if out.halt {
			return outcome{value: out.value, halt: true}
		}
		if st.severity() == SeverityOptional {
			// Swallow the failure, keep input continuity.
			continue
		}
		return outcome{value: out.value}
	}
	return outcome{value: current, ok: true}
}
