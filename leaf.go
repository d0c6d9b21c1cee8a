package fern

import (
	"context"
	"fmt"

	"github.com/zoobzio/tracez"
)

// Observability constants for step evaluation.
const (
	// Spans.
	StepSpan = tracez.Key("step.eval")

	// Tags.
	StepTagName    = tracez.Tag("step.name")
	StepTagTitle   = tracez.Tag("step.title")
	StepTagSuccess = tracez.Tag("step.success")
	StepTagError   = tracez.Tag("step.error")
)

// leaf wraps a single user function. It is the only node variant that runs
// user code, and the only place errors and panics are contained.
type leaf struct {
	nm  Name
	t   Title
	sev Severity
	fn  StepFunc
	def func() any
}

func (l *leaf) name() Name         { return l.nm }
func (l *leaf) title() Title       { return l.t }
func (l *leaf) severity() Severity { return l.sev }
func (l *leaf) retitle(base Title) { l.t = base }
func (l *leaf) fallback() any      { return l.def() }
func (l *leaf) kids() []node       { return nil }
func (l *leaf) kind() string       { return "step" }
func (l *leaf) fansOut() bool      { return false }

func (l *leaf) eval(ctx context.Context, env *evalEnv, input any) outcome {
	ctx, span := env.tracer.StartSpan(ctx, StepSpan)
	span.SetTag(StepTagName, string(l.nm))
	span.SetTag(StepTagTitle, string(l.t))

	result, err := l.invoke(ctx, input)
	env.rep.recordAttempt(l, err == nil)

	if err != nil {
		span.SetTag(StepTagSuccess, "false")
		span.SetTag(StepTagError, err.Error())
		span.Finish()
		env.rep.recordFailure(l.t, input, err, l.sev != SeverityOptional, env.clock.Now())
		return outcome{value: l.fallback(), halt: l.sev == SeverityRequired}
	}

	span.SetTag(StepTagSuccess, "true")
	span.Finish()
	return outcome{value: result, ok: true}
}

// invoke calls the user function with panic containment. A panicking step
// is indistinguishable from one returning an error: the pipeline degrades,
// the host process survives.
func (l *leaf) invoke(ctx context.Context, input any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("step %q panicked: %v", l.nm, r)
		}
	}()
	return l.fn(ctx, input)
}
