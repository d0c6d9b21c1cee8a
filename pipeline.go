package fern

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Pipeline.
const (
	// Metrics.
	PipelineProcessedTotal = metricz.Key("pipeline.processed.total")
	PipelineSucceededTotal = metricz.Key("pipeline.succeeded.total")
	PipelineFailedTotal    = metricz.Key("pipeline.failed.total")
	PipelineRate           = metricz.Key("pipeline.rate")
	PipelineDurationMs     = metricz.Key("pipeline.duration.ms")

	// Spans.
	PipelineProcessSpan = tracez.Key("pipeline.process")

	// Tags.
	PipelineTagName    = tracez.Tag("pipeline.name")
	PipelineTagSuccess = tracez.Tag("pipeline.success")

	// Hook event keys.
	PipelineEventReport = hookz.Key("pipeline.report")
)

// ReportEvent is delivered to report handlers after every pipeline call.
type ReportEvent struct {
	Name      Name          // pipeline name
	Report    *Report       // snapshot of the invocation's reporter
	Succeeded bool          // whether the root evaluation succeeded
	Duration  time.Duration // wall time of the call, per the pipeline clock
	Timestamp time.Time     // when the call finished
}

// Pipeline is a compiled execution tree. Build one with New; it is
// immutable afterwards apart from attached report handlers, and safe for
// concurrent Process calls (each call owns its Reporter).
//
// Processing never returns an error for data-level failures. A step that
// errors or panics degrades the result — its container substitutes
// defaults or omits the branch per severity — and the details land in the
// returned Report. A fully failed root yields the root's fallback value,
// nil for a plain step.
type Pipeline struct {
	name       Name
	root       node
	components []*leaf
	required   int
	clock      clockz.Clock
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	hooks      *hookz.Hooks[ReportEvent]
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithClock substitutes the clock used for failure timestamps and call
// durations. Tests pass clockz.NewFakeClock() for deterministic time.
func WithClock(clock clockz.Clock) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// New compiles a structure into a Pipeline. The structure is consumed
// exactly once: shape validation, severity resolution, title assignment
// from the pipeline name, and component counting all happen here. A
// malformed structure returns a *BuildError and no pipeline.
//
// Example:
//
//	pipe, err := fern.New("normalize", fern.Seq(
//	    fern.Step("trim", trimInput),
//	    fern.Mark("?"), fern.Step("spellcheck", spellcheck),
//	    fern.Step("casefold", casefold),
//	))
func New(name Name, s Structure, opts ...Option) (*Pipeline, error) {
	if name == "" {
		return nil, buildErr(ErrUnbuildable, "pipeline name is empty")
	}
	if s == nil {
		return nil, buildErr(ErrUnbuildable, "nil structure")
	}
	root, err := s.compile(SeverityNormal)
	if err != nil {
		return nil, err
	}
	root.retitle(Title(name))

	var components []*leaf
	collectLeaves(root, &components)
	required := 0
	for _, l := range components {
		if l.sev != SeverityOptional {
			required++
		}
	}

	metrics := metricz.New()
	metrics.Counter(PipelineProcessedTotal)
	metrics.Counter(PipelineSucceededTotal)
	metrics.Counter(PipelineFailedTotal)
	metrics.Gauge(PipelineRate)
	metrics.Gauge(PipelineDurationMs)

	p := &Pipeline{
		name:       name,
		root:       root,
		components: components,
		required:   required,
		metrics:    metrics,
		tracer:     tracez.New(),
		hooks:      hookz.New[ReportEvent](),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = clockz.RealClock
	}
	return p, nil
}

// Process runs the tree on input with a fresh Reporter and returns the
// result together with the invocation's report. Report handlers attached
// via OnReport receive the same report asynchronously.
func (p *Pipeline) Process(ctx context.Context, input any) (any, *Report) {
	return p.exec(ctx, input, newReporter(p.components, p.required))
}

// ProcessWith runs the tree recording into a caller-supplied Reporter,
// enabling aggregation across calls; obtain one from Reporter. A nil
// reporter behaves like Process. Only the result is returned — snapshot
// the reporter with its Report method when done.
func (p *Pipeline) ProcessWith(ctx context.Context, input any, rep *Reporter) any {
	if rep == nil {
		rep = newReporter(p.components, p.required)
	}
	result, _ := p.exec(ctx, input, rep)
	return result
}

// Reporter returns a fresh Reporter seeded with this pipeline's components,
// for use with ProcessWith.
func (p *Pipeline) Reporter() *Reporter {
	return newReporter(p.components, p.required)
}

func (p *Pipeline) exec(ctx context.Context, input any, rep *Reporter) (any, *Report) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := p.clock.Now()
	p.metrics.Counter(PipelineProcessedTotal).Inc()

	result, ok := p.run(ctx, input, rep)

	report := rep.Report()
	elapsed := p.clock.Now().Sub(start)
	if ok {
		p.metrics.Counter(PipelineSucceededTotal).Inc()
	} else {
		p.metrics.Counter(PipelineFailedTotal).Inc()
	}
	p.metrics.Gauge(PipelineRate).Set(report.Rate)
	p.metrics.Gauge(PipelineDurationMs).Set(float64(elapsed.Milliseconds()))

	_ = p.hooks.Emit(ctx, PipelineEventReport, ReportEvent{ //nolint:errcheck
		Name:      p.name,
		Report:    report,
		Succeeded: ok,
		Duration:  elapsed,
		Timestamp: p.clock.Now(),
	})
	return result, report
}

// run performs the actual evaluation under a trace span, with a top-level
// panic guard: even a defect in a fallback provider degrades to the root's
// default rather than escaping to the caller.
func (p *Pipeline) run(ctx context.Context, input any, rep *Reporter) (result any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			ok = false
		}
	}()

	ctx, span := p.tracer.StartSpan(ctx, PipelineProcessSpan)
	span.SetTag(PipelineTagName, string(p.name))

	out := p.root.eval(ctx, &evalEnv{rep: rep, tracer: p.tracer, clock: p.clock}, input)

	if out.ok {
		span.SetTag(PipelineTagSuccess, "true")
	} else {
		span.SetTag(PipelineTagSuccess, "false")
	}
	span.Finish()
	return out.value, out.ok
}

// OnReport registers a handler invoked asynchronously with the final
// report after every call.
func (p *Pipeline) OnReport(handler func(context.Context, ReportEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventReport, handler)
	return err
}

// Name returns the pipeline name.
func (p *Pipeline) Name() Name {
	return p.name
}

// Components returns the number of leaf steps in the tree.
func (p *Pipeline) Components() int {
	return len(p.components)
}

// RequiredComponents returns the number of leaf steps that must succeed
// for a full-rate run — every component that is not Optional.
func (p *Pipeline) RequiredComponents() int {
	return p.required
}

// Concurrent reports whether any part of the tree evaluates branches or
// elements concurrently.
func (p *Pipeline) Concurrent() bool {
	return p.root.fansOut()
}

// Metrics returns the metrics registry for this pipeline.
func (p *Pipeline) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for this pipeline.
func (p *Pipeline) Tracer() *tracez.Tracer {
	return p.tracer
}

// Close gracefully shuts down observability components.
func (p *Pipeline) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	p.hooks.Close()
	return nil
}
