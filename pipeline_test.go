package fern

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/clockz"
)

func statsPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	maxOf := Transform("max", func(_ context.Context, vs []any) int {
		best := vs[0].(int)
		for _, v := range vs[1:] {
			if n := v.(int); n > best {
				best = n
			}
		}
		return best
	})
	minOf := Transform("min", func(_ context.Context, vs []any) int {
		best := vs[0].(int)
		for _, v := range vs[1:] {
			if n := v.(int); n < best {
				best = n
			}
		}
		return best
	})
	p, err := New("stats", Seq(
		Transform("fields", func(_ context.Context, s string) []string {
			return strings.Split(s, ",")
		}),
		Mark("*"), Apply("atoi", func(_ context.Context, s string) (int, error) {
			return strconv.Atoi(strings.TrimSpace(s))
		}),
		Model(map[string]Structure{"max": maxOf, "min": minOf}),
	), opts...)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return p
}

func calcPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New("calc", Seq(
		Apply("parse", func(_ context.Context, s string) (float64, error) {
			return strconv.ParseFloat(strings.TrimSpace(s), 64)
		}),
		Apply("sqrt", func(_ context.Context, f float64) (float64, error) {
			if f < 0 {
				return 0, errors.New("negative input")
			}
			return math.Sqrt(f), nil
		}),
	))
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return p
}

func TestPipeline(t *testing.T) {
	t.Run("End To End Success", func(t *testing.T) {
		p := statsPipeline(t)
		defer p.Close()

		result, report := p.Process(context.Background(), "1, 2, 3")
		want := map[string]any{"max": 3, "min": 1}
		if diff := cmp.Diff(want, result); diff != "" {
			t.Errorf("unexpected result (-want +got):\n%s", diff)
		}
		if report.Rate != 1.0 {
			t.Errorf("expected rate 1.0, got %v", report.Rate)
		}
		if report.Failed != 0 || len(report.Failures) != 0 {
			t.Errorf("expected clean report, got %+v", report)
		}
		if report.Total != 4 {
			t.Errorf("expected 4 components, got %d", report.Total)
		}
	})

	t.Run("End To End Failure Degrades", func(t *testing.T) {
		p := calcPipeline(t)
		defer p.Close()

		result, report := p.Process(context.Background(), "-5")
		if result != nil {
			t.Errorf("expected nil result from failed tail step, got %v", result)
		}
		if len(report.Failures) != 1 {
			t.Fatalf("expected one failure, got %d", len(report.Failures))
		}
		if report.Failures[0].Source != "calc/sqrt" {
			t.Errorf("expected failure at 'calc/sqrt', got %q", report.Failures[0].Source)
		}
		if !almostEqual(report.Rate, 0.5) {
			t.Errorf("expected rate 0.5, got %v", report.Rate)
		}
		if report.Succeeded != 1 || report.Failed != 1 {
			t.Errorf("unexpected totals: %+v", report)
		}
	})

	t.Run("Type Mismatch Is A Step Failure", func(t *testing.T) {
		p := calcPipeline(t)
		defer p.Close()

		result, report := p.Process(context.Background(), 12)
		if result != nil {
			t.Errorf("expected nil result, got %v", result)
		}
		if len(report.Failures) != 1 || report.Failures[0].Source != "calc/parse" {
			t.Errorf("expected coercion failure at 'calc/parse', got %+v", report.Failures)
		}
	})

	t.Run("Fresh Reporter Per Process Call", func(t *testing.T) {
		p := calcPipeline(t)
		defer p.Close()

		p.Process(context.Background(), "-5")
		_, report := p.Process(context.Background(), "9")
		if report.Failed != 0 || len(report.Failures) != 0 {
			t.Errorf("expected failures from the earlier call gone, got %+v", report)
		}
	})

	t.Run("ProcessWith Aggregates Across Calls", func(t *testing.T) {
		p := calcPipeline(t)
		defer p.Close()

		rep := p.Reporter()
		if got := p.ProcessWith(context.Background(), "9", rep); got != 3.0 {
			t.Errorf("expected 3.0, got %v", got)
		}
		if got := p.ProcessWith(context.Background(), "-5", rep); got != nil {
			t.Errorf("expected nil, got %v", got)
		}

		report := rep.Report()
		if report.Succeeded != 3 || report.Failed != 1 {
			t.Errorf("unexpected aggregate totals: %+v", report)
		}
		if len(report.Failures) != 1 {
			t.Errorf("expected one accumulated failure, got %d", len(report.Failures))
		}
	})

	t.Run("Nil Reporter Falls Back To Fresh", func(t *testing.T) {
		p := calcPipeline(t)
		defer p.Close()

		if got := p.ProcessWith(context.Background(), "16", nil); got != 4.0 {
			t.Errorf("expected 4.0, got %v", got)
		}
	})

	t.Run("Emits Report Event", func(t *testing.T) {
		p := statsPipeline(t)
		defer p.Close()

		var mu sync.Mutex
		var events []ReportEvent
		if err := p.OnReport(func(_ context.Context, e ReportEvent) error {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("hook registration failed: %v", err)
		}

		p.Process(context.Background(), "4, 8")

		// Wait for async hooks to fire.
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(events) != 1 {
			t.Fatalf("expected one report event, got %d", len(events))
		}
		e := events[0]
		if e.Name != "stats" {
			t.Errorf("expected pipeline name 'stats', got %q", e.Name)
		}
		if !e.Succeeded {
			t.Error("expected success flag set")
		}
		if e.Report == nil || e.Report.Rate != 1.0 {
			t.Errorf("expected attached report with rate 1.0, got %+v", e.Report)
		}
	})

	t.Run("Records Metrics", func(t *testing.T) {
		p := calcPipeline(t)
		defer p.Close()

		p.Process(context.Background(), "9")
		p.Process(context.Background(), "-5")

		if got := p.Metrics().Counter(PipelineProcessedTotal).Value(); got != 2 {
			t.Errorf("expected 2 processed, got %v", got)
		}
		if got := p.Metrics().Counter(PipelineSucceededTotal).Value(); got != 1 {
			t.Errorf("expected 1 succeeded, got %v", got)
		}
		if got := p.Metrics().Counter(PipelineFailedTotal).Value(); got != 1 {
			t.Errorf("expected 1 failed, got %v", got)
		}
		if got := p.Metrics().Gauge(PipelineRate).Value(); !almostEqual(got, 0.5) {
			t.Errorf("expected last rate 0.5, got %v", got)
		}
	})

	t.Run("Uses Injected Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		p, err := New("calc", Seq(
			Apply("parse", func(_ context.Context, s string) (float64, error) {
				return strconv.ParseFloat(s, 64)
			}),
		), WithClock(clock))
		if err != nil {
			t.Fatalf("unexpected build error: %v", err)
		}
		defer p.Close()

		_, report := p.Process(context.Background(), "junk")
		if len(report.Failures) != 1 {
			t.Fatalf("expected one failure, got %d", len(report.Failures))
		}
		if !report.Failures[0].Timestamp.Equal(clock.Now()) {
			t.Errorf("expected fake-clock timestamp, got %v", report.Failures[0].Timestamp)
		}
	})

	t.Run("Root Failure Yields Fallback", func(t *testing.T) {
		p, err := New("p", boom("bad").Default(func() any { return "fallback" }))
		if err != nil {
			t.Fatalf("unexpected build error: %v", err)
		}
		defer p.Close()

		result, report := p.Process(context.Background(), 1)
		if result != "fallback" {
			t.Errorf("expected 'fallback', got %v", result)
		}
		if report.Failed != 1 {
			t.Errorf("expected one failed attempt, got %+v", report)
		}
	})

	t.Run("Concurrent Reflects Tree Shape", func(t *testing.T) {
		serial := statsPipeline(t)
		defer serial.Close()
		if serial.Concurrent() {
			t.Error("expected serial pipeline")
		}

		p, err := New("fanout", Group(incr("a"), incr("b")).Parallel())
		if err != nil {
			t.Fatalf("unexpected build error: %v", err)
		}
		defer p.Close()
		if !p.Concurrent() {
			t.Error("expected concurrent pipeline")
		}
	})

	t.Run("Sketch Names The Nodes", func(t *testing.T) {
		p := statsPipeline(t)
		defer p.Close()

		art := p.Sketch()
		for _, want := range []string{"stats", "fields", "atoi-mapper", "model"} {
			if !strings.Contains(art, want) {
				t.Errorf("expected sketch to mention %q:\n%s", want, art)
			}
		}
	})

	t.Run("Accessors", func(t *testing.T) {
		p := statsPipeline(t)
		defer p.Close()

		if p.Name() != "stats" {
			t.Errorf("expected name 'stats', got %q", p.Name())
		}
		if p.Components() != 4 || p.RequiredComponents() != 4 {
			t.Errorf("expected 4/4 components, got %d/%d", p.Components(), p.RequiredComponents())
		}
		if p.Metrics() == nil || p.Tracer() == nil {
			t.Error("expected observability accessors to be non-nil")
		}
	})

	t.Run("Close Is Idempotent Enough", func(t *testing.T) {
		p := statsPipeline(t)
		if err := p.Close(); err != nil {
			t.Errorf("unexpected close error: %v", err)
		}
	})
}
