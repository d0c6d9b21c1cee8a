package fern

import "context"

// passthrough is the explicit no-op slot: it forwards its input unchanged
// and never fails. It is the one variant without a name, and its title is
// never observed — nothing can be attributed to it.
type passthrough struct{}

func (passthrough) name() Name         { return "" }
func (passthrough) title() Title       { return "" }
func (passthrough) severity() Severity { return SeverityNormal }
func (passthrough) retitle(Title)      {}
func (passthrough) fallback() any      { return nil }
func (passthrough) kids() []node       { return nil }
func (passthrough) kind() string       { return "pass" }
func (passthrough) fansOut() bool      { return false }

func (passthrough) eval(_ context.Context, _ *evalEnv, input any) outcome {
	return outcome{value: input, ok: true}
}
