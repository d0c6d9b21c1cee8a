package fern

import (
	"context"
	"fmt"
)

// Adapters wrap ordinary typed functions as steps, so pipeline code stays
// free of manual any-casts. The input value is asserted to the function's
// parameter type at evaluation time; a mismatch is an ordinary step failure
// — contained, recorded, defaulted — never a panic.

// Transform wraps a pure typed function that cannot fail on its own. The
// only failure mode left is an input of the wrong type.
//
//	double := fern.Transform("double", func(_ context.Context, n int) int {
//	    return n * 2
//	})
func Transform[In, Out any](name Name, fn func(context.Context, In) Out) *StepDef {
	return Step(name, func(ctx context.Context, value any) (any, error) {
		in, err := coerce[In](value)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in), nil
	})
}

// Apply wraps a typed function that can fail.
//
//	parse := fern.Apply("atoi", func(_ context.Context, s string) (int, error) {
//	    return strconv.Atoi(strings.TrimSpace(s))
//	})
func Apply[In, Out any](name Name, fn func(context.Context, In) (Out, error)) *StepDef {
	return Step(name, func(ctx context.Context, value any) (any, error) {
		in, err := coerce[In](value)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	})
}

// Effect wraps a typed side effect. The input flows through unchanged; an
// error fails the step without altering the data path.
//
//	audit := fern.Effect("audit", func(_ context.Context, o Order) error {
//	    return auditLog.Write(o)
//	})
func Effect[In any](name Name, fn func(context.Context, In) error) *StepDef {
	return Step(name, func(ctx context.Context, value any) (any, error) {
		in, err := coerce[In](value)
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, in); err != nil {
			return nil, err
		}
		return value, nil
	})
}

func coerce[In any](value any) (In, error) {
	in, ok := value.(In)
	if !ok {
		var zero In
		return zero, fmt.Errorf("expected %T, got %T", zero, value)
	}
	return in, nil
}
