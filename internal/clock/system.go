package clock

import (
	"context"
	"time"
)

type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) time.Time {
	if t, ok := SimulatedFromContext(ctx); ok {
		return t
	}
	return time.Now().UTC()
}

type simulatedKey struct{}

// WithSimulated pins the clock for the duration of the context. Used by tests
// and by the scheduler when replaying a sweep at a known instant.
func WithSimulated(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, simulatedKey{}, t.UTC())
}

func SimulatedFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(simulatedKey{}).(time.Time)
	return t, ok
}

// Fixed always reports the same instant regardless of context.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now(context.Context) time.Time { return f.T }
