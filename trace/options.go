package trace

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/tracebuf/clock"
)

// Option is a functional option for configuring a Trace.
type Option func(*Trace)

// WithID sets a custom trace ID.
// If not set or set to an empty string, a UUID v7 is generated automatically.
func WithID(id string) Option {
	return func(t *Trace) {
		t.id = id
	}
}

// WithMetadata attaches free-form metadata to the trace.
func WithMetadata(meta map[string]any) Option {
	return func(t *Trace) {
		t.metadata = meta
	}
}

// WithClock sets the time source used for timestamps of the trace and all
// of its children.
func WithClock(c clock.Clock) Option {
	return func(t *Trace) {
		t.clock = c
	}
}

// WithIDGenerator sets the ID supplier used for the trace and its children.
func WithIDGenerator(gen func() string) Option {
	return func(t *Trace) {
		t.newID = gen
	}
}

// WithFinishHook registers a function called once, after the trace is
// finished and outside of the trace's lock.
func WithFinishHook(hook func(*Trace)) Option {
	return func(t *Trace) {
		t.onFinish = hook
	}
}

// NewID generates a UUID v7 string.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
