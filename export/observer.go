package export

import (
	"context"
	"time"
)

// Mode identifies the delivery path of an export attempt.
type Mode string

const (
	// ModeSingle is the per-trace path triggered by finishing a trace or by a retry timer.
	ModeSingle Mode = "single"
	// ModeBatch is the periodic or manual multi-trace path.
	ModeBatch Mode = "batch"
	// ModeFinal is the last flush performed by Shutdown.
	ModeFinal Mode = "final"
)

// Observer receives diagnostic signals from the export pipeline. Delivery
// failures are never returned to application code; observers are the only
// way to see them.
//
// Methods may be called while the Exporter holds its lock and from several
// goroutines. Implementations must be safe for concurrent use and must not
// call back into the Exporter.
type Observer interface {
	// Delivered is called after the collector accepted the given traces.
	Delivered(ctx context.Context, mode Mode, traceIDs []string)
	// Failed is called for every failed delivery attempt.
	Failed(ctx context.Context, mode Mode, traceIDs []string, attempt int, err error)
	// RetryScheduled is called when a retry timer is set for a trace.
	RetryScheduled(ctx context.Context, traceID string, retry int, delay time.Duration)
	// Dropped is called when a trace is abandoned.
	Dropped(ctx context.Context, traceID string, retries int, err error)
}

type nopObserver struct{}

func (nopObserver) Delivered(context.Context, Mode, []string)                  {}
func (nopObserver) Failed(context.Context, Mode, []string, int, error)         {}
func (nopObserver) RetryScheduled(context.Context, string, int, time.Duration) {}
func (nopObserver) Dropped(context.Context, string, int, error)                {}

// multiObserver fans out signals to multiple Observer implementations.
type multiObserver struct {
	observers []Observer
}

// Multi creates an Observer that forwards all signals to the given observers
// in order. Nil observers are skipped.
func Multi(observers ...Observer) Observer {
	m := &multiObserver{}
	for _, o := range observers {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
	return m
}

func (m *multiObserver) Delivered(ctx context.Context, mode Mode, traceIDs []string) {
	for _, o := range m.observers {
		o.Delivered(ctx, mode, traceIDs)
	}
}

func (m *multiObserver) Failed(ctx context.Context, mode Mode, traceIDs []string, attempt int, err error) {
	for _, o := range m.observers {
		o.Failed(ctx, mode, traceIDs, attempt, err)
	}
}

func (m *multiObserver) RetryScheduled(ctx context.Context, traceID string, retry int, delay time.Duration) {
	for _, o := range m.observers {
		o.RetryScheduled(ctx, traceID, retry, delay)
	}
}

func (m *multiObserver) Dropped(ctx context.Context, traceID string, retries int, err error) {
	for _, o := range m.observers {
		o.Dropped(ctx, traceID, retries, err)
	}
}
