package export

import (
	"log/slog"

	"github.com/m-mizutani/tracebuf/clock"
	"github.com/m-mizutani/tracebuf/trace"
)

// Option configures an Exporter.
type Option func(*Exporter)

// WithCredential sets the bearer credential sent with every delivery.
func WithCredential(credential string) Option {
	return func(e *Exporter) {
		e.credential = credential
	}
}

// WithPaths overrides the collector paths for single and batch deliveries.
func WithPaths(single, batch string) Option {
	return func(e *Exporter) {
		e.singlePath = single
		e.batchPath = batch
	}
}

// WithPolicy sets the retry policy. Default is DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(e *Exporter) {
		e.policy = p
	}
}

// WithClock sets the clock driving retry timers and batch retry delays.
func WithClock(c clock.Clock) Option {
	return func(e *Exporter) {
		e.clock = c
	}
}

// WithObserver sets the diagnostics observer. Use Multi to combine several.
func WithObserver(o Observer) Option {
	return func(e *Exporter) {
		e.observer = o
	}
}

// WithLogger sets the logger for operational warnings of the exporter
// itself. Default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithDeadLetter sets a repository that receives snapshots of dropped
// traces.
func WithDeadLetter(repo trace.Repository) Option {
	return func(e *Exporter) {
		e.deadLetter = repo
	}
}

