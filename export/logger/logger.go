// Package logger provides an export.Observer that writes diagnostic
// signals through log/slog.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-mizutani/tracebuf/export"
)

// Event represents a signal type that can be selectively enabled.
type Event int

const (
	// Delivery enables logging of accepted deliveries.
	Delivery Event = iota
	// Failure enables logging of failed delivery attempts.
	Failure
	// Retry enables logging of scheduled retries.
	Retry
	// Drop enables logging of dropped traces.
	Drop

	eventCount // sentinel for iteration
)

type config struct {
	logger *slog.Logger
	events map[Event]bool
}

// Option configures the logger observer.
type Option func(*config)

// WithLogger sets a custom slog.Logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithEvents enables only the specified event types.
// When not specified, all events are enabled.
func WithEvents(events ...Event) Option {
	return func(c *config) {
		c.events = make(map[Event]bool, len(events))
		for _, e := range events {
			c.events[e] = true
		}
	}
}

type observer struct {
	cfg config
}

// New creates an export.Observer that logs export signals via slog.
// Deliveries are logged at debug level, failures and retries at warn and
// dropped traces at error.
func New(opts ...Option) export.Observer {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.events == nil {
		cfg.events = make(map[Event]bool, eventCount)
		for i := Event(0); i < eventCount; i++ {
			cfg.events[i] = true
		}
	}

	return &observer{cfg: cfg}
}

func (o *observer) logger() *slog.Logger {
	if o.cfg.logger != nil {
		return o.cfg.logger
	}
	return slog.Default()
}

func (o *observer) enabled(e Event) bool {
	return o.cfg.events[e]
}

// Delivered logs the traces accepted by the collector.
func (o *observer) Delivered(ctx context.Context, mode export.Mode, traceIDs []string) {
	if !o.enabled(Delivery) {
		return
	}
	o.logger().DebugContext(ctx, "traces delivered",
		slog.String("mode", string(mode)),
		slog.Int("count", len(traceIDs)),
		slog.Any("trace_ids", traceIDs),
	)
}

// Failed logs a failed delivery attempt.
func (o *observer) Failed(ctx context.Context, mode export.Mode, traceIDs []string, attempt int, err error) {
	if !o.enabled(Failure) {
		return
	}

	msg := "export failed"
	if mode == export.ModeFinal {
		msg = "final flush failed"
	}

	attrs := []any{
		slog.String("mode", string(mode)),
		slog.Int("count", len(traceIDs)),
		slog.Int("attempt", attempt),
	}
	if len(traceIDs) == 1 {
		attrs = append(attrs, slog.String("trace_id", traceIDs[0]))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	o.logger().WarnContext(ctx, msg, attrs...)
}

// RetryScheduled logs the retry number and its delay.
func (o *observer) RetryScheduled(ctx context.Context, traceID string, retry int, delay time.Duration) {
	if !o.enabled(Retry) {
		return
	}
	o.logger().WarnContext(ctx,
		fmt.Sprintf("retry attempt %d in %dms", retry, delay.Milliseconds()),
		slog.String("trace_id", traceID),
		slog.Int("retry", retry),
		slog.Duration("delay", delay),
	)
}

// Dropped logs an abandoned trace.
func (o *observer) Dropped(ctx context.Context, traceID string, retries int, err error) {
	if !o.enabled(Drop) {
		return
	}

	attrs := []any{
		slog.String("trace_id", traceID),
		slog.Int("retry", retries),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	o.logger().ErrorContext(ctx, fmt.Sprintf("dropped after %d retries", retries), attrs...)
}
