package trace

import (
	"maps"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/clock"
)

// Span is a timed unit of work nested under a trace. Unlike Trace and
// Generation, a Span can be finished only once.
type Span struct {
	mu sync.Mutex

	id            string
	createdAt     time.Time
	parentTraceID string
	name          string
	startTime     time.Time
	endTime       *time.Time
	metadata      map[string]any
	finished      bool

	clock clock.Clock
}

// ID returns the span ID.
func (s *Span) ID() string { return s.id }

// ParentTraceID returns the ID of the owning trace.
func (s *Span) ParentTraceID() string { return s.parentTraceID }

// Name returns the span name.
func (s *Span) Name() string { return s.name }

// StartTime returns the start of the span.
func (s *Span) StartTime() time.Time { return s.startTime }

// EndTime returns the end of the span, or nil while it is unknown.
func (s *Span) EndTime() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTime == nil {
		return nil
	}
	end := *s.endTime
	return &end
}

// Finished reports whether the span is sealed.
func (s *Span) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Duration returns end - start. ok is false while the end time is unknown.
func (s *Span) Duration() (d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

func (s *Span) durationLocked() (time.Duration, bool) {
	if s.endTime == nil {
		return 0, false
	}
	return s.endTime.Sub(s.startTime), true
}

// FinishOption configures Span.Finish.
type FinishOption func(*finishConfig)

type finishConfig struct {
	endTime *time.Time
}

// WithEndTime sets an explicit end time instead of now.
func WithEndTime(end time.Time) FinishOption {
	return func(c *finishConfig) {
		c.endTime = &end
	}
}

// Finish seals the span. It fails with ErrSealed if the span is already
// finished, including spans created with an end time, and with
// ErrInvalidArgument if the end time is before the start time. A rejected
// Finish leaves the span open.
func (s *Span) Finish(opts ...FinishOption) error {
	var cfg finishConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return goerr.Wrap(ErrSealed, "span is already finished",
			goerr.V("span_id", s.id),
			goerr.V("trace_id", s.parentTraceID),
		)
	}

	end := s.clock.Now()
	if cfg.endTime != nil {
		end = *cfg.endTime
	}
	if end.Before(s.startTime) {
		return goerr.Wrap(ErrInvalidArgument, "span end time is before its start time",
			goerr.V("span_id", s.id),
			goerr.V("start_time", s.startTime),
			goerr.V("end_time", end),
		)
	}
	s.endTime = &end
	s.finished = true
	return nil
}

func (s *Span) snapshot() SpanSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SpanSnapshot{
		ID:            s.id,
		CreatedAt:     s.createdAt,
		ParentTraceID: s.parentTraceID,
		Name:          s.name,
		StartTime:     s.startTime,
		Metadata:      maps.Clone(s.metadata),
		Finished:      s.finished,
	}
	if s.endTime != nil {
		end := *s.endTime
		snap.EndTime = &end
	}
	if d, ok := s.durationLocked(); ok {
		ms := d.Milliseconds()
		snap.Duration = &ms
	}
	return snap
}
