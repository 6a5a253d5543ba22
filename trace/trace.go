package trace

import (
	"maps"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/clock"
)

// Trace is the top-level unit of observability data. It owns its
// generations, spans, events and scores. Once finished, the trace refuses
// every mutation with ErrSealed.
//
// Trace is safe for concurrent use.
type Trace struct {
	mu sync.Mutex

	id          string
	name        string
	createdAt   time.Time
	metadata    map[string]any
	generations []*Generation
	spans       []*Span
	events      []Event
	scores      []Score
	finished    bool

	clock    clock.Clock
	newID    func() string
	onFinish func(*Trace)
}

// New creates a new unfinished Trace.
func New(name string, opts ...Option) (*Trace, error) {
	if name == "" {
		return nil, goerr.Wrap(ErrInvalidArgument, "trace name is required")
	}

	t := &Trace{
		name:  name,
		clock: clock.Real(),
		newID: NewID,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.id == "" {
		t.id = t.newID()
	}
	t.metadata = maps.Clone(t.metadata)
	t.createdAt = t.clock.Now()

	return t, nil
}

// ID returns the trace ID.
func (t *Trace) ID() string { return t.id }

// Name returns the trace name.
func (t *Trace) Name() string { return t.name }

// CreatedAt returns the creation timestamp.
func (t *Trace) CreatedAt() time.Time { return t.createdAt }

// Finished reports whether the trace is sealed.
func (t *Trace) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Generations returns the attached generations in insertion order.
func (t *Trace) Generations() []*Generation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Generation(nil), t.generations...)
}

// Spans returns the attached spans in insertion order.
func (t *Trace) Spans() []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Span(nil), t.spans...)
}

// Events returns a copy of the logged events.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Scores returns a copy of the submitted scores.
func (t *Trace) Scores() []Score {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Score(nil), t.scores...)
}

// GenerationInput describes a generation to attach to a trace.
type GenerationInput struct {
	Name     string
	Input    string
	Output   string
	Model    string
	Usage    *Usage
	Metadata map[string]any
}

// AddGeneration attaches a new generation to the trace.
func (t *Trace) AddGeneration(in GenerationInput) (*Generation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil, goerr.Wrap(ErrSealed, "cannot add generation", goerr.V("trace_id", t.id))
	}
	switch {
	case in.Name == "":
		return nil, goerr.Wrap(ErrInvalidArgument, "generation name is required")
	case in.Input == "":
		return nil, goerr.Wrap(ErrInvalidArgument, "generation input is required")
	case in.Output == "":
		return nil, goerr.Wrap(ErrInvalidArgument, "generation output is required")
	case in.Model == "":
		return nil, goerr.Wrap(ErrInvalidArgument, "generation model is required")
	}

	g := &Generation{
		id:            t.newID(),
		createdAt:     t.clock.Now(),
		parentTraceID: t.id,
		name:          in.Name,
		input:         in.Input,
		output:        in.Output,
		model:         in.Model,
		usage:         in.Usage.clone(),
		metadata:      maps.Clone(in.Metadata),
	}
	t.generations = append(t.generations, g)
	return g, nil
}

// SpanInput describes a span to attach to a trace. A zero StartTime means
// now. A non-nil EndTime records an already completed unit of work and the
// span is finished at construction. EndTime must not be before the
// start time.
type SpanInput struct {
	Name      string
	StartTime time.Time
	EndTime   *time.Time
	Metadata  map[string]any
}

// AddSpan attaches a new span to the trace.
func (t *Trace) AddSpan(in SpanInput) (*Span, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil, goerr.Wrap(ErrSealed, "cannot add span", goerr.V("trace_id", t.id))
	}
	if in.Name == "" {
		return nil, goerr.Wrap(ErrInvalidArgument, "span name is required")
	}

	now := t.clock.Now()
	start := in.StartTime
	if start.IsZero() {
		start = now
	}

	s := &Span{
		id:            t.newID(),
		createdAt:     now,
		parentTraceID: t.id,
		name:          in.Name,
		startTime:     start,
		metadata:      maps.Clone(in.Metadata),
		clock:         t.clock,
	}
	if in.EndTime != nil {
		end := *in.EndTime
		if end.Before(start) {
			return nil, goerr.Wrap(ErrInvalidArgument, "span end time is before its start time",
				goerr.V("start_time", start),
				goerr.V("end_time", end),
			)
		}
		s.endTime = &end
		s.finished = true
	}

	t.spans = append(t.spans, s)
	return s, nil
}

// LogEvent appends an event to the trace.
func (t *Trace) LogEvent(in EventInput) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return goerr.Wrap(ErrSealed, "cannot log event", goerr.V("trace_id", t.id))
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = t.clock.Now()
	}
	t.events = append(t.events, Event{
		Message:   in.Message,
		Timestamp: ts,
		Metadata:  maps.Clone(in.Metadata),
	})
	return nil
}

// SubmitScore appends a score to the trace.
func (t *Trace) SubmitScore(s Score) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return goerr.Wrap(ErrSealed, "cannot submit score", goerr.V("trace_id", t.id))
	}

	s.Metadata = maps.Clone(s.Metadata)
	t.scores = append(t.scores, s)
	return nil
}

// Finish seals the trace and runs the finish hook. Finishing an already
// finished trace is a no-op and does not run the hook again.
func (t *Trace) Finish() error {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return nil
	}
	t.finished = true
	hook := t.onFinish
	t.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return nil
}

// Snapshot projects the current state of the trace and all its children
// into a self-contained value.
func (t *Trace) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := &Snapshot{
		ID:          t.id,
		CreatedAt:   t.createdAt,
		Name:        t.name,
		Metadata:    maps.Clone(t.metadata),
		Generations: make([]GenerationSnapshot, 0, len(t.generations)),
		Spans:       make([]SpanSnapshot, 0, len(t.spans)),
		Events:      make([]Event, 0, len(t.events)),
		Scores:      cloneScores(t.scores),
		Finished:    t.finished,
	}
	for _, g := range t.generations {
		snap.Generations = append(snap.Generations, g.snapshot())
	}
	for _, s := range t.spans {
		snap.Spans = append(snap.Spans, s.snapshot())
	}
	for _, e := range t.events {
		e.Metadata = maps.Clone(e.Metadata)
		snap.Events = append(snap.Events, e)
	}
	return snap
}
