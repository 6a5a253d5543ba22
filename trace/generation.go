package trace

import (
	"maps"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Generation is a recorded model invocation nested under a trace.
type Generation struct {
	mu sync.Mutex

	id            string
	createdAt     time.Time
	parentTraceID string
	name          string
	input         string
	output        string
	model         string
	usage         *Usage
	metadata      map[string]any
	scores        []Score
	finished      bool
}

// ID returns the generation ID.
func (g *Generation) ID() string { return g.id }

// ParentTraceID returns the ID of the owning trace.
func (g *Generation) ParentTraceID() string { return g.parentTraceID }

// Name returns the generation name.
func (g *Generation) Name() string { return g.name }

// Model returns the model identifier.
func (g *Generation) Model() string { return g.model }

// Usage returns a copy of the usage counters, or nil if none were given.
func (g *Generation) Usage() *Usage { return g.usage.clone() }

// Finished reports whether the generation is sealed.
func (g *Generation) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finished
}

// Scores returns a copy of the submitted scores.
func (g *Generation) Scores() []Score {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Score(nil), g.scores...)
}

// SubmitScore appends a score to the generation.
func (g *Generation) SubmitScore(s Score) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.finished {
		return goerr.Wrap(ErrSealed, "cannot submit score",
			goerr.V("generation_id", g.id),
			goerr.V("trace_id", g.parentTraceID),
		)
	}

	s.Metadata = maps.Clone(s.Metadata)
	g.scores = append(g.scores, s)
	return nil
}

// Finish seals the generation. Finishing twice is a no-op.
func (g *Generation) Finish() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finished = true
	return nil
}

func (g *Generation) snapshot() GenerationSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return GenerationSnapshot{
		ID:            g.id,
		CreatedAt:     g.createdAt,
		ParentTraceID: g.parentTraceID,
		Name:          g.name,
		Input:         g.input,
		Output:        g.output,
		Model:         g.model,
		Usage:         g.usage.clone(),
		Metadata:      maps.Clone(g.metadata),
		Scores:        cloneScores(g.scores),
		Finished:      g.finished,
	}
}
