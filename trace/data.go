package trace

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Event is a point-in-time annotation on a trace.
type Event struct {
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventInput describes an event to log. A zero Timestamp means now.
type EventInput struct {
	Message   string
	Timestamp time.Time
	Metadata  map[string]any
}

// Score is feedback attached to a trace or a generation.
type Score struct {
	Value    float64        `json:"value"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Usage holds token counters of a generation. Counters carries additional
// named counters; in JSON they are flattened next to the token counts.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Counters         map[string]float64
}

const (
	usagePromptKey     = "promptTokens"
	usageCompletionKey = "completionTokens"
)

// MarshalJSON flattens Counters into the usage object.
func (u Usage) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Counters)+2)
	for k, v := range u.Counters {
		m[k] = v
	}
	m[usagePromptKey] = u.PromptTokens
	m[usageCompletionKey] = u.CompletionTokens
	return json.Marshal(m)
}

// UnmarshalJSON reads token counts and keeps every other numeric field in
// Counters.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(err, "failed to unmarshal usage")
	}

	*u = Usage{}
	for k, v := range raw {
		switch k {
		case usagePromptKey:
			u.PromptTokens = int(v)
		case usageCompletionKey:
			u.CompletionTokens = int(v)
		default:
			if u.Counters == nil {
				u.Counters = make(map[string]float64)
			}
			u.Counters[k] = v
		}
	}
	return nil
}

func (u *Usage) clone() *Usage {
	if u == nil {
		return nil
	}
	c := *u
	c.Counters = maps.Clone(u.Counters)
	return &c
}

func cloneScores(src []Score) []Score {
	out := make([]Score, len(src))
	for i, s := range src {
		s.Metadata = maps.Clone(s.Metadata)
		out[i] = s
	}
	return out
}
