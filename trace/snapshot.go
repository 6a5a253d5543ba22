package trace

import "time"

// Snapshot is the transport representation of a Trace. It does not share
// state with the trace it was taken from.
type Snapshot struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"createdAt"`
	Name        string               `json:"name"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
	Generations []GenerationSnapshot `json:"generations"`
	Spans       []SpanSnapshot       `json:"spans"`
	Events      []Event              `json:"events"`
	Scores      []Score              `json:"scores"`
	Finished    bool                 `json:"finished"`
}

// GenerationSnapshot is the transport representation of a Generation.
type GenerationSnapshot struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"createdAt"`
	ParentTraceID string         `json:"parentTraceId"`
	Name          string         `json:"name"`
	Input         string         `json:"input"`
	Output        string         `json:"output"`
	Model         string         `json:"model"`
	Usage         *Usage         `json:"usage,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Scores        []Score        `json:"scores"`
	Finished      bool           `json:"finished"`
}

// SpanSnapshot is the transport representation of a Span. Duration is in
// milliseconds and present only when the end time is known.
type SpanSnapshot struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"createdAt"`
	ParentTraceID string         `json:"parentTraceId"`
	Name          string         `json:"name"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	Duration      *int64         `json:"duration,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Finished      bool           `json:"finished"`
}

// Batch is the envelope of a multi-trace delivery.
type Batch struct {
	Traces []*Snapshot `json:"traces"`
}
