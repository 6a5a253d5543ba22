package main

import (
	"bytes"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	snapshotSchemaURL = "https://tracebuf.local/schema/snapshot.json"
	batchSchemaURL    = "https://tracebuf.local/schema/batch.json"
)

const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "createdAt", "name", "generations", "spans", "events", "scores", "finished"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "createdAt": {"type": "string", "format": "date-time"},
    "name": {"type": "string", "minLength": 1},
    "metadata": {"type": "object"},
    "generations": {"type": "array", "items": {"$ref": "#/$defs/generation"}},
    "spans": {"type": "array", "items": {"$ref": "#/$defs/span"}},
    "events": {"type": "array", "items": {"$ref": "#/$defs/event"}},
    "scores": {"type": "array", "items": {"$ref": "#/$defs/score"}},
    "finished": {"type": "boolean"}
  },
  "$defs": {
    "generation": {
      "type": "object",
      "required": ["id", "createdAt", "parentTraceId", "name", "input", "output", "model", "scores", "finished"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "createdAt": {"type": "string", "format": "date-time"},
        "parentTraceId": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "input": {"type": "string"},
        "output": {"type": "string"},
        "model": {"type": "string"},
        "usage": {
          "type": "object",
          "properties": {
            "promptTokens": {"type": "integer", "minimum": 0},
            "completionTokens": {"type": "integer", "minimum": 0}
          },
          "additionalProperties": {"type": "number"}
        },
        "metadata": {"type": "object"},
        "scores": {"type": "array", "items": {"$ref": "#/$defs/score"}},
        "finished": {"type": "boolean"}
      }
    },
    "span": {
      "type": "object",
      "required": ["id", "createdAt", "parentTraceId", "name", "startTime", "finished"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "createdAt": {"type": "string", "format": "date-time"},
        "parentTraceId": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "startTime": {"type": "string", "format": "date-time"},
        "endTime": {"type": "string", "format": "date-time"},
        "duration": {"type": "integer"},
        "metadata": {"type": "object"},
        "finished": {"type": "boolean"}
      }
    },
    "event": {
      "type": "object",
      "required": ["message", "timestamp"],
      "properties": {
        "message": {"type": "string"},
        "timestamp": {"type": "string", "format": "date-time"},
        "metadata": {"type": "object"}
      }
    },
    "score": {
      "type": "object",
      "required": ["value"],
      "properties": {
        "value": {"type": "number"},
        "reason": {"type": "string"},
        "metadata": {"type": "object"}
      }
    }
  }
}`

const batchSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["traces"],
  "properties": {
    "traces": {"type": "array", "items": {"$ref": "` + snapshotSchemaURL + `"}}
  }
}`

// payloadValidator checks ingested payloads against the snapshot schema.
type payloadValidator struct {
	snapshot *jsonschema.Schema
	batch    *jsonschema.Schema
}

func newPayloadValidator() (*payloadValidator, error) {
	c := jsonschema.NewCompiler()
	for url, src := range map[string]string{
		snapshotSchemaURL: snapshotSchema,
		batchSchemaURL:    batchSchema,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse schema", goerr.V("url", url))
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, goerr.Wrap(err, "failed to add schema resource", goerr.V("url", url))
		}
	}

	snapshot, err := c.Compile(snapshotSchemaURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile snapshot schema")
	}
	batch, err := c.Compile(batchSchemaURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile batch schema")
	}

	return &payloadValidator{snapshot: snapshot, batch: batch}, nil
}

func (v *payloadValidator) validateSnapshot(data []byte) error {
	return validate(v.snapshot, data)
}

func (v *payloadValidator) validateBatch(data []byte) error {
	return validate(v.batch, data)
}

func validate(sch *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return goerr.Wrap(err, "payload is not valid JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return goerr.Wrap(err, "payload does not match schema")
	}
	return nil
}
