package otel

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/m-mizutani/tracebuf/export"
)

func modeAttr(mode export.Mode) attribute.KeyValue {
	return attribute.String("tracebuf.export.mode", string(mode))
}

func traceCountAttr(n int) attribute.KeyValue {
	return attribute.Int("tracebuf.export.trace_count", n)
}

func traceIDsAttr(ids []string) attribute.KeyValue {
	return attribute.StringSlice("tracebuf.trace_ids", ids)
}

func traceIDAttr(id string) attribute.KeyValue {
	return attribute.String("tracebuf.trace_id", id)
}

func attemptAttr(n int) attribute.KeyValue {
	return attribute.Int("tracebuf.export.attempt", n)
}

func retryAttr(n int) attribute.KeyValue {
	return attribute.Int("tracebuf.export.retry", n)
}

func delayAttr(ms int64) attribute.KeyValue {
	return attribute.Int64("tracebuf.export.delay_ms", ms)
}
