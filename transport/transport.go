// Package transport delivers serialized trace payloads to a collector.
package transport

import (
	"context"
	"fmt"
)

// Default ingestion paths of the collector.
const (
	SinglePath = "/v1/traces"
	BatchPath  = "/v1/traces/batch"
)

// Transport sends a JSON payload to path on the collector, authenticated
// with credential. Any non-nil error is a delivery failure, including
// non-2xx responses.
type Transport interface {
	Send(ctx context.Context, path string, payload []byte, credential string) error
}

// Func adapts an ordinary function to Transport.
type Func func(ctx context.Context, path string, payload []byte, credential string) error

// Send calls f.
func (f Func) Send(ctx context.Context, path string, payload []byte, credential string) error {
	return f(ctx, path, payload, credential)
}

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector responded with status %d", e.StatusCode)
}
