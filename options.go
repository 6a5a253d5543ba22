package tracebuf

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/tracebuf/clock"
	"github.com/m-mizutani/tracebuf/export"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/m-mizutani/tracebuf/transport"
)

const (
	// DefaultEndpoint is the collector base URL used when WithEndpoint is
	// not given.
	DefaultEndpoint = "http://localhost:18900"
)

type clientConfig struct {
	endpoint      string
	flushInterval time.Duration
	policy        export.Policy
	transport     transport.Transport
	httpClient    *http.Client
	logger        *slog.Logger
	observers     []export.Observer
	clock         clock.Clock
	newID         func() string
	deadLetter    trace.Repository
}

// Option is the type for the options of the client.
type Option func(*clientConfig)

// WithEndpoint sets the collector base URL. Default is DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) {
		c.endpoint = endpoint
	}
}

// WithFlushInterval enables the periodic batch flush. Zero, the default,
// disables it.
func WithFlushInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		c.flushInterval = interval
	}
}

// WithMaxRetries sets how many single-trace retries are made before a
// trace is dropped. Default is 3.
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) {
		c.policy.MaxRetries = n
	}
}

// WithBaseBackoff sets the delay before the first retry. Default is 1s.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *clientConfig) {
		c.policy.BaseBackoff = d
	}
}

// WithMaxBackoff caps the retry delay. Default is 30s.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *clientConfig) {
		c.policy.MaxBackoff = d
	}
}

// WithBatchRetryAttempts sets how many extra attempts a failed batch gets
// before its traces fall back to individual retries. Default is 2.
func WithBatchRetryAttempts(n int) Option {
	return func(c *clientConfig) {
		c.policy.BatchRetryAttempts = n
	}
}

// WithBatchRetryDelay sets the wait between batch attempts. Default is 1s.
func WithBatchRetryDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.policy.BatchRetryDelay = d
	}
}

// WithTransport replaces the HTTP transport. The endpoint and HTTP client
// options are ignored when set.
func WithTransport(tp transport.Transport) Option {
	return func(c *clientConfig) {
		c.transport = tp
	}
}

// WithHTTPClient sets the http.Client used by the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for the client. Export diagnostics are
// written to it as well. Default is discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithObserver adds an export.Observer. It can be given multiple times.
func WithObserver(o export.Observer) Option {
	return func(c *clientConfig) {
		c.observers = append(c.observers, o)
	}
}

// WithClock sets the clock used for timestamps, retry timers and the
// periodic flush.
func WithClock(clk clock.Clock) Option {
	return func(c *clientConfig) {
		c.clock = clk
	}
}

// WithIDGenerator sets the generator of trace and child entity IDs.
// Default is UUIDv7.
func WithIDGenerator(f func() string) Option {
	return func(c *clientConfig) {
		c.newID = f
	}
}

// WithDeadLetter sets a repository that receives snapshots of traces
// dropped by the export pipeline.
func WithDeadLetter(repo trace.Repository) Option {
	return func(c *clientConfig) {
		c.deadLetter = repo
	}
}
