// Package tracebuf is an in-process telemetry buffer for LLM applications.
// It collects traces with their generations, spans, events and scores and
// ships them to a remote collector in the background, retrying transient
// failures with capped exponential backoff.
package tracebuf

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/clock"
	"github.com/m-mizutani/tracebuf/export"
	"github.com/m-mizutani/tracebuf/export/logger"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/m-mizutani/tracebuf/transport"
)

// Client creates traces and owns the export pipeline delivering them.
type Client struct {
	clientConfig
	exporter *export.Exporter

	stop     chan struct{}
	done     chan struct{}
	shutdown sync.Once
}

// New creates a new client authenticated with credential.
func New(credential string, options ...Option) (*Client, error) {
	if credential == "" {
		return nil, goerr.Wrap(ErrMissingCredential, "failed to create client")
	}

	c := &Client{
		clientConfig: clientConfig{
			endpoint: DefaultEndpoint,
			policy:   export.DefaultPolicy(),
			logger:   slog.New(slog.DiscardHandler),
			clock:    clock.Real(),
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range options {
		opt(&c.clientConfig)
	}

	tp := c.transport
	if tp == nil {
		var httpOpts []transport.HTTPOption
		if c.httpClient != nil {
			httpOpts = append(httpOpts, transport.WithHTTPClient(c.httpClient))
		}
		tp = transport.NewHTTP(c.endpoint, httpOpts...)
	}

	observers := append([]export.Observer{logger.New(logger.WithLogger(c.logger))}, c.observers...)
	c.exporter = export.New(tp,
		export.WithCredential(credential),
		export.WithPolicy(c.policy),
		export.WithClock(c.clock),
		export.WithObserver(export.Multi(observers...)),
		export.WithLogger(c.logger),
		export.WithDeadLetter(c.deadLetter),
	)

	c.logger.Info("tracebuf client created",
		"endpoint", c.endpoint,
		"flush_interval", c.flushInterval,
		"max_retries", c.policy.MaxRetries,
		"base_backoff", c.policy.BaseBackoff,
		"max_backoff", c.policy.MaxBackoff,
		"batch_retry_attempts", c.policy.BatchRetryAttempts,
		"has_custom_transport", c.transport != nil,
		"has_dead_letter", c.deadLetter != nil,
	)

	if c.flushInterval > 0 {
		go c.runPeriodicFlush(c.clock.NewTicker(c.flushInterval))
	} else {
		close(c.done)
	}

	return c, nil
}

func (c *Client) runPeriodicFlush(ticker *clock.Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.exporter.Flush(context.Background())
		}
	}
}

// StartTrace creates a trace and registers it for export. Finishing the
// trace triggers an immediate single-trace delivery.
func (c *Client) StartTrace(name string, opts ...trace.Option) (*trace.Trace, error) {
	base := []trace.Option{trace.WithClock(c.clock)}
	if c.newID != nil {
		base = append(base, trace.WithIDGenerator(c.newID))
	}
	opts = append(append(base, opts...), trace.WithFinishHook(c.exporter.FlushTrace))

	tr, err := trace.New(name, opts...)
	if err != nil {
		return nil, err
	}
	c.exporter.Enqueue(tr)
	return tr, nil
}

// Pending returns the traces waiting for delivery in insertion order.
func (c *Client) Pending() []export.UnitView {
	return c.exporter.Pending()
}

// Flush delivers every pending trace not currently being retried as one
// batch and returns once the batch is settled. Delivery errors are not
// returned; they are reported to observers.
func (c *Client) Flush(ctx context.Context) {
	c.exporter.Flush(ctx)
}

// Shutdown stops the periodic flush, cancels every pending retry and
// performs one final flush of everything left. It is safe to call more
// than once.
func (c *Client) Shutdown(ctx context.Context) error {
	var err error
	c.shutdown.Do(func() {
		close(c.stop)
		err = c.exporter.Shutdown(ctx)
		<-c.done
		c.logger.Info("tracebuf client shut down")
	})
	return err
}
