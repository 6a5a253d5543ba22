// Package otel provides an export.Observer that records export signals as
// OpenTelemetry spans and counters.
//
// Basic usage with the global providers:
//
//	obs, err := otel.New()
//	client, err := tracebuf.New(credential, tracebuf.WithObserver(obs))
//
// With explicit providers:
//
//	obs, err := otel.New(
//	    otel.WithTracerProvider(tp),
//	    otel.WithMeterProvider(mp),
//	)
package otel

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	otelAPI "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/m-mizutani/tracebuf/export"
)

const (
	instrumentationName = "github.com/m-mizutani/tracebuf"

	MetricDelivered = "tracebuf.export.delivered"
	MetricFailed    = "tracebuf.export.failed"
	MetricRetries   = "tracebuf.export.retries"
	MetricDropped   = "tracebuf.export.dropped"
)

// Option is a functional option for configuring the OTel observer.
type Option func(*observer)

// WithTracerProvider sets an explicit TracerProvider.
// If not set, the global TracerProvider is used.
func WithTracerProvider(tp otelTrace.TracerProvider) Option {
	return func(o *observer) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets an explicit MeterProvider.
// If not set, the global MeterProvider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *observer) {
		o.meterProvider = mp
	}
}

type observer struct {
	tracerProvider otelTrace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         otelTrace.Tracer

	delivered metric.Int64Counter
	failed    metric.Int64Counter
	retries   metric.Int64Counter
	dropped   metric.Int64Counter
}

// New creates an OTel observer. Every signal becomes one span; counters
// track delivered traces, failed attempts, scheduled retries and dropped
// traces.
func New(opts ...Option) (export.Observer, error) {
	o := &observer{}
	for _, opt := range opts {
		opt(o)
	}

	if o.tracerProvider == nil {
		o.tracerProvider = otelAPI.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otelAPI.GetMeterProvider()
	}
	o.tracer = o.tracerProvider.Tracer(instrumentationName)
	meter := o.meterProvider.Meter(instrumentationName)

	var err error
	if o.delivered, err = meter.Int64Counter(MetricDelivered,
		metric.WithDescription("Traces accepted by the collector"),
		metric.WithUnit("{trace}"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create counter", goerr.V("name", MetricDelivered))
	}
	if o.failed, err = meter.Int64Counter(MetricFailed,
		metric.WithDescription("Failed delivery attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create counter", goerr.V("name", MetricFailed))
	}
	if o.retries, err = meter.Int64Counter(MetricRetries,
		metric.WithDescription("Scheduled single-trace retries"),
		metric.WithUnit("{retry}"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create counter", goerr.V("name", MetricRetries))
	}
	if o.dropped, err = meter.Int64Counter(MetricDropped,
		metric.WithDescription("Traces abandoned after exhausting retries"),
		metric.WithUnit("{trace}"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create counter", goerr.V("name", MetricDropped))
	}

	return o, nil
}

func (o *observer) Delivered(ctx context.Context, mode export.Mode, traceIDs []string) {
	_, span := o.tracer.Start(ctx, "tracebuf.export",
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(
			modeAttr(mode),
			traceCountAttr(len(traceIDs)),
			traceIDsAttr(traceIDs),
		),
	)
	span.SetStatus(codes.Ok, "")
	span.End()

	o.delivered.Add(ctx, int64(len(traceIDs)), metric.WithAttributes(modeAttr(mode)))
}

func (o *observer) Failed(ctx context.Context, mode export.Mode, traceIDs []string, attempt int, err error) {
	_, span := o.tracer.Start(ctx, "tracebuf.export",
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(
			modeAttr(mode),
			traceCountAttr(len(traceIDs)),
			traceIDsAttr(traceIDs),
			attemptAttr(attempt),
		),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	o.failed.Add(ctx, 1, metric.WithAttributes(modeAttr(mode)))
}

func (o *observer) RetryScheduled(ctx context.Context, traceID string, retry int, delay time.Duration) {
	_, span := o.tracer.Start(ctx, "tracebuf.retry_scheduled",
		otelTrace.WithSpanKind(otelTrace.SpanKindInternal),
		otelTrace.WithAttributes(
			traceIDAttr(traceID),
			retryAttr(retry),
			delayAttr(delay.Milliseconds()),
		),
	)
	span.End()

	o.retries.Add(ctx, 1)
}

func (o *observer) Dropped(ctx context.Context, traceID string, retries int, err error) {
	_, span := o.tracer.Start(ctx, "tracebuf.dropped",
		otelTrace.WithSpanKind(otelTrace.SpanKindInternal),
		otelTrace.WithAttributes(
			traceIDAttr(traceID),
			retryAttr(retries),
		),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, "trace dropped")
	span.End()

	o.dropped.Add(ctx, 1)
}
