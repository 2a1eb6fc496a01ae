package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SyncMetrics holds sync engine metrics
type SyncMetrics struct {
	passCount    metric.Int64Counter
	recordCount  metric.Int64Counter
	pushDuration metric.Float64Histogram
	pendingGauge metric.Int64Gauge
}

// NewSyncMetrics creates sync metrics instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	passCount, err := meter.Int64Counter(
		"sync.pass.count",
		metric.WithDescription("Sync passes by outcome"),
		metric.WithUnit("{passes}"),
	)
	if err != nil {
		return nil, err
	}

	recordCount, err := meter.Int64Counter(
		"sync.record.count",
		metric.WithDescription("Record pushes and remote deletes by outcome"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	pushDuration, err := meter.Float64Histogram(
		"sync.push.duration",
		metric.WithDescription("Remote push or delete duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	pendingGauge, err := meter.Int64Gauge(
		"sync.pending.records",
		metric.WithDescription("Records still pending when the last pass finished"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		passCount:    passCount,
		recordCount:  recordCount,
		pushDuration: pushDuration,
		pendingGauge: pendingGauge,
	}, nil
}

// RecordPass records one sync pass. A nil receiver is a no-op.
func (m *SyncMetrics) RecordPass(ctx context.Context, outcome string, pending int) {
	if m == nil {
		return
	}
	m.passCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.pendingGauge.Record(ctx, int64(pending))
}

// RecordPush records one remote call for a record. Pushes report synced,
// failed or cancelled; deletes report deleted or delete_failed.
func (m *SyncMetrics) RecordPush(ctx context.Context, kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("record_kind", kind),
		attribute.String("outcome", outcome),
	)
	m.recordCount.Add(ctx, 1, attrs)
	m.pushDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// CaptureMetrics counts records produced by the capture services
type CaptureMetrics struct {
	captures metric.Int64Counter
}

// NewCaptureMetrics creates capture metrics instruments
func NewCaptureMetrics() (*CaptureMetrics, error) {
	captures, err := otel.Meter(instrumentationName).Int64Counter(
		"capture.record.count",
		metric.WithDescription("Captured records by kind and success"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}
	return &CaptureMetrics{captures: captures}, nil
}

// RecordCapture records a finished capture. A nil receiver is a no-op.
func (m *CaptureMetrics) RecordCapture(ctx context.Context, kind string, success bool) {
	if m == nil {
		return
	}
	m.captures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_kind", kind),
		attribute.Bool("success", success),
	))
}
