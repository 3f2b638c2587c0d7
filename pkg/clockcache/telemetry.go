package clockcache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// telemetry wraps the optional OpenTelemetry hooks a [Cache] was configured
// with (spec.md §4.J). Grounded on abiolaogu-MinIO's internal/tracing
// package - the only OpenTelemetry consumer in the example pack - but
// adapted from a package-global TracerProvider and a process-wide
// "InitTracing" call to per-Cache injected dependencies: a library must
// never call otel.SetTracerProvider itself, so both Tracer and Meter come in
// through [Config] and default to no-ops when unset.
type telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	wbPages   metric.Int64Counter
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter) *telemetry {
	t := &telemetry{tracer: tracer, meter: meter}

	if meter == nil {
		return t
	}

	// Instrument creation failures are swallowed: if the configured Meter
	// rejects an instrument name, telemetry degrades to tracing-only rather
	// than failing cache construction over an observability detail.
	t.hits, _ = meter.Int64Counter("clockcache.hits")
	t.misses, _ = meter.Int64Counter("clockcache.misses")
	t.evictions, _ = meter.Int64Counter("clockcache.evictions")
	t.wbPages, _ = meter.Int64Counter("clockcache.writeback.pages")

	return t
}

func (t *telemetry) startSpan(name string, attrs ...attribute.KeyValue) trace.Span {
	if t == nil || t.tracer == nil {
		return nil
	}

	_, span := t.tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))

	return span
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

func (t *telemetry) onHit() {
	if t == nil || t.hits == nil {
		return
	}

	t.hits.Add(context.Background(), 1)
}

func (t *telemetry) onMiss() {
	if t == nil || t.misses == nil {
		return
	}

	t.misses.Add(context.Background(), 1)
}

func (t *telemetry) onEviction(n int) {
	if t == nil || t.evictions == nil || n == 0 {
		return
	}

	t.evictions.Add(context.Background(), int64(n))
}

func (t *telemetry) onWritebackStarted(n int) {
	if t == nil || t.wbPages == nil || n == 0 {
		return
	}

	t.wbPages.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("phase", "started")))
}

func (t *telemetry) onWritebackCompleted(n int) {
	if t == nil || t.wbPages == nil || n == 0 {
		return
	}

	t.wbPages.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("phase", "completed")))
}
