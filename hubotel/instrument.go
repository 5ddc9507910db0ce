// Package hubotel wraps a client.Backend with OpenTelemetry spans and
// metrics.
package hubotel

import (
	"context"
	"fmt"
	"time"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/client"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Metric names recorded by an instrumented backend.
const (
	MetricEventsSent    = "hub.events.sent"
	MetricEventsFailed  = "hub.events.failed"
	MetricSendDuration  = "hub.send.duration"
	MetricScopesStored  = "hub.scopes.stored"
	MetricBreadcrumbs   = "hub.breadcrumbs.offered"
	SpanSendEvent       = "hub.backend.send_event"
	SpanStoreScope      = "hub.backend.store_scope"
	attrEventID         = "hub.event.id"
	attrEventLevel      = "hub.event.level"
	attrSendStatus      = "hub.send.status"
	attrScopeHasUser    = "hub.scope.has_user"
	attrBreadcrumbCount = "hub.scope.breadcrumbs"
)

// Backend is a client.Backend that reports every delivery and scope store.
type Backend struct {
	next   client.Backend
	tracer trace.Tracer

	sent        metric.Int64Counter
	failed      metric.Int64Counter
	duration    metric.Float64Histogram
	stored      metric.Int64Counter
	breadcrumbs metric.Int64Counter
}

var _ client.Backend = (*Backend)(nil)

// Instrument wraps next. Spans go to tracer and counters to meter.
func Instrument(next client.Backend, tracer trace.Tracer, meter metric.Meter) (*Backend, error) {
	if next == nil {
		return nil, fmt.Errorf("hubotel: backend is required")
	}
	b := &Backend{next: next, tracer: tracer}

	var err error
	if b.sent, err = meter.Int64Counter(MetricEventsSent,
		metric.WithDescription("Number of events delivered by the backend"),
	); err != nil {
		return nil, err
	}
	if b.failed, err = meter.Int64Counter(MetricEventsFailed,
		metric.WithDescription("Number of events the backend failed to deliver"),
	); err != nil {
		return nil, err
	}
	if b.duration, err = meter.Float64Histogram(MetricSendDuration,
		metric.WithDescription("Duration of event delivery in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if b.stored, err = meter.Int64Counter(MetricScopesStored,
		metric.WithDescription("Number of scope snapshots persisted"),
	); err != nil {
		return nil, err
	}
	if b.breadcrumbs, err = meter.Int64Counter(MetricBreadcrumbs,
		metric.WithDescription("Number of breadcrumbs offered to the backend"),
	); err != nil {
		return nil, err
	}
	return b, nil
}

// Unwrap returns the wrapped backend.
func (b *Backend) Unwrap() client.Backend {
	return b.next
}

// Install forwards to the wrapped backend when it needs installing.
func (b *Backend) Install() error {
	if installer, ok := b.next.(client.Installer); ok {
		return installer.Install()
	}
	return nil
}

func (b *Backend) EventFromException(ctx context.Context, err error) (*hub.Event, error) {
	return b.next.EventFromException(ctx, err)
}

func (b *Backend) EventFromMessage(ctx context.Context, message string) (*hub.Event, error) {
	return b.next.EventFromMessage(ctx, message)
}

func (b *Backend) SendEvent(ctx context.Context, event *hub.Event) (client.Status, error) {
	var attrs []attribute.KeyValue
	if event != nil {
		attrs = append(attrs,
			attribute.String(attrEventID, event.EventID),
			attribute.String(attrEventLevel, string(event.Level)),
		)
	}
	ctx, span := b.tracer.Start(ctx, SpanSendEvent,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	start := time.Now()
	status, err := b.next.SendEvent(ctx, event)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String(attrSendStatus, string(status)))
	measure := metric.WithAttributes(attribute.String(attrSendStatus, string(status)))
	b.duration.Record(ctx, elapsed.Seconds(), measure)

	if err != nil || status == client.StatusFailed {
		b.failed.Add(ctx, 1, measure)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		} else {
			span.SetStatus(otelcodes.Error, "send failed")
		}
		return status, err
	}
	b.sent.Add(ctx, 1, measure)
	span.SetStatus(otelcodes.Ok, "")
	return status, nil
}

func (b *Backend) StoreScope(snapshot hub.ScopeSnapshot) error {
	ctx, span := b.tracer.Start(context.Background(), SpanStoreScope,
		trace.WithAttributes(
			attribute.Bool(attrScopeHasUser, !snapshot.User.IsEmpty()),
			attribute.Int(attrBreadcrumbCount, len(snapshot.Breadcrumbs)),
		),
	)
	defer span.End()

	if err := b.next.StoreScope(snapshot); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}
	b.stored.Add(ctx, 1)
	span.SetStatus(otelcodes.Ok, "")
	return nil
}

func (b *Backend) StoreBreadcrumb(breadcrumb hub.Breadcrumb) bool {
	keep := b.next.StoreBreadcrumb(breadcrumb)
	b.breadcrumbs.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("hub.breadcrumb.kept", keep)),
	)
	return keep
}
