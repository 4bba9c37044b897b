package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced lock operation.
type SpanOperation string

const (
	// SpanOperationLockAcquire represents the initial lock acquisition.
	SpanOperationLockAcquire SpanOperation = "lock.acquire"
	// SpanOperationLockRenew represents a lease renewal.
	SpanOperationLockRenew SpanOperation = "lock.renew"
	// SpanOperationLockRelease represents a lock release.
	SpanOperationLockRelease SpanOperation = "lock.release"
)

// StartLockSpan creates a span for one lock operation against the
// arbitration backend.
func StartLockSpan(ctx context.Context, operation SpanOperation, lockName, ownerID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("distlock")
	return tracer.Start(ctx, string(operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lock.operation", string(operation)),
			attribute.String("lock.name", lockName),
			attribute.String("lock.owner_id", ownerID),
		),
	)
}

// RecordError marks the span failed and records err on it.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as completed successfully.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
