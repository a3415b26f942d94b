package dispatcher

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "agentrt.dispatcher"
	traceSpan  = "agentrt.dispatcher.process"

	traceAttrEventID   = "agentrt.event_id"
	traceAttrEventType = "agentrt.event_type"
	traceAttrPriority  = "agentrt.priority"
	traceAttrStatus    = "agentrt.status"
	traceAttrHandler   = "agentrt.handler_name"
)

func startProcessSpan(ctx context.Context, eventID, eventType, priority string) (context.Context, trace.Span) {
	return otel.Tracer(traceScope).Start(ctx, traceSpan, trace.WithAttributes(
		attribute.String(traceAttrEventID, eventID),
		attribute.String(traceAttrEventType, eventType),
		attribute.String(traceAttrPriority, priority),
	))
}

func markSpanResult(span trace.Span, handlerName string, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(traceAttrHandler, handlerName))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(traceAttrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(traceAttrStatus, "success"))
}
