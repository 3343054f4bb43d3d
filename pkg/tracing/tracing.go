// Package tracing wraps the OpenTelemetry trace API for the send pipeline
// and provides the W3C traceparent codec used on the wire.
package tracing

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanSendMessage    = "SendMessage"
	SpanEndTransaction = "EndTransaction"
)

// Span attribute keys.
const (
	AttrArn           = attribute.Key("mq.arn")
	AttrTopic         = attribute.Key("mq.topic")
	AttrMessageID     = attribute.Key("mq.message_id")
	AttrGroup         = attribute.Key("mq.group")
	AttrTag           = attribute.Key("mq.tag")
	AttrKeys          = attribute.Key("mq.keys")
	AttrBornHost      = attribute.Key("mq.born_host")
	AttrMessageType   = attribute.Key("mq.message_type")
	AttrTransactionID = attribute.Key("mq.transaction_id")
)

const traceparentVersion = "00"

// InjectTraceParent serializes a span context into the W3C traceparent form
// "00-<trace-id>-<span-id>-<flags>". Returns "" for an invalid context.
func InjectTraceParent(sc trace.SpanContext) string {
	if !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s-%s",
		traceparentVersion, sc.TraceID(), sc.SpanID(), sc.TraceFlags())
}

// ExtractTraceParent parses a W3C traceparent string. The zero SpanContext
// is returned for malformed input; callers should check IsValid.
func ExtractTraceParent(s string) trace.SpanContext {
	var version, traceID, spanID, flags string
	n, err := fmt.Sscanf(s, "%2s-%32s-%16s-%2s", &version, &traceID, &spanID, &flags)
	if err != nil || n != 4 || version != traceparentVersion {
		return trace.SpanContext{}
	}
	tid, err := trace.TraceIDFromHex(traceID)
	if err != nil {
		return trace.SpanContext{}
	}
	sid, err := trace.SpanIDFromHex(spanID)
	if err != nil {
		return trace.SpanContext{}
	}
	rawFlags, err := strconv.ParseUint(flags, 16, 8)
	if err != nil {
		return trace.SpanContext{}
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.TraceFlags(rawFlags),
		Remote:     true,
	})
}

// StartSpan starts a span when the tracer is set; a nil tracer yields a
// nil span, which every helper below tolerates.
func StartSpan(tracer trace.Tracer, name string, attrs ...attribute.KeyValue) trace.Span {
	if tracer == nil {
		return nil
	}
	_, span := tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))
	return span
}

// StartChildSpan starts a span parented on the given traceparent string
// when it is valid, otherwise a root span.
func StartChildSpan(tracer trace.Tracer, name, traceParent string, attrs ...attribute.KeyValue) trace.Span {
	if tracer == nil {
		return nil
	}
	ctx := context.Background()
	if sc := ExtractTraceParent(traceParent); sc.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}
	_, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return span
}

// EndSpan closes the span with a status derived from err. Nil spans are
// ignored.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
