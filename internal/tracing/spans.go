package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrMCPToolName   = "mcp.tool.name"
	AttrMCPRequestID  = "mcp.request.id"
	AttrMCPResultErr  = "mcp.result.is_error"
	AttrResourceURI   = "mcp.resource.uri"
	AttrBoardID       = "board.id"
	AttrRenderFormat  = "render.format"
	AttrRenderSize    = "render.size"
	AttrHTTPRequestID = "http.request_id"
)

// Span name prefixes.
const (
	SpanPrefixMCP      = "mcp.tool."
	SpanPrefixResource = "mcp.resource."
)

// StartToolSpan starts the span for one tools/call. tracer may be nil.
func StartToolSpan(ctx context.Context, tracer trace.Tracer, tool, requestID string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	attrs := []attribute.KeyValue{attribute.String(AttrMCPToolName, tool)}
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrMCPRequestID, requestID))
	}
	if httpID := RequestIDFromContext(ctx); httpID != "" {
		attrs = append(attrs, attribute.String(AttrHTTPRequestID, httpID))
	}
	return tracer.Start(ctx, SpanPrefixMCP+tool,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// StartResourceSpan starts the span for one resources/read.
func StartResourceSpan(ctx context.Context, tracer trace.Tracer, uri string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, SpanPrefixResource+"read",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(AttrResourceURI, uri)),
	)
}

// EndSpan records the outcome and ends span. A tool result flagged as an
// error without a Go error still marks the span as failed.
func EndSpan(span trace.Span, err error, isError bool, msg string) {
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case isError:
		span.SetAttributes(attribute.Bool(AttrMCPResultErr, true))
		span.SetStatus(codes.Error, msg)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
