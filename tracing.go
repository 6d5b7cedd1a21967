package toolloop

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/skosovsky/toolloop"

// Span attribute keys.
const (
	attrToolName    = attribute.Key("gen_ai.tool.name")
	attrToolCallID  = attribute.Key("gen_ai.tool.call.id")
	attrIteration   = attribute.Key("toolloop.iteration")
	attrCallCount   = attribute.Key("toolloop.call_count")
	attrOutcome     = attribute.Key("toolloop.outcome")
	attrResponseID  = attribute.Key("toolloop.response_id")
	attrConcurrent  = attribute.Key("toolloop.concurrent")
	attrFailedCalls = attribute.Key("toolloop.failed_calls")
)

// resolveTracer picks the explicit provider, then one registered with the session services,
// then the global provider (a no-op unless the application installed one).
func resolveTracer(tp trace.TracerProvider, sp ServiceProvider) trace.Tracer {
	if tp == nil {
		if v, ok := Lookup[trace.TracerProvider](sp); ok && v != nil {
			tp = v
		}
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

func startRoundSpan(ctx context.Context, tracer trace.Tracer, msg ServerMessage, iteration, calls int, concurrent bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tool_loop.round",
		trace.WithAttributes(
			attrIteration.Int(iteration),
			attrCallCount.Int(calls),
			attrResponseID.String(msg.ResponseID),
			attrConcurrent.Bool(concurrent),
		),
	)
}

func startToolSpan(ctx context.Context, tracer trace.Tracer, call CallRequest) (context.Context, trace.Span) {
	return tracer.Start(ctx, "execute_tool "+call.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attrToolName.String(call.Name),
			attrToolCallID.String(call.ID),
		),
	)
}

// endSpan records err (if any) and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
