package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span with:
//   - Span name: event.Type (e.g., "executor_invoked", "workflow_output")
//   - Attributes: runID, superstep, executorID, and all event.Meta fields
//   - Status: set to error when event.Err is non-nil
//
// Spans are ended immediately: events represent points in time, not
// durations. When Meta carries a "latency_ms" field the latency is
// still visible as a span attribute.
//
// Usage:
//
//	// Setup OpenTelemetry provider (application code)
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//
//	tracer := otel.Tracer("stepflow-go")
//	emitter := emit.NewOTelEmitter(tracer)
//	runner, _ := workflow.NewRunner(wf, workflow.WithEmitter(emitter))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter producing one span per event from
// the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates an OpenTelemetry span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Type)
	defer span.End()

	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)

	if event.Err != nil {
		span.SetStatus(codes.Error, event.Err.Error())
		span.RecordError(event.Err)
	}
}

// EmitBatch creates spans for several events under one context,
// preserving trace propagation from ctx.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Type)

		o.addStandardAttributes(span, event)
		o.addMetadataAttributes(span, event.Meta)

		if event.Err != nil {
			span.SetStatus(codes.Error, event.Err.Error())
			span.RecordError(event.Err)
		}

		span.End()
	}

	return nil
}

// Flush forces export of all pending spans.
//
// OpenTelemetry typically buffers spans in a batch span processor;
// Flush ensures buffered spans reach the backend before shutdown. It
// is a no-op when the installed provider does not support flushing.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()

	type flusher interface {
		ForceFlush(context.Context) error
	}

	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}

	return nil
}

func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("stepflow.run_id", event.RunID),
		attribute.Int("stepflow.superstep", event.Superstep),
		attribute.String("stepflow.executor_id", event.ExecutorID),
	)
}

// addMetadataAttributes converts event metadata to span attributes.
//
// Handles common types directly (string, int, int64, float64, bool,
// time.Duration as milliseconds); everything else falls back to its
// string representation. Token usage keys map to the stepflow.llm
// namespace.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]any) {
	for key, value := range meta {
		attrKey := key
		switch key {
		case "tokens_in":
			attrKey = "stepflow.llm.tokens_in"
		case "tokens_out":
			attrKey = "stepflow.llm.tokens_out"
		case "model":
			attrKey = "stepflow.llm.model"
		case "latency_ms":
			attrKey = "stepflow.executor.latency_ms"
		case "checkpoint_id":
			attrKey = "stepflow.checkpoint_id"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
