package emit

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingEmitter(t *testing.T) (*OTelEmitter, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), recorder
}

func attributeMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestOTelEmitter_SpanPerEvent(t *testing.T) {
	emitter, recorder := newRecordingEmitter(t)

	emitter.Emit(Event{
		Type:       TypeExecutorCompleted,
		RunID:      "run-1",
		Superstep:  4,
		ExecutorID: "ranker",
		Meta:       map[string]any{"latency_ms": int64(12)},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != TypeExecutorCompleted {
		t.Errorf("span name = %q", span.Name())
	}

	attrs := attributeMap(span)
	if attrs["stepflow.run_id"].AsString() != "run-1" {
		t.Errorf("run_id attribute = %v", attrs["stepflow.run_id"])
	}
	if attrs["stepflow.superstep"].AsInt64() != 4 {
		t.Errorf("superstep attribute = %v", attrs["stepflow.superstep"])
	}
	if attrs["stepflow.executor_id"].AsString() != "ranker" {
		t.Errorf("executor_id attribute = %v", attrs["stepflow.executor_id"])
	}
	if attrs["stepflow.executor.latency_ms"].AsInt64() != 12 {
		t.Errorf("latency attribute = %v", attrs["stepflow.executor.latency_ms"])
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, recorder := newRecordingEmitter(t)

	emitter.Emit(Event{
		Type:  TypeWorkflowError,
		RunID: "run-1",
		Err:   errors.New("handler exploded"),
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want error", spans[0].Status())
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected a recorded error event on the span")
	}
}

func TestOTelEmitter_TokenUsageNamespace(t *testing.T) {
	emitter, recorder := newRecordingEmitter(t)

	emitter.Emit(Event{
		Type:  "agent_usage",
		RunID: "run-1",
		Meta: map[string]any{
			"tokens_in":  120,
			"tokens_out": 48,
			"model":      "gpt-4o",
		},
	})

	attrs := attributeMap(recorder.Ended()[0])
	if attrs["stepflow.llm.tokens_in"].AsInt64() != 120 {
		t.Errorf("tokens_in attribute = %v", attrs["stepflow.llm.tokens_in"])
	}
	if attrs["stepflow.llm.tokens_out"].AsInt64() != 48 {
		t.Errorf("tokens_out attribute = %v", attrs["stepflow.llm.tokens_out"])
	}
	if attrs["stepflow.llm.model"].AsString() != "gpt-4o" {
		t.Errorf("model attribute = %v", attrs["stepflow.llm.model"])
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	emitter, recorder := newRecordingEmitter(t)

	events := []Event{
		{Type: TypeExecutorInvoked, RunID: "run-1", ExecutorID: "a"},
		{Type: TypeExecutorCompleted, RunID: "run-1", ExecutorID: "a"},
		{Type: TypeSuperstepCompleted, RunID: "run-1"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	for i, span := range spans {
		if span.Name() != events[i].Type {
			t.Errorf("span %d name = %q, want %q", i, span.Name(), events[i].Type)
		}
	}
}
