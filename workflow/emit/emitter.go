package emit

// Emitter receives observability events from workflow execution.
//
// Emitters enable pluggable observability backends: logging, distributed
// tracing, in-memory capture for tests, or fan-out to several sinks.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down workflow execution
//   - Thread-safe: Emit may be called concurrently from several handlers
//   - Resilient: handle backend failures without crashing the workflow
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not panic, and errors should be handled internally;
	// the engine never inspects emitter failures.
	Emit(event Event)
}
