// Package emit provides observability events and pluggable emitters for
// workflow execution.
package emit

import "time"

// Event types emitted by the workflow engine.
const (
	// TypeExecutorInvoked is emitted when a message is handed to an
	// executor's handler.
	TypeExecutorInvoked = "executor_invoked"

	// TypeExecutorCompleted is emitted when a handler returns without
	// error.
	TypeExecutorCompleted = "executor_completed"

	// TypeSuperstepCompleted is emitted after a superstep commits.
	TypeSuperstepCompleted = "superstep_completed"

	// TypeWorkflowOutput is emitted for each value an executor yields
	// as workflow output. The value is carried in Data.
	TypeWorkflowOutput = "workflow_output"

	// TypeWorkflowStatus is emitted for run lifecycle transitions
	// (started, converged, resumed) and routing diagnostics.
	TypeWorkflowStatus = "workflow_status"

	// TypeWorkflowError is emitted when a run fails. Err carries the
	// terminal error.
	TypeWorkflowError = "workflow_error"

	// TypeCheckpointSaved is emitted after a superstep checkpoint is
	// persisted. Meta carries the checkpoint ID.
	TypeCheckpointSaved = "checkpoint_saved"
)

// Event represents an observability event emitted during workflow
// execution.
//
// Events provide insight into workflow behavior:
//   - Executor invocation and completion
//   - Superstep boundaries
//   - Yielded outputs
//   - Errors and status transitions
//   - Checkpoint operations
//
// Executors may also publish custom events through their
// HandlerContext; those carry an application-defined Type.
type Event struct {
	// Type classifies the event. Engine events use the Type* constants;
	// executor-defined events use application strings.
	Type string

	// RunID identifies the workflow run that emitted this event.
	RunID string

	// Superstep is the superstep number the event belongs to
	// (0-indexed). Zero for events emitted before the first superstep.
	Superstep int

	// ExecutorID identifies which executor the event concerns.
	// Empty for workflow-level events.
	ExecutorID string

	// Data carries the event payload, such as a yielded output value
	// or executor-defined event data.
	Data any

	// Err carries the error for workflow_error events.
	Err error

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "checkpoint_id": Checkpoint identifier
	//   - "iterations": Supersteps executed when a run finishes
	//   - "tokens_in", "tokens_out": LLM token usage
	//   - "reason": Explanation for status events
	Meta map[string]any

	// Timestamp records when the event was created.
	Timestamp time.Time
}
