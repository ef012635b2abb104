// Package workflow provides a superstep-based orchestration engine for
// multi-executor workflows with shared state, typed message routing,
// and checkpoint/resume.
package workflow

import "errors"

// ErrAlreadyRunning indicates that Run or RunStream was called while a
// previous run on the same Runner had not finished. Runners are not
// re-entrant; concurrent runs require separate Runner instances.
var ErrAlreadyRunning = errors.New("workflow is already running")

// ErrNotConverged indicates that the workflow still had queued messages
// after executing the configured maximum number of supersteps. This is
// the engine's only guard against cyclic workflows that never quiesce.
var ErrNotConverged = errors.New("workflow did not converge")

// ErrGraphChanged indicates that a checkpoint was created by a workflow
// whose structure differs from the current one. Resuming is refused
// before any state is restored.
var ErrGraphChanged = errors.New("workflow graph has changed")

// ErrKeyNotFound indicates a Delete of a shared-state key that is not
// present in either the committed or the pending view.
var ErrKeyNotFound = errors.New("shared state key not found")

// ErrReservedKey indicates an attempt to write a shared-state key in the
// framework-reserved namespace (keys beginning with "_").
var ErrReservedKey = errors.New("shared state key is reserved")

// ErrNoHandler indicates that a message was delivered to an executor
// whose CanHandle rejected it.
var ErrNoHandler = errors.New("no handler registered for message type")

// ErrNoRoute indicates that a switch edge group matched none of its
// cases and had no default target for the message.
var ErrNoRoute = errors.New("no switch case matched message")

// ErrDuplicateHandler indicates a second handler registration for a
// message type on the same executor.
var ErrDuplicateHandler = errors.New("handler already registered for message type")

// WorkflowError represents a configuration error detected while building
// or starting a workflow. Configuration errors are fatal and reported
// eagerly, before any superstep runs.
type WorkflowError struct {
	Message string
	Code    string
}

func (e *WorkflowError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Configuration error codes carried by WorkflowError.
const (
	CodeEmptyExecutorID   = "EMPTY_EXECUTOR_ID"
	CodeDuplicateExecutor = "DUPLICATE_EXECUTOR"
	CodeExecutorNotFound  = "EXECUTOR_NOT_FOUND"
	CodeNoStartExecutor   = "NO_START_EXECUTOR"
	CodeEmptyParticipants = "EMPTY_PARTICIPANTS"
	CodeInvalidOption     = "INVALID_OPTION"
	CodeInvalidEdge       = "INVALID_EDGE"
)

// ExecutorError wraps an error produced by an executor's handler during
// a superstep.
type ExecutorError struct {
	// ExecutorID identifies which executor produced this error.
	ExecutorID string

	// Message is the human-readable error description.
	Message string

	// Cause is the underlying error returned by the handler.
	Cause error
}

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	if e.ExecutorID != "" {
		return "executor " + e.ExecutorID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}
