package workflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// WorkflowExecutor wraps a whole Workflow as a single executor, so
// workflows compose recursively: the nested graph appears to the parent
// as one node.
//
// Each delivery runs the nested workflow to convergence within the
// parent's superstep, with a fresh nested Runner and shared state per
// invocation. Values the nested workflow yields as output are sent
// onward through the parent's edges; a nested failure fails the parent
// superstep.
//
// The nested topology participates in the parent's structural
// fingerprint at any depth, so a change inside a sub-workflow
// invalidates checkpoints of every enclosing workflow.
type WorkflowExecutor struct {
	id   string
	wf   *Workflow
	opts []Option
}

// NewWorkflowExecutor wraps wf as an executor with the given id. The
// opts configure the nested Runner created for each delivery, e.g. a
// tighter WithMaxIterations.
func NewWorkflowExecutor(id string, wf *Workflow, opts ...Option) (*WorkflowExecutor, error) {
	if id == "" {
		return nil, &WorkflowError{
			Message: "executor ID cannot be empty",
			Code:    CodeEmptyExecutorID,
		}
	}
	if wf == nil {
		return nil, &WorkflowError{Message: "nested workflow cannot be nil"}
	}
	return &WorkflowExecutor{id: id, wf: wf, opts: opts}, nil
}

// ID returns the executor's identifier.
func (w *WorkflowExecutor) ID() string {
	return w.id
}

// CanHandle delegates to the nested workflow's start executor.
func (w *WorkflowExecutor) CanHandle(msg any) bool {
	return w.wf.startExecutor().CanHandle(msg)
}

// Handle runs the nested workflow to convergence on the delivered
// message and forwards every nested output into the parent graph.
func (w *WorkflowExecutor) Handle(ctx context.Context, msg any, hc *HandlerContext) error {
	runner, err := NewRunner(w.wf, w.opts...)
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, msg)
	if err != nil {
		return &ExecutorError{
			ExecutorID: w.id,
			Message:    fmt.Sprintf("nested workflow %s failed", w.wf.Name()),
			Cause:      err,
		}
	}

	for _, out := range result.Outputs {
		hc.SendMessage(out)
	}
	return nil
}

// fingerprint exposes the nested topology to the parent's Fingerprint.
func (w *WorkflowExecutor) fingerprint() string {
	return w.wf.Fingerprint()
}

// contributeTypes merges the nested workflow's codec registrations into
// the parent's, so nested payloads checkpointed at the parent level
// restore with their concrete types.
func (w *WorkflowExecutor) contributeTypes(c *messageCodec) error {
	return c.merge(w.wf.codec)
}

// SaveState implements Stateful by snapshotting every Stateful executor
// inside the nested workflow, recursively through further nesting.
func (w *WorkflowExecutor) SaveState() (map[string]any, error) {
	states, err := collectExecutorStates(w.wf)
	if err != nil {
		return nil, err
	}
	if states == nil {
		return nil, nil
	}

	// json.RawMessage does not survive a generic map round-trip, so
	// re-encode as plain values.
	nested := make(map[string]any, len(states))
	for id, raw := range states {
		var snapshot map[string]any
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return nil, fmt.Errorf("executor %s: %w", id, err)
		}
		nested[id] = snapshot
	}
	return map[string]any{"executors": nested}, nil
}

// LoadState implements Stateful by restoring the nested executors'
// snapshots saved by SaveState.
func (w *WorkflowExecutor) LoadState(state map[string]any) error {
	raw, ok := state["executors"]
	if !ok {
		return nil
	}
	nested, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("sub-workflow %s: malformed executor state snapshot", w.id)
	}

	for id, v := range nested {
		exec, ok := w.wf.Executor(id)
		if !ok {
			return fmt.Errorf("sub-workflow %s: state for unknown executor %s", w.id, id)
		}
		sf, ok := exec.(Stateful)
		if !ok {
			return fmt.Errorf("sub-workflow %s: state for non-stateful executor %s", w.id, id)
		}
		snapshot, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("sub-workflow %s: malformed state for executor %s", w.id, id)
		}
		if err := sf.LoadState(snapshot); err != nil {
			return fmt.Errorf("sub-workflow %s: executor %s: %w", w.id, id, err)
		}
	}
	return nil
}
