package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/stepflow-go/workflow/emit"
	"github.com/dshills/stepflow-go/workflow/store"
)

// saveCheckpoint persists a snapshot of the run at a superstep boundary:
// the workflow fingerprint, the committed shared state, the messages
// queued for the next superstep, the outputs yielded so far, and the
// private state of every Stateful executor. Callers ensure
// checkpointing is configured.
func (r *Runner) saveCheckpoint(ctx context.Context, queue []Envelope) (string, error) {
	messages := make([]store.Message, len(queue))
	for i, env := range queue {
		payload, err := r.wf.codec.encode(env.Payload)
		if err != nil {
			return "", fmt.Errorf("message queued for %s: %w", env.TargetID, err)
		}
		messages[i] = store.Message{
			Source:    env.SourceID,
			Target:    env.TargetID,
			Payload:   payload,
			Superstep: env.Superstep,
		}
	}

	state, err := r.wf.codec.encodeStateMap(r.state.Export())
	if err != nil {
		return "", err
	}

	outputs, err := r.wf.codec.encodeValues(r.outputs)
	if err != nil {
		return "", err
	}

	execStates, err := collectExecutorStates(r.wf)
	if err != nil {
		return "", err
	}

	cp := store.Checkpoint{
		ID:             uuid.NewString(),
		WorkflowName:   r.wf.Name(),
		RunID:          r.runID,
		Fingerprint:    r.wf.Fingerprint(),
		Iteration:      r.iteration,
		Messages:       messages,
		State:          state,
		Outputs:        outputs,
		ExecutorStates: execStates,
		CreatedAt:      time.Now(),
	}
	if err := r.cfg.checkpoints.Save(ctx, cp); err != nil {
		return "", err
	}
	return cp.ID, nil
}

// collectExecutorStates snapshots every Stateful executor's private
// state as JSON, keyed by executor ID.
func collectExecutorStates(wf *Workflow) (map[string]json.RawMessage, error) {
	states := make(map[string]json.RawMessage)
	for _, id := range wf.ExecutorIDs() {
		exec, _ := wf.Executor(id)
		sf, ok := exec.(Stateful)
		if !ok {
			continue
		}
		snapshot, err := sf.SaveState()
		if err != nil {
			return nil, fmt.Errorf("executor %s: failed to save state: %w", id, err)
		}
		if snapshot == nil {
			continue
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("executor %s: failed to encode state: %w", id, err)
		}
		states[id] = data
	}
	if len(states) == 0 {
		return nil, nil
	}
	return states, nil
}

// restoreExecutorStates loads checkpointed private state back into the
// workflow's Stateful executors.
func restoreExecutorStates(wf *Workflow, states map[string]json.RawMessage) error {
	for id, data := range states {
		exec, ok := wf.Executor(id)
		if !ok {
			return fmt.Errorf("checkpoint holds state for unknown executor %s", id)
		}
		sf, ok := exec.(Stateful)
		if !ok {
			return fmt.Errorf("checkpoint holds state for executor %s, which is not stateful", id)
		}
		var snapshot map[string]any
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return fmt.Errorf("executor %s: failed to decode state: %w", id, err)
		}
		if err := sf.LoadState(snapshot); err != nil {
			return fmt.Errorf("executor %s: failed to restore state: %w", id, err)
		}
	}
	return nil
}

// Checkpoints lists this workflow's saved checkpoints in creation
// order. Requires WithCheckpointing.
func (r *Runner) Checkpoints(ctx context.Context) ([]store.Checkpoint, error) {
	if r.cfg.checkpoints == nil {
		return nil, &WorkflowError{
			Message: "checkpointing is not configured; pass WithCheckpointing",
			Code:    CodeInvalidOption,
		}
	}
	return r.cfg.checkpoints.List(ctx, r.wf.Name())
}

// Resume continues a run from a saved checkpoint and drives it to
// completion, like Run.
//
// Before any state is restored, the current workflow's structural
// fingerprint is compared against the one recorded in the checkpoint,
// including the fingerprints of nested sub-workflows. A mismatch fails
// with ErrGraphChanged; a checkpoint is never resumed into a different
// graph.
func (r *Runner) Resume(ctx context.Context, checkpointID string) (*RunResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	queue, iteration, err := r.restore(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, queue, iteration, nil)
}

// ResumeStream continues a run from a saved checkpoint and returns its
// event stream, like RunStream. Restoration errors (unknown checkpoint,
// graph mismatch) are returned directly rather than streamed.
func (r *Runner) ResumeStream(ctx context.Context, checkpointID string) (<-chan emit.Event, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	queue, iteration, err := r.restore(ctx, checkpointID)
	if err != nil {
		r.running.Store(false)
		return nil, err
	}

	events := make(chan emit.Event, 64)
	go func() {
		// Release the running guard before the channel closes so a
		// caller draining the stream can start the next run immediately.
		defer close(events)
		defer r.running.Store(false)
		_, _ = r.run(ctx, queue, iteration, events)
	}()
	return events, nil
}

// restore loads a checkpoint, validates it against the current
// workflow, and rebuilds the run state. Callers hold the running guard.
func (r *Runner) restore(ctx context.Context, checkpointID string) ([]Envelope, int, error) {
	if r.cfg.checkpoints == nil {
		return nil, 0, &WorkflowError{
			Message: "checkpointing is not configured; pass WithCheckpointing",
			Code:    CodeInvalidOption,
		}
	}

	cp, err := r.cfg.checkpoints.Get(ctx, checkpointID)
	if err != nil {
		return nil, 0, fmt.Errorf("checkpoint %s: %w", checkpointID, err)
	}

	current := r.wf.Fingerprint()
	if cp.Fingerprint != current {
		return nil, 0, fmt.Errorf(
			"checkpoint %s was saved with fingerprint %s but the workflow now has %s: %w",
			checkpointID, cp.Fingerprint, current, ErrGraphChanged)
	}

	values, err := r.wf.codec.decodeStateMap(cp.State)
	if err != nil {
		return nil, 0, err
	}

	outputs, err := r.wf.codec.decodeValues(cp.Outputs)
	if err != nil {
		return nil, 0, err
	}

	queue := make([]Envelope, len(cp.Messages))
	for i, msg := range cp.Messages {
		payload, err := r.wf.codec.decode(msg.Payload)
		if err != nil {
			return nil, 0, err
		}
		queue[i] = Envelope{
			SourceID:  msg.Source,
			TargetID:  msg.Target,
			Payload:   payload,
			Superstep: msg.Superstep,
		}
	}

	if err := restoreExecutorStates(r.wf, cp.ExecutorStates); err != nil {
		return nil, 0, err
	}

	r.beginRun()
	if r.cfg.runID == "" {
		// Continue under the original run's identity.
		r.runID = cp.RunID
	}
	r.state.Import(values)
	r.outputs = outputs
	return queue, cp.Iteration, nil
}
