package workflow

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/stepflow-go/workflow/emit"
	"github.com/dshills/stepflow-go/workflow/store"
)

// tallyExecutor counts to a limit through a self-edge, tracking its
// invocation count as private checkpointed state.
type tallyExecutor struct {
	id    string
	limit int
	calls int
}

func (e *tallyExecutor) ID() string { return e.id }

func (e *tallyExecutor) CanHandle(msg any) bool {
	_, ok := msg.(int)
	return ok
}

func (e *tallyExecutor) Handle(ctx context.Context, msg any, hc *HandlerContext) error {
	n := msg.(int)
	e.calls++
	if err := hc.State().Set("last", n); err != nil {
		return err
	}
	if n >= e.limit {
		hc.YieldOutput(n)
		return nil
	}
	hc.SendMessage(n + 1)
	return nil
}

func (e *tallyExecutor) SaveState() (map[string]any, error) {
	return map[string]any{"calls": e.calls}, nil
}

func (e *tallyExecutor) LoadState(state map[string]any) error {
	if v, ok := state["calls"].(float64); ok {
		e.calls = int(v)
	}
	return nil
}

// buildTally constructs a counting self-loop workflow around a fresh
// tallyExecutor. Identical calls produce structurally identical
// workflows with matching fingerprints.
func buildTally(t *testing.T, id string, limit int) (*Workflow, *tallyExecutor) {
	t.Helper()

	exec := &tallyExecutor{id: id, limit: limit}
	b := NewBuilder("tally")
	if err := b.AddExecutor(exec); err != nil {
		t.Fatalf("AddExecutor failed: %v", err)
	}
	if err := b.StartAt(id); err != nil {
		t.Fatalf("StartAt failed: %v", err)
	}
	if err := b.Connect(id, id); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	wf, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return wf, exec
}

func TestCheckpoint_SavedEverySuperstep(t *testing.T) {
	st := store.NewMemStore()
	wf, _ := buildTally(t, "counter", 5)
	r, err := NewRunner(wf, WithCheckpointing(st), WithRunID("run-cp"))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	result, err := r.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Iterations != 6 {
		t.Fatalf("Iterations = %d, want 6", result.Iterations)
	}

	cps, err := r.Checkpoints(context.Background())
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(cps) != 6 {
		t.Fatalf("expected 6 checkpoints, got %d", len(cps))
	}

	for i, cp := range cps {
		if cp.Iteration != i+1 {
			t.Errorf("checkpoint %d: Iteration = %d, want %d", i, cp.Iteration, i+1)
		}
		if cp.WorkflowName != "tally" {
			t.Errorf("checkpoint %d: WorkflowName = %q", i, cp.WorkflowName)
		}
		if cp.RunID != "run-cp" {
			t.Errorf("checkpoint %d: RunID = %q", i, cp.RunID)
		}
		if cp.Fingerprint != wf.Fingerprint() {
			t.Errorf("checkpoint %d: fingerprint mismatch", i)
		}
	}

	// The final checkpoint has an empty queue and the converged state.
	last := cps[len(cps)-1]
	if len(last.Messages) != 0 {
		t.Errorf("final checkpoint holds %d queued messages, want 0", len(last.Messages))
	}
	mid := cps[2]
	if len(mid.Messages) != 1 {
		t.Errorf("mid-run checkpoint holds %d queued messages, want 1", len(mid.Messages))
	}
}

func TestCheckpoint_ResumeMatchesFullRun(t *testing.T) {
	// Reference: an uninterrupted run.
	fullWf, fullExec := buildTally(t, "counter", 5)
	fullRunner, _ := NewRunner(fullWf, WithCheckpointing(store.NewMemStore()))
	fullResult, err := fullRunner.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("full run failed: %v", err)
	}

	// Interrupted run: execute with checkpointing, then resume a fresh
	// but structurally identical workflow from a mid-run checkpoint.
	st := store.NewMemStore()
	wf1, _ := buildTally(t, "counter", 5)
	r1, _ := NewRunner(wf1, WithCheckpointing(st))
	if _, err := r1.Run(context.Background(), 0); err != nil {
		t.Fatalf("checkpointed run failed: %v", err)
	}

	cps, err := r1.Checkpoints(context.Background())
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	var mid store.Checkpoint
	for _, cp := range cps {
		if cp.Iteration == 3 {
			mid = cp
		}
	}
	if mid.ID == "" {
		t.Fatal("no checkpoint at iteration 3")
	}

	wf2, exec2 := buildTally(t, "counter", 5)
	r2, _ := NewRunner(wf2, WithCheckpointing(st))
	resumed, err := r2.Resume(context.Background(), mid.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if !reflect.DeepEqual(resumed.Outputs, fullResult.Outputs) {
		t.Errorf("resumed Outputs = %v, full-run Outputs = %v", resumed.Outputs, fullResult.Outputs)
	}
	if resumed.Iterations != fullResult.Iterations {
		t.Errorf("resumed Iterations = %d, full-run Iterations = %d", resumed.Iterations, fullResult.Iterations)
	}
	if !reflect.DeepEqual(resumed.FinalState, fullResult.FinalState) {
		t.Errorf("resumed FinalState = %v, full-run FinalState = %v", resumed.FinalState, fullResult.FinalState)
	}
	// The message payload restores as a concrete int: the counter
	// resumed from 3 and ran three more supersteps.
	if exec2.calls != fullExec.calls {
		t.Errorf("resumed executor handled %d messages total, full run handled %d", exec2.calls, fullExec.calls)
	}
	// The resumed run continues under the original run's identity.
	if resumed.RunID != mid.RunID {
		t.Errorf("resumed RunID = %q, want %q", resumed.RunID, mid.RunID)
	}
}

func TestCheckpoint_ResumeRestoresEarlierOutputs(t *testing.T) {
	// An executor that yields before the run finishes: "halfway" at 1,
	// "done" at 3. Outputs yielded before a checkpoint must survive a
	// resume from it.
	build := func(t *testing.T) *Workflow {
		t.Helper()
		exec, err := NewHandlerExecutor("stages")
		if err != nil {
			t.Fatalf("NewHandlerExecutor failed: %v", err)
		}
		err = On(exec, func(ctx context.Context, n int, hc *HandlerContext) error {
			if n == 1 {
				hc.YieldOutput("halfway")
			}
			if n >= 3 {
				hc.YieldOutput("done")
				return nil
			}
			hc.SendMessage(n + 1)
			return nil
		})
		if err != nil {
			t.Fatalf("On failed: %v", err)
		}
		b := NewBuilder("stages")
		if err := b.AddExecutor(exec); err != nil {
			t.Fatalf("AddExecutor failed: %v", err)
		}
		if err := b.StartAt("stages"); err != nil {
			t.Fatalf("StartAt failed: %v", err)
		}
		if err := b.Connect("stages", "stages"); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		wf, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		return wf
	}

	fullRunner, _ := NewRunner(build(t))
	full, err := fullRunner.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("full run failed: %v", err)
	}
	want := []any{"halfway", "done"}
	if !reflect.DeepEqual(full.Outputs, want) {
		t.Fatalf("full-run Outputs = %v, want %v", full.Outputs, want)
	}

	st := store.NewMemStore()
	r1, _ := NewRunner(build(t), WithCheckpointing(st))
	if _, err := r1.Run(context.Background(), 0); err != nil {
		t.Fatalf("checkpointed run failed: %v", err)
	}

	cps, err := r1.Checkpoints(context.Background())
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	var mid store.Checkpoint
	for _, cp := range cps {
		if cp.Iteration == 3 {
			mid = cp
		}
	}
	if mid.ID == "" {
		t.Fatal("no checkpoint at iteration 3")
	}
	// "halfway" was yielded at iteration 2, so it rides in the record.
	if len(mid.Outputs) != 1 {
		t.Fatalf("mid-run checkpoint holds %d outputs, want 1", len(mid.Outputs))
	}

	r2, _ := NewRunner(build(t), WithCheckpointing(st))
	resumed, err := r2.Resume(context.Background(), mid.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !reflect.DeepEqual(resumed.Outputs, want) {
		t.Errorf("resumed Outputs = %v, want %v", resumed.Outputs, want)
	}
}

func TestCheckpoint_ResumeRejectsChangedGraph(t *testing.T) {
	st := store.NewMemStore()
	wf1, _ := buildTally(t, "counter", 5)
	r1, _ := NewRunner(wf1, WithCheckpointing(st))
	if _, err := r1.Run(context.Background(), 0); err != nil {
		t.Fatalf("checkpointed run failed: %v", err)
	}
	cps, _ := r1.Checkpoints(context.Background())
	if len(cps) == 0 {
		t.Fatal("no checkpoints saved")
	}

	// Same shape, different executor ID: a structural change.
	wf2, _ := buildTally(t, "renamed", 5)
	r2, _ := NewRunner(wf2, WithCheckpointing(st))
	_, err := r2.Resume(context.Background(), cps[0].ID)
	if !errors.Is(err, ErrGraphChanged) {
		t.Fatalf("expected ErrGraphChanged, got %v", err)
	}
	// Refused before any state moves: the runner stays reusable.
	if _, err := r2.Run(context.Background(), 0); err != nil {
		t.Errorf("Run after failed resume: %v", err)
	}
}

func TestCheckpoint_ResumeUnknownID(t *testing.T) {
	wf, _ := buildTally(t, "counter", 5)
	r, _ := NewRunner(wf, WithCheckpointing(store.NewMemStore()))

	_, err := r.Resume(context.Background(), "no-such-checkpoint")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestCheckpoint_RequiresConfiguration(t *testing.T) {
	wf, _ := buildTally(t, "counter", 5)
	r, _ := NewRunner(wf)

	_, err := r.Checkpoints(context.Background())
	expectCode(t, err, CodeInvalidOption)

	_, err = r.Resume(context.Background(), "any")
	expectCode(t, err, CodeInvalidOption)
}

func TestCheckpoint_ExecutorStateRoundTrip(t *testing.T) {
	st := store.NewMemStore()
	wf1, exec1 := buildTally(t, "counter", 5)
	r1, _ := NewRunner(wf1, WithCheckpointing(st))
	if _, err := r1.Run(context.Background(), 0); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if exec1.calls != 6 {
		t.Fatalf("exec1.calls = %d, want 6", exec1.calls)
	}

	cps, _ := r1.Checkpoints(context.Background())
	var mid store.Checkpoint
	for _, cp := range cps {
		if cp.Iteration == 4 {
			mid = cp
		}
	}
	if mid.ID == "" {
		t.Fatal("no checkpoint at iteration 4")
	}
	if len(mid.ExecutorStates) != 1 {
		t.Fatalf("ExecutorStates has %d entries, want 1", len(mid.ExecutorStates))
	}

	wf2, exec2 := buildTally(t, "counter", 5)
	r2, _ := NewRunner(wf2, WithCheckpointing(st))
	if _, err := r2.Resume(context.Background(), mid.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	// Four invocations restored from the snapshot plus two to finish.
	if exec2.calls != 6 {
		t.Errorf("exec2.calls = %d, want 6", exec2.calls)
	}
}

func TestCheckpoint_ResumeStream(t *testing.T) {
	st := store.NewMemStore()
	wf1, _ := buildTally(t, "counter", 5)
	r1, _ := NewRunner(wf1, WithCheckpointing(st))
	if _, err := r1.Run(context.Background(), 0); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	cps, _ := r1.Checkpoints(context.Background())

	wf2, _ := buildTally(t, "counter", 5)
	r2, _ := NewRunner(wf2, WithCheckpointing(st))
	events, err := r2.ResumeStream(context.Background(), cps[0].ID)
	if err != nil {
		t.Fatalf("ResumeStream failed: %v", err)
	}

	var output any
	for ev := range events {
		if ev.Type == emit.TypeWorkflowOutput {
			output = ev.Data
		}
	}
	if output != 5 {
		t.Errorf("workflow_output Data = %v, want 5", output)
	}
	if r2.Status() != StatusConverged {
		t.Errorf("Status() = %v, want converged", r2.Status())
	}
}
