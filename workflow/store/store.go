// Package store provides persistence backends for workflow checkpoints.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested checkpoint ID does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// ErrDuplicateID is returned when saving a checkpoint whose ID already
// exists. Checkpoint IDs are write-once; the engine never overwrites.
var ErrDuplicateID = errors.New("checkpoint ID already exists")

// Value is a typed serialized payload. Type names the registered Go
// type so the engine can restore the exact concrete type on resume
// rather than generic JSON values. An empty Type denotes a nil value.
type Value struct {
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a serialized in-flight envelope captured in a checkpoint.
type Message struct {
	// Source is the emitting executor's ID. Empty for workflow input.
	Source string `json:"source,omitempty"`

	// Target is the explicit destination, if the message bypasses edge
	// routing.
	Target string `json:"target,omitempty"`

	// Payload is the typed message payload.
	Payload Value `json:"payload"`

	// Superstep is the superstep in which the message was emitted.
	Superstep int `json:"superstep"`
}

// Checkpoint is a complete snapshot of a paused workflow run: enough to
// continue execution on a structurally identical workflow.
type Checkpoint struct {
	// ID uniquely identifies this checkpoint.
	ID string `json:"id"`

	// WorkflowName is the name the workflow was built with. Used to
	// list the checkpoints belonging to one workflow.
	WorkflowName string `json:"workflow_name"`

	// RunID identifies the run that produced this checkpoint.
	RunID string `json:"run_id"`

	// Fingerprint is the structural hash of the workflow at save time.
	// Resume validates it against the current workflow before any
	// state is restored.
	Fingerprint string `json:"fingerprint"`

	// Iteration is the number of completed supersteps.
	Iteration int `json:"iteration"`

	// Messages are the envelopes queued for the next superstep.
	Messages []Message `json:"messages,omitempty"`

	// State is the committed shared state, one typed value per key.
	State map[string]Value `json:"state,omitempty"`

	// Outputs are the values yielded in the supersteps completed so
	// far, in yield order. Restored on resume so a resumed run reports
	// the same outputs as an uninterrupted one.
	Outputs []Value `json:"outputs,omitempty"`

	// ExecutorStates holds the private snapshots of executors that
	// implement the Stateful interface, keyed by executor ID.
	ExecutorStates map[string]json.RawMessage `json:"executor_states,omitempty"`

	// CreatedAt records when the checkpoint was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists workflow checkpoints.
//
// Implementations must be safe for concurrent use. Backends provided
// here: in-memory (testing), file directory, SQLite, and MySQL.
type Store interface {
	// Save persists a checkpoint. Saving an ID that already exists
	// returns ErrDuplicateID.
	Save(ctx context.Context, cp Checkpoint) error

	// Get retrieves a checkpoint by ID. Returns ErrNotFound when the
	// ID does not exist.
	Get(ctx context.Context, id string) (Checkpoint, error)

	// List returns all checkpoints for a workflow name in creation
	// order. An unknown name yields an empty slice, not an error.
	List(ctx context.Context, workflowName string) ([]Checkpoint, error)
}

// cloneCheckpoint returns an independent copy of a checkpoint through a
// JSON round-trip, so callers cannot mutate stored records.
func cloneCheckpoint(cp Checkpoint) (Checkpoint, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint{}, err
	}
	var out Checkpoint
	if err := json.Unmarshal(data, &out); err != nil {
		return Checkpoint{}, err
	}
	return out, nil
}
