package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// runStoreSuite exercises the Store contract against one backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	checkpoint := func(id, workflow string, iteration int, created time.Time) Checkpoint {
		return Checkpoint{
			ID:           id,
			WorkflowName: workflow,
			RunID:        "run-1",
			Fingerprint:  "sha256:abc",
			Iteration:    iteration,
			Messages: []Message{
				{
					Source:    "ping",
					Target:    "pong",
					Payload:   Value{Type: "int", Data: json.RawMessage(`7`)},
					Superstep: iteration,
				},
			},
			State: map[string]Value{
				"count": {Type: "int", Data: json.RawMessage(fmt.Sprint(iteration))},
			},
			Outputs: []Value{
				{Type: "string", Data: json.RawMessage(`"halfway"`)},
			},
			ExecutorStates: map[string]json.RawMessage{
				"ping": json.RawMessage(`{"calls":3}`),
			},
			CreatedAt: created,
		}
	}

	t.Run("save and get round-trip", func(t *testing.T) {
		st := newStore(t)
		created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		want := checkpoint("cp-1", "wf", 2, created)
		if err := st.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := st.Get(ctx, "cp-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ID != "cp-1" || got.WorkflowName != "wf" || got.RunID != "run-1" {
			t.Errorf("identity fields = %+v", got)
		}
		if got.Fingerprint != "sha256:abc" || got.Iteration != 2 {
			t.Errorf("fingerprint/iteration = %q / %d", got.Fingerprint, got.Iteration)
		}
		if len(got.Messages) != 1 || got.Messages[0].Target != "pong" {
			t.Errorf("Messages = %+v", got.Messages)
		}
		if got.Messages[0].Payload.Type != "int" || string(got.Messages[0].Payload.Data) != "7" {
			t.Errorf("payload = %+v", got.Messages[0].Payload)
		}
		if string(got.State["count"].Data) != "2" {
			t.Errorf("State = %+v", got.State)
		}
		if len(got.Outputs) != 1 || string(got.Outputs[0].Data) != `"halfway"` {
			t.Errorf("Outputs = %+v", got.Outputs)
		}
		if string(got.ExecutorStates["ping"]) != `{"calls":3}` {
			t.Errorf("ExecutorStates = %+v", got.ExecutorStates)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}
	})

	t.Run("get unknown ID", func(t *testing.T) {
		st := newStore(t)
		if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate ID rejected", func(t *testing.T) {
		st := newStore(t)
		cp := checkpoint("cp-dup", "wf", 1, time.Now().UTC())
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := st.Save(ctx, cp); !errors.Is(err, ErrDuplicateID) {
			t.Errorf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("list by workflow in creation order", func(t *testing.T) {
		st := newStore(t)
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		for i, id := range []string{"cp-a", "cp-b", "cp-c"} {
			cp := checkpoint(id, "wf", i+1, base.Add(time.Duration(i)*time.Minute))
			if err := st.Save(ctx, cp); err != nil {
				t.Fatalf("Save(%s) failed: %v", id, err)
			}
		}
		other := checkpoint("cp-x", "other-wf", 1, base)
		if err := st.Save(ctx, other); err != nil {
			t.Fatalf("Save(cp-x) failed: %v", err)
		}

		got, err := st.List(ctx, "wf")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("List returned %d checkpoints, want 3", len(got))
		}
		for i, want := range []string{"cp-a", "cp-b", "cp-c"} {
			if got[i].ID != want {
				t.Errorf("List[%d].ID = %q, want %q", i, got[i].ID, want)
			}
		}

		empty, err := st.List(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("List(nonexistent) failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("List(nonexistent) returned %d checkpoints, want 0", len(empty))
		}
	})

	t.Run("stored record is isolated from caller", func(t *testing.T) {
		st := newStore(t)
		cp := checkpoint("cp-iso", "wf", 1, time.Now().UTC())
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		cp.Messages[0].Target = "mutated"

		got, err := st.Get(ctx, "cp-iso")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Messages[0].Target != "pong" {
			t.Error("mutating the saved value changed the stored record")
		}
	})
}

func TestMemStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemStore()
	})
}

func TestFileStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		st, err := NewFileStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileStore failed: %v", err)
		}
		return st
	})
}

func TestFileStore_EmptyDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		st, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func TestSQLiteStore_Closed(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent.
	if err := st.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := st.Save(context.Background(), Checkpoint{ID: "cp"}); err == nil {
		t.Error("expected error saving to a closed store")
	}
}

func TestSQLiteStore_ConcurrentDuplicateSaves(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// Racing saves of one ID: exactly one wins, the rest get
	// ErrDuplicateID rather than a raw constraint error.
	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			errs <- st.Save(context.Background(), Checkpoint{
				ID:           "contested",
				WorkflowName: "wf",
				RunID:        "run",
				Fingerprint:  "sha256:abc",
				CreatedAt:    time.Now(),
			})
		}()
	}

	var saved, dup int
	for i := 0; i < writers; i++ {
		switch err := <-errs; {
		case err == nil:
			saved++
		case errors.Is(err, ErrDuplicateID):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if saved != 1 {
		t.Errorf("%d saves succeeded, want 1", saved)
	}
	if dup != writers-1 {
		t.Errorf("%d saves returned ErrDuplicateID, want %d", dup, writers-1)
	}
}
