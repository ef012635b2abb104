package emit

import (
	"sync"
	"testing"
)

func TestBufferedEmitter_History(t *testing.T) {
	b := NewBufferedEmitter()

	b.Emit(Event{Type: TypeExecutorInvoked, RunID: "r1", Superstep: 0, ExecutorID: "a"})
	b.Emit(Event{Type: TypeExecutorCompleted, RunID: "r1", Superstep: 0, ExecutorID: "a"})
	b.Emit(Event{Type: TypeWorkflowOutput, RunID: "r1", Superstep: 1, ExecutorID: "b", Data: 42})
	b.Emit(Event{Type: TypeExecutorInvoked, RunID: "r2", Superstep: 0, ExecutorID: "x"})

	history := b.GetHistory("r1")
	if len(history) != 3 {
		t.Fatalf("GetHistory(r1) returned %d events, want 3", len(history))
	}
	if history[0].Type != TypeExecutorInvoked || history[2].Data != 42 {
		t.Errorf("events out of order: %+v", history)
	}

	if got := b.GetHistory("unknown"); len(got) != 0 {
		t.Errorf("GetHistory(unknown) returned %d events, want 0", len(got))
	}

	// The returned slice is a copy.
	history[0].Type = "mutated"
	if b.GetHistory("r1")[0].Type != TypeExecutorInvoked {
		t.Error("mutating the returned history changed the buffer")
	}
}

func TestBufferedEmitter_Filter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{Type: TypeExecutorInvoked, RunID: "r1", Superstep: 0, ExecutorID: "a"})
	b.Emit(Event{Type: TypeExecutorInvoked, RunID: "r1", Superstep: 1, ExecutorID: "b"})
	b.Emit(Event{Type: TypeExecutorCompleted, RunID: "r1", Superstep: 1, ExecutorID: "b"})
	b.Emit(Event{Type: TypeExecutorInvoked, RunID: "r1", Superstep: 2, ExecutorID: "a"})

	t.Run("by type", func(t *testing.T) {
		got := b.GetHistoryWithFilter("r1", HistoryFilter{Type: TypeExecutorCompleted})
		if len(got) != 1 || got[0].ExecutorID != "b" {
			t.Errorf("filter by type returned %+v", got)
		}
	})

	t.Run("by executor", func(t *testing.T) {
		got := b.GetHistoryWithFilter("r1", HistoryFilter{ExecutorID: "a"})
		if len(got) != 2 {
			t.Errorf("filter by executor returned %d events, want 2", len(got))
		}
	})

	t.Run("by superstep range", func(t *testing.T) {
		lo, hi := 1, 1
		got := b.GetHistoryWithFilter("r1", HistoryFilter{MinSuperstep: &lo, MaxSuperstep: &hi})
		if len(got) != 2 {
			t.Errorf("superstep range returned %d events, want 2", len(got))
		}
	})

	t.Run("combined", func(t *testing.T) {
		lo := 1
		got := b.GetHistoryWithFilter("r1", HistoryFilter{
			Type:         TypeExecutorInvoked,
			ExecutorID:   "a",
			MinSuperstep: &lo,
		})
		if len(got) != 1 || got[0].Superstep != 2 {
			t.Errorf("combined filter returned %+v", got)
		}
	})
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{Type: TypeWorkflowStatus, RunID: "r1"})
	b.Emit(Event{Type: TypeWorkflowStatus, RunID: "r2"})

	b.Clear("r1")
	if len(b.GetHistory("r1")) != 0 {
		t.Error("Clear(r1) left events behind")
	}
	if len(b.GetHistory("r2")) != 1 {
		t.Error("Clear(r1) touched r2")
	}

	b.Clear("")
	if len(b.GetHistory("r2")) != 0 {
		t.Error("Clear(\"\") left events behind")
	}
}

func TestBufferedEmitter_Concurrent(t *testing.T) {
	b := NewBufferedEmitter()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Emit(Event{Type: TypeExecutorInvoked, RunID: "shared"})
			}
		}()
	}
	wg.Wait()

	if got := len(b.GetHistory("shared")); got != 800 {
		t.Errorf("recorded %d events, want 800", got)
	}
}
