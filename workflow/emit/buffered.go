package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// It captures all events and provides query capabilities for execution
// history analysis. Events are organized by run ID for retrieval and
// filtering.
//
// All events are held in memory: for long-running deployments clear old
// runs periodically or use a persistent backend instead.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	runner, _ := workflow.NewRunner(wf, workflow.WithEmitter(emitter))
//	runner.Run(ctx, input)
//
//	outputs := emitter.GetHistoryWithFilter(runID, emit.HistoryFilter{
//	    Type: emit.TypeWorkflowOutput,
//	})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All fields are optional; set fields combine with AND logic.
type HistoryFilter struct {
	ExecutorID   string // filter by executor ID (empty = no filter)
	Type         string // filter by event type (empty = no filter)
	MinSuperstep *int   // minimum superstep (nil = no lower bound)
	MaxSuperstep *int   // maximum superstep (nil = no upper bound)
}

// NewBufferedEmitter creates an empty in-memory emitter. Safe for
// concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer under its run ID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory retrieves all events for a run in emission order. Returns
// an empty slice when the run is unknown. The returned slice is a copy.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter retrieves the events of a run matching the
// filter, in emission order. The returned slice is a copy.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if !matchesFilter(event, filter) {
			continue
		}
		result = append(result, event)
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.ExecutorID != "" && event.ExecutorID != filter.ExecutorID {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.MinSuperstep != nil && event.Superstep < *filter.MinSuperstep {
		return false
	}
	if filter.MaxSuperstep != nil && event.Superstep > *filter.MaxSuperstep {
		return false
	}
	return true
}

// Clear removes stored events. A non-empty runID clears only that run;
// an empty runID clears everything.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, runID)
	}
}
