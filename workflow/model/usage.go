package model

import (
	"fmt"
	"sync"
	"time"
)

// UsageRecord is one recorded LLM invocation.
type UsageRecord struct {
	// Model is the model identifier, e.g. "gpt-4o-mini".
	Model string

	// ExecutorID is the workflow executor that made the call, when
	// known.
	ExecutorID string

	// Usage is the token consumption of the call.
	Usage Usage

	// Timestamp is when the call was recorded.
	Timestamp time.Time
}

// UsageTracker aggregates token usage across the LLM calls of a run,
// per model and in total. All methods are safe for concurrent use;
// agents of one superstep may record in parallel.
//
// Usage:
//
//	tracker := model.NewUsageTracker("run-123")
//	tracker.Record("gpt-4o-mini", "writer", model.Usage{InputTokens: 900, OutputTokens: 120})
//	total := tracker.Total()
type UsageTracker struct {
	runID string

	mu      sync.RWMutex
	records []UsageRecord
	byModel map[string]Usage
	total   Usage
}

// NewUsageTracker creates an empty tracker for a run.
func NewUsageTracker(runID string) *UsageTracker {
	return &UsageTracker{
		runID:   runID,
		byModel: make(map[string]Usage),
	}
}

// RunID returns the run this tracker belongs to.
func (t *UsageTracker) RunID() string {
	return t.runID
}

// Record adds one call's token usage. executorID may be empty when the
// call was made outside a workflow executor.
func (t *UsageTracker) Record(modelName, executorID string, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, UsageRecord{
		Model:      modelName,
		ExecutorID: executorID,
		Usage:      usage,
		Timestamp:  time.Now(),
	})
	t.byModel[modelName] = t.byModel[modelName].Add(usage)
	t.total = t.total.Add(usage)
}

// Total returns the cumulative usage across all recorded calls.
func (t *UsageTracker) Total() Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// ByModel returns the cumulative usage attributed to each model. The
// returned map is a copy.
func (t *UsageTracker) ByModel() map[string]Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Usage, len(t.byModel))
	for m, u := range t.byModel {
		out[m] = u
	}
	return out
}

// Records returns every recorded call in chronological order. The
// returned slice is a copy.
func (t *UsageTracker) Records() []UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]UsageRecord, len(t.records))
	copy(out, t.records)
	return out
}

// CallCount returns how many calls have been recorded.
func (t *UsageTracker) CallCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Reset clears all recorded data.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = nil
	t.byModel = make(map[string]Usage)
	t.total = Usage{}
}

// String returns a one-line summary.
func (t *UsageTracker) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return fmt.Sprintf("UsageTracker{RunID: %s, Calls: %d, InputTokens: %d, OutputTokens: %d}",
		t.runID, len(t.records), t.total.InputTokens, t.total.OutputTokens)
}
