package workflow

import (
	"sync"
	"time"

	"github.com/dshills/stepflow-go/workflow/emit"
)

// sendRequest is a message staged by a handler, collected by the engine
// after the superstep's handlers return.
type sendRequest struct {
	target  string // empty means route through edge groups
	payload any
}

// HandlerContext carries the per-invocation API surface handed to every
// handler. It exposes shared state and collects the handler's effects:
// messages to send, values to yield as workflow output, and custom
// events to publish.
//
// Effects are staged locally and applied by the engine only after all
// handlers in the superstep have returned successfully. A handler whose
// superstep fails has no visible effect.
//
// A HandlerContext is created per delivery and must not be retained
// after the handler returns.
type HandlerContext struct {
	executorID string
	sourceIDs  []string
	superstep  int
	runID      string
	state      *SharedState

	mu      sync.Mutex
	sends   []sendRequest
	outputs []any
	events  []emit.Event
}

func newHandlerContext(executorID string, sourceIDs []string, superstep int, runID string, state *SharedState) *HandlerContext {
	return &HandlerContext{
		executorID: executorID,
		sourceIDs:  sourceIDs,
		superstep:  superstep,
		runID:      runID,
		state:      state,
	}
}

// ExecutorID returns the ID of the executor being invoked.
func (hc *HandlerContext) ExecutorID() string {
	return hc.executorID
}

// SourceIDs returns the IDs of the executors whose messages produced
// this delivery. Empty for the initial workflow input; more than one
// entry for a fan-in aggregate.
func (hc *HandlerContext) SourceIDs() []string {
	out := make([]string, len(hc.sourceIDs))
	copy(out, hc.sourceIDs)
	return out
}

// Superstep returns the current superstep number (0-indexed).
func (hc *HandlerContext) Superstep() int {
	return hc.superstep
}

// RunID returns the identifier of the current run.
func (hc *HandlerContext) RunID() string {
	return hc.runID
}

// State returns the run's shared state. Writes stage into the pending
// buffer and commit with the superstep.
func (hc *HandlerContext) State() *SharedState {
	return hc.state
}

// SendMessage stages a message routed through the edge groups leaving
// this executor. Delivery happens in the next superstep.
func (hc *HandlerContext) SendMessage(payload any) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.sends = append(hc.sends, sendRequest{payload: payload})
}

// SendMessageTo stages a message addressed directly to the named
// executor, bypassing edge routing. Delivery happens in the next
// superstep.
func (hc *HandlerContext) SendMessageTo(targetID string, payload any) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.sends = append(hc.sends, sendRequest{target: targetID, payload: payload})
}

// YieldOutput stages a value as workflow output. Outputs are surfaced
// through workflow_output events and collected into the RunResult.
func (hc *HandlerContext) YieldOutput(value any) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.outputs = append(hc.outputs, value)
}

// AddEvent stages a custom observability event published through the
// run's emitter after the superstep's handlers return.
func (hc *HandlerContext) AddEvent(eventType string, data any) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.events = append(hc.events, emit.Event{
		Type:       eventType,
		RunID:      hc.runID,
		Superstep:  hc.superstep,
		ExecutorID: hc.executorID,
		Data:       data,
		Timestamp:  time.Now(),
	})
}

// takeEffects returns the staged effects and clears them.
func (hc *HandlerContext) takeEffects() (sends []sendRequest, outputs []any, events []emit.Event) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	sends, outputs, events = hc.sends, hc.outputs, hc.events
	hc.sends, hc.outputs, hc.events = nil, nil, nil
	return sends, outputs, events
}
