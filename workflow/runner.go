package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/stepflow-go/workflow/emit"
)

// Status describes where a Runner is in its lifecycle.
type Status int

const (
	// StatusIdle means no run has started.
	StatusIdle Status = iota

	// StatusRunning means a run is in progress.
	StatusRunning

	// StatusConverged means the last run completed with an empty queue.
	StatusConverged

	// StatusNotConverged means the last run hit the iteration cap with
	// messages still queued.
	StatusNotConverged

	// StatusFailed means the last run terminated with an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusConverged:
		return "converged"
	case StatusNotConverged:
		return "not_converged"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// RunResult is the outcome of a converged run.
type RunResult struct {
	// RunID identifies the run.
	RunID string

	// Outputs holds every value yielded via YieldOutput, in superstep
	// order and delivery order within a superstep.
	Outputs []any

	// Iterations is the number of supersteps executed.
	Iterations int

	// FinalState is the committed shared state at convergence.
	FinalState map[string]any
}

// Runner drives one workflow run at a time through the superstep loop:
//
//  1. Drain the queue of messages emitted in the previous superstep.
//  2. Group messages by target executor, aggregating fan-in batches.
//  3. Invoke target executors concurrently, one goroutine per executor;
//     several deliveries to the same executor run sequentially in batch
//     order.
//  4. On any handler error, discard staged state and fail the run; no
//     handler is retried.
//  5. On success, commit staged state atomically, then apply handler
//     effects: yield outputs, publish events, route sent messages into
//     the next superstep's queue.
//  6. Converge when the queue is empty; fail with ErrNotConverged when
//     the iteration cap is reached first.
//
// A Runner is not re-entrant: a second Run or RunStream while one is in
// progress returns ErrAlreadyRunning. Run the same Workflow concurrently
// through separate Runners.
type Runner struct {
	wf  *Workflow
	cfg runnerConfig

	running atomic.Bool
	status  atomic.Int32

	// Run state below is owned by the active run.
	state     *SharedState
	runID     string
	iteration int
	outputs   []any
}

// NewRunner creates a Runner for a built workflow.
func NewRunner(wf *Workflow, opts ...Option) (*Runner, error) {
	if wf == nil {
		return nil, &WorkflowError{Message: "workflow cannot be nil"}
	}

	cfg := runnerConfig{
		maxIterations: DefaultMaxIterations,
		emitter:       emit.NewNullEmitter(),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Runner{wf: wf, cfg: cfg}, nil
}

// Status reports the runner's lifecycle state.
func (r *Runner) Status() Status {
	return Status(r.status.Load())
}

func (r *Runner) setStatus(s Status) {
	r.status.Store(int32(s))
}

// Run executes the workflow to completion with the given input
// delivered to the start executor, and returns the collected outputs.
//
// Returns ErrAlreadyRunning if a run is already in progress on this
// Runner.
func (r *Runner) Run(ctx context.Context, input any) (*RunResult, error) {
	if input == nil {
		return nil, &WorkflowError{
			Message: "workflow input cannot be nil",
			Code:    CodeInvalidOption,
		}
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.beginRun()
	queue := []Envelope{{TargetID: r.wf.StartID(), Payload: input}}
	return r.run(ctx, queue, 0, nil)
}

// RunStream executes the workflow like Run but returns the event stream
// instead of blocking. The channel delivers every observability event
// of the run and closes when the run finishes; a terminal failure
// appears as a workflow_error event before the close.
//
// Returns ErrAlreadyRunning if a run is already in progress on this
// Runner.
func (r *Runner) RunStream(ctx context.Context, input any) (<-chan emit.Event, error) {
	if input == nil {
		return nil, &WorkflowError{
			Message: "workflow input cannot be nil",
			Code:    CodeInvalidOption,
		}
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	r.beginRun()
	queue := []Envelope{{TargetID: r.wf.StartID(), Payload: input}}

	events := make(chan emit.Event, 64)
	go func() {
		// Release the running guard before the channel closes so a
		// caller draining the stream can start the next run immediately.
		defer close(events)
		defer r.running.Store(false)
		_, _ = r.run(ctx, queue, 0, events)
	}()
	return events, nil
}

// beginRun resets per-run state. Callers hold the running guard.
func (r *Runner) beginRun() {
	r.state = NewSharedState()
	r.outputs = nil
	r.iteration = 0
	r.runID = r.cfg.runID
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
}

// run drives the superstep loop from the given queue and iteration.
// stream, when non-nil, receives every emitted event.
func (r *Runner) run(ctx context.Context, queue []Envelope, iteration int, stream chan<- emit.Event) (*RunResult, error) {
	r.setStatus(StatusRunning)
	r.iteration = iteration
	r.state.setInternal("run_id", r.runID)
	r.state.setInternal("workflow", r.wf.Name())

	emitEvent := func(ev emit.Event) {
		ev.RunID = r.runID
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		r.cfg.emitter.Emit(ev)
		if stream != nil {
			select {
			case stream <- ev:
			case <-ctx.Done():
			}
		}
	}

	emitEvent(emit.Event{
		Type:      emit.TypeWorkflowStatus,
		Superstep: iteration,
		Meta:      map[string]any{"status": StatusRunning.String()},
	})

	fail := func(err error) (*RunResult, error) {
		r.setStatus(StatusFailed)
		emitEvent(emit.Event{
			Type:      emit.TypeWorkflowError,
			Superstep: r.iteration,
			Err:       err,
		})
		return nil, err
	}

	for {
		if len(queue) == 0 {
			r.setStatus(StatusConverged)
			emitEvent(emit.Event{
				Type:      emit.TypeWorkflowStatus,
				Superstep: r.iteration,
				Meta: map[string]any{
					"status":     StatusConverged.String(),
					"iterations": r.iteration,
				},
			})
			return &RunResult{
				RunID:      r.runID,
				Outputs:    r.outputs,
				Iterations: r.iteration,
				FinalState: r.state.Export(),
			}, nil
		}

		if r.iteration >= r.cfg.maxIterations {
			r.setStatus(StatusNotConverged)
			err := fmt.Errorf("workflow did not converge after %d iterations: %w", r.iteration, ErrNotConverged)
			emitEvent(emit.Event{
				Type:      emit.TypeWorkflowError,
				Superstep: r.iteration,
				Err:       err,
			})
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		next, err := r.superstep(ctx, queue, emitEvent)
		if err != nil {
			return fail(err)
		}
		queue = next

		if r.cfg.checkpoints != nil {
			cpID, err := r.saveCheckpoint(ctx, queue)
			if err != nil {
				return fail(fmt.Errorf("checkpoint save failed: %w", err))
			}
			emitEvent(emit.Event{
				Type:      emit.TypeCheckpointSaved,
				Superstep: r.iteration - 1,
				Meta:      map[string]any{"checkpoint_id": cpID},
			})
			if r.cfg.metrics != nil {
				r.cfg.metrics.IncrementCheckpointsSaved(r.wf.Name())
			}
		}
	}
}

// superstep executes one full cycle: drain, deliver, commit or discard,
// route. It returns the next superstep's queue.
func (r *Runner) superstep(ctx context.Context, batch []Envelope, emitEvent func(emit.Event)) ([]Envelope, error) {
	start := time.Now()

	deliveries, err := r.buildDeliveries(batch)
	if err != nil {
		r.recordSuperstep(start, "error")
		return nil, err
	}

	if r.cfg.metrics != nil {
		r.cfg.metrics.UpdateInflightHandlers(len(deliveries))
	}

	// Distinct executors run concurrently; deliveries to the same
	// executor run sequentially in batch order, so executor-internal
	// state needs no locking against same-superstep deliveries.
	byExecutor := make(map[string][]*delivery)
	var executorOrder []string
	for _, d := range deliveries {
		id := d.executor.ID()
		if _, seen := byExecutor[id]; !seen {
			executorOrder = append(executorOrder, id)
		}
		byExecutor[id] = append(byExecutor[id], d)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range executorOrder {
		ds := byExecutor[id]
		g.Go(func() error {
			for _, d := range ds {
				if err := r.dispatch(gctx, d, emitEvent); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err = g.Wait()

	if r.cfg.metrics != nil {
		r.cfg.metrics.UpdateInflightHandlers(0)
	}

	if err != nil {
		r.state.discard()
		r.recordSuperstep(start, "error")
		return nil, err
	}

	r.state.commit()
	r.recordSuperstep(start, "success")

	next, err := r.applyEffects(deliveries, emitEvent)
	if err != nil {
		return nil, err
	}

	r.iteration++
	r.state.setInternal("superstep", r.iteration)

	emitEvent(emit.Event{
		Type:      emit.TypeSuperstepCompleted,
		Superstep: r.iteration - 1,
		Meta:      map[string]any{"queued": len(next)},
	})
	if r.cfg.metrics != nil {
		r.cfg.metrics.UpdateQueueDepth(len(next))
	}

	return next, nil
}

func (r *Runner) recordSuperstep(start time.Time, status string) {
	if r.cfg.metrics != nil {
		r.cfg.metrics.RecordSuperstepLatency(r.wf.Name(), time.Since(start), status)
	}
}

// delivery is one handler invocation within a superstep.
type delivery struct {
	executor Executor
	payload  any
	sources  []string
	hc       *HandlerContext
}

// buildDeliveries groups a drained batch by target executor. Targets
// with a fan-in edge group receive Aggregate payloads collecting the
// batch's messages from member sources; everything else is delivered
// one message at a time in batch order.
func (r *Runner) buildDeliveries(batch []Envelope) ([]*delivery, error) {
	var targetOrder []string
	byTarget := make(map[string][]Envelope)
	for _, env := range batch {
		if _, seen := byTarget[env.TargetID]; !seen {
			targetOrder = append(targetOrder, env.TargetID)
		}
		byTarget[env.TargetID] = append(byTarget[env.TargetID], env)
	}

	var deliveries []*delivery
	for _, targetID := range targetOrder {
		exec, ok := r.wf.Executor(targetID)
		if !ok {
			return nil, &WorkflowError{
				Message: "message addressed to unknown executor: " + targetID,
				Code:    CodeExecutorNotFound,
			}
		}

		envs := byTarget[targetID]
		group := r.wf.fanInGroupFor(targetID)
		if group == nil {
			for _, env := range envs {
				deliveries = append(deliveries, r.newDelivery(exec, env.Payload, sourceList(env.SourceID)))
			}
			continue
		}

		var rest []Envelope
		bySource := make(map[string][]Envelope)
		var sourceIDs []string
		for _, env := range envs {
			if !group.fanInMember(env.SourceID) {
				rest = append(rest, env)
				continue
			}
			if _, seen := bySource[env.SourceID]; !seen {
				sourceIDs = append(sourceIDs, env.SourceID)
			}
			bySource[env.SourceID] = append(bySource[env.SourceID], env)
		}
		sort.Strings(sourceIDs)

		// Round-robin rounds: round k collects each contributing
		// source's k-th message, so every aggregate carries at most
		// one contribution per source.
		for round := 0; ; round++ {
			var agg Aggregate
			var contributors []string
			for _, src := range sourceIDs {
				msgs := bySource[src]
				if round < len(msgs) {
					agg = append(agg, Contribution{Source: src, Payload: msgs[round].Payload})
					contributors = append(contributors, src)
				}
			}
			if len(agg) == 0 {
				break
			}
			deliveries = append(deliveries, r.newDelivery(exec, agg, contributors))
		}

		for _, env := range rest {
			deliveries = append(deliveries, r.newDelivery(exec, env.Payload, sourceList(env.SourceID)))
		}
	}

	return deliveries, nil
}

func sourceList(sourceID string) []string {
	if sourceID == "" {
		return nil
	}
	return []string{sourceID}
}

func (r *Runner) newDelivery(exec Executor, payload any, sources []string) *delivery {
	return &delivery{
		executor: exec,
		payload:  payload,
		sources:  sources,
		hc:       newHandlerContext(exec.ID(), sources, r.iteration, r.runID, r.state),
	}
}

// dispatch invokes one handler, enforcing the configured timeout.
func (r *Runner) dispatch(ctx context.Context, d *delivery, emitEvent func(emit.Event)) error {
	executorID := d.executor.ID()

	if !d.executor.CanHandle(d.payload) {
		if r.cfg.metrics != nil {
			r.cfg.metrics.IncrementHandlerErrors(r.wf.Name(), executorID)
		}
		return &ExecutorError{
			ExecutorID: executorID,
			Message:    fmt.Sprintf("cannot handle message of type %T", d.payload),
			Cause:      ErrNoHandler,
		}
	}

	emitEvent(emit.Event{
		Type:       emit.TypeExecutorInvoked,
		Superstep:  r.iteration,
		ExecutorID: executorID,
		Meta:       map[string]any{"payload_type": fmt.Sprintf("%T", d.payload)},
	})

	hctx := ctx
	if r.cfg.handlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, r.cfg.handlerTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := d.executor.Handle(hctx, d.payload, d.hc); err != nil {
		if r.cfg.metrics != nil {
			r.cfg.metrics.IncrementHandlerErrors(r.wf.Name(), executorID)
		}
		var ee *ExecutorError
		if errors.As(err, &ee) {
			return err
		}
		return &ExecutorError{
			ExecutorID: executorID,
			Message:    "handler failed",
			Cause:      err,
		}
	}

	emitEvent(emit.Event{
		Type:       emit.TypeExecutorCompleted,
		Superstep:  r.iteration,
		ExecutorID: executorID,
		Meta:       map[string]any{"latency_ms": time.Since(start).Milliseconds()},
	})
	return nil
}

// applyEffects collects staged handler effects in delivery order:
// outputs surface as workflow_output events and RunResult entries,
// custom events publish to the emitter, and sends route into the next
// superstep's queue.
func (r *Runner) applyEffects(deliveries []*delivery, emitEvent func(emit.Event)) ([]Envelope, error) {
	var next []Envelope
	for _, d := range deliveries {
		sends, outputs, events := d.hc.takeEffects()

		for _, out := range outputs {
			r.outputs = append(r.outputs, out)
			emitEvent(emit.Event{
				Type:       emit.TypeWorkflowOutput,
				Superstep:  r.iteration,
				ExecutorID: d.executor.ID(),
				Data:       out,
			})
		}
		for _, ev := range events {
			emitEvent(ev)
		}

		for _, send := range sends {
			routed, err := r.route(d.executor.ID(), send, emitEvent)
			if err != nil {
				return nil, err
			}
			next = append(next, routed...)
		}
	}
	return next, nil
}

// route resolves one staged send into queue envelopes. Explicitly
// addressed sends bypass edge evaluation; everything else consults the
// source's edge groups in declaration order, every matching group
// delivering per its own semantics. A message matching no group is
// dropped with a workflow_status event.
func (r *Runner) route(sourceID string, send sendRequest, emitEvent func(emit.Event)) ([]Envelope, error) {
	if send.target != "" {
		if _, ok := r.wf.Executor(send.target); !ok {
			return nil, &WorkflowError{
				Message: "message addressed to unknown executor: " + send.target,
				Code:    CodeExecutorNotFound,
			}
		}
		r.countRouted("addressed", 1)
		return []Envelope{{
			SourceID:  sourceID,
			TargetID:  send.target,
			Payload:   send.payload,
			Superstep: r.iteration,
		}}, nil
	}

	var next []Envelope
	enqueue := func(targetID string) {
		next = append(next, Envelope{
			SourceID:  sourceID,
			TargetID:  targetID,
			Payload:   send.payload,
			Superstep: r.iteration,
		})
	}

	matched := false
	for _, g := range r.wf.edgesFrom(sourceID) {
		switch g.kind {
		case edgeDirect:
			if g.when == nil || g.when(send.payload) {
				enqueue(g.targets[0])
				matched = true
				r.countRouted(g.kind.String(), 1)
			}
		case edgeFanOut:
			for _, t := range g.targets {
				enqueue(t)
			}
			matched = true
			r.countRouted(g.kind.String(), len(g.targets))
		case edgeFanIn:
			enqueue(g.targets[0])
			matched = true
			r.countRouted(g.kind.String(), 1)
		case edgeSwitch:
			target, err := resolveSwitch(g, sourceID, send.payload)
			if err != nil {
				return nil, err
			}
			enqueue(target)
			matched = true
			r.countRouted(g.kind.String(), 1)
		}
	}

	if !matched {
		emitEvent(emit.Event{
			Type:       emit.TypeWorkflowStatus,
			Superstep:  r.iteration,
			ExecutorID: sourceID,
			Meta: map[string]any{
				"reason":       "message dropped: no matching route",
				"payload_type": fmt.Sprintf("%T", send.payload),
			},
		})
	}
	return next, nil
}

func resolveSwitch(g *EdgeGroup, sourceID string, payload any) (string, error) {
	for _, c := range g.cases {
		if c.When(payload) {
			return c.Target, nil
		}
	}
	if g.defaultTarget != "" {
		return g.defaultTarget, nil
	}
	return "", fmt.Errorf("switch from %s: %w (payload type %T)", sourceID, ErrNoRoute, payload)
}

func (r *Runner) countRouted(kind string, n int) {
	if r.cfg.metrics != nil {
		r.cfg.metrics.AddMessagesRouted(r.wf.Name(), kind, n)
	}
}
