package workflow

import (
	"context"
	"fmt"
	"reflect"
)

// Executor is a processing unit in a workflow. It receives messages
// routed to it by the engine, reads and stages shared state, and emits
// messages, outputs, and events through the HandlerContext.
//
// Most workflows use HandlerExecutor rather than implementing Executor
// directly. Custom implementations are useful for adapters such as
// WorkflowExecutor (nested workflows) and AgentExecutor.
type Executor interface {
	// ID returns the executor's unique identifier within the workflow.
	ID() string

	// CanHandle reports whether the executor accepts a message of this
	// payload's type. The engine consults it before dispatch; delivery
	// of an unhandled type fails the superstep.
	CanHandle(msg any) bool

	// Handle processes one delivered message. State changes staged
	// through hc remain pending until every handler in the superstep
	// has returned successfully.
	//
	// Within a superstep, Handle is never called concurrently on one
	// executor: the engine serializes deliveries per target, so fields
	// on the executor need no locking against sibling deliveries.
	Handle(ctx context.Context, msg any, hc *HandlerContext) error
}

// Stateful is an optional interface for executors that carry private
// state across supersteps. When checkpointing is enabled the engine
// calls SaveState after each superstep and LoadState on resume.
//
// Saved values round-trip through JSON: numeric values are restored as
// float64, and LoadState implementations must coerce accordingly.
type Stateful interface {
	// SaveState returns a JSON-serializable snapshot of private state.
	SaveState() (map[string]any, error)

	// LoadState restores private state from a snapshot produced by
	// SaveState.
	LoadState(state map[string]any) error
}

// HandlerFunc processes one message of type T.
//
// Type parameter T is the message payload type the handler accepts. The
// compiler enforces the signature; no runtime reflection over the
// function is needed.
type HandlerFunc[T any] func(ctx context.Context, msg T, hc *HandlerContext) error

// handlerEntry is one row of an executor's registration table.
type handlerEntry struct {
	typ reflect.Type
	fn  func(ctx context.Context, msg any, hc *HandlerContext) error
}

// HandlerExecutor is an Executor backed by an explicit registration
// table mapping message types to handlers. Handlers are registered with
// the free function On; message dispatch selects the handler whose
// registered type matches the payload.
//
// Example:
//
//	exec, err := NewHandlerExecutor("counter")
//	if err != nil {
//	    return err
//	}
//	err = On(exec, func(ctx context.Context, n int, hc *HandlerContext) error {
//	    hc.SendMessage(n + 1)
//	    return nil
//	})
type HandlerExecutor struct {
	id string

	// handlers maps a registered message type to its entry
	handlers map[reflect.Type]handlerEntry

	// order preserves registration order for interface matching
	order []reflect.Type

	// outputs lists declared output types for checkpoint registration
	outputs []reflect.Type
}

// NewHandlerExecutor creates an executor with an empty registration
// table. The ID must be non-empty; an empty ID is a configuration error
// reported immediately.
func NewHandlerExecutor(id string) (*HandlerExecutor, error) {
	if id == "" {
		return nil, &WorkflowError{
			Message: "executor ID cannot be empty",
			Code:    CodeEmptyExecutorID,
		}
	}
	return &HandlerExecutor{
		id:       id,
		handlers: make(map[reflect.Type]handlerEntry),
	}, nil
}

// handlerConfig collects per-registration options.
type handlerConfig struct {
	outputs []any
}

// HandlerOption configures a handler registration.
type HandlerOption func(*handlerConfig) error

// WithOutputTypes declares the payload types a handler may emit via
// SendMessage or YieldOutput. Declared types are registered with the
// checkpoint codec so saved messages restore with their exact concrete
// types. Pass zero-value prototypes:
//
//	On(exec, handleGuess, WithOutputTypes(Verdict{}, 0))
func WithOutputTypes(prototypes ...any) HandlerOption {
	return func(c *handlerConfig) error {
		for _, p := range prototypes {
			if p == nil {
				return &WorkflowError{
					Message: "output type prototype cannot be nil",
					Code:    CodeInvalidOption,
				}
			}
		}
		c.outputs = append(c.outputs, prototypes...)
		return nil
	}
}

// On registers fn as the handler for messages of type T on exec.
//
// Exactly one handler may be registered per message type; a duplicate
// registration returns ErrDuplicateHandler. T may be an interface type,
// in which case the handler accepts any payload implementing it.
//
// Registration is expected to happen before the workflow is built.
// On is a free function because Go methods cannot introduce type
// parameters.
func On[T any](exec *HandlerExecutor, fn HandlerFunc[T], opts ...HandlerOption) error {
	if fn == nil {
		return &WorkflowError{
			Message: "handler function cannot be nil",
			Code:    CodeInvalidOption,
		}
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if _, exists := exec.handlers[typ]; exists {
		return fmt.Errorf("%w: %s on executor %q", ErrDuplicateHandler, typ, exec.id)
	}

	var cfg handlerConfig
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return err
		}
	}

	exec.handlers[typ] = handlerEntry{
		typ: typ,
		fn: func(ctx context.Context, msg any, hc *HandlerContext) error {
			m, ok := msg.(T)
			if !ok {
				return &ExecutorError{
					ExecutorID: exec.id,
					Message:    fmt.Sprintf("message type %T does not match handler type %s", msg, typ),
					Cause:      ErrNoHandler,
				}
			}
			return fn(ctx, m, hc)
		},
	}
	exec.order = append(exec.order, typ)
	for _, p := range cfg.outputs {
		exec.outputs = append(exec.outputs, reflect.TypeOf(p))
	}
	return nil
}

// ID returns the executor's identifier.
func (e *HandlerExecutor) ID() string {
	return e.id
}

// CanHandle reports whether a handler is registered for the payload's
// type, either exactly or through a registered interface type.
func (e *HandlerExecutor) CanHandle(msg any) bool {
	_, ok := e.resolve(msg)
	return ok
}

// Handle dispatches msg to the matching registered handler.
func (e *HandlerExecutor) Handle(ctx context.Context, msg any, hc *HandlerContext) error {
	entry, ok := e.resolve(msg)
	if !ok {
		return &ExecutorError{
			ExecutorID: e.id,
			Message:    fmt.Sprintf("cannot handle message of type %T", msg),
			Cause:      ErrNoHandler,
		}
	}
	return entry.fn(ctx, msg, hc)
}

// resolve finds the handler entry for a payload. Exact type matches win;
// otherwise interface registrations are checked in registration order.
func (e *HandlerExecutor) resolve(msg any) (handlerEntry, bool) {
	t := reflect.TypeOf(msg)
	if t == nil {
		return handlerEntry{}, false
	}
	if entry, ok := e.handlers[t]; ok {
		return entry, true
	}
	for _, rt := range e.order {
		if rt.Kind() == reflect.Interface && t.Implements(rt) {
			return e.handlers[rt], true
		}
	}
	return handlerEntry{}, false
}

// inputTypes returns the registered message types in registration order.
func (e *HandlerExecutor) inputTypes() []reflect.Type {
	out := make([]reflect.Type, len(e.order))
	copy(out, e.order)
	return out
}

// outputTypes returns the declared output types in declaration order.
func (e *HandlerExecutor) outputTypes() []reflect.Type {
	out := make([]reflect.Type, len(e.outputs))
	copy(out, e.outputs)
	return out
}
