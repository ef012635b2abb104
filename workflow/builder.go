package workflow

import "fmt"

// Builder assembles a Workflow: executors, the start executor, edge
// groups, and message type registrations. Configuration errors are
// reported eagerly from each call, and Build performs the final
// validation before producing an immutable Workflow.
//
// Example:
//
//	b := workflow.NewBuilder("review")
//	if err := b.AddExecutor(writer); err != nil {
//	    return err
//	}
//	if err := b.AddExecutor(judge); err != nil {
//	    return err
//	}
//	if err := b.StartAt("writer"); err != nil {
//	    return err
//	}
//	if err := b.Connect("writer", "judge"); err != nil {
//	    return err
//	}
//	wf, err := b.Build()
type Builder struct {
	name       string
	executors  []Executor
	index      map[string]int
	edges      []*EdgeGroup
	start      string
	prototypes []any
}

// NewBuilder creates a Builder for a workflow with the given name. The
// name keys checkpoint listings and must be non-empty by Build time.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		index: make(map[string]int),
	}
}

// AddExecutor registers an executor. Executor IDs must be unique within
// the workflow.
func (b *Builder) AddExecutor(exec Executor) error {
	if exec == nil {
		return &WorkflowError{Message: "executor cannot be nil"}
	}
	id := exec.ID()
	if id == "" {
		return &WorkflowError{
			Message: "executor ID cannot be empty",
			Code:    CodeEmptyExecutorID,
		}
	}
	if _, exists := b.index[id]; exists {
		return &WorkflowError{
			Message: "duplicate executor ID: " + id,
			Code:    CodeDuplicateExecutor,
		}
	}

	b.index[id] = len(b.executors)
	b.executors = append(b.executors, exec)
	return nil
}

// StartAt sets the executor that receives the initial workflow input.
// The executor must have been registered via AddExecutor.
func (b *Builder) StartAt(id string) error {
	if id == "" {
		return &WorkflowError{Message: "start executor ID cannot be empty"}
	}
	if _, exists := b.index[id]; !exists {
		return &WorkflowError{
			Message: "start executor does not exist: " + id,
			Code:    CodeExecutorNotFound,
		}
	}

	b.start = id
	return nil
}

func (b *Builder) requireExecutor(id, role string) error {
	if id == "" {
		return &WorkflowError{
			Message: role + " executor ID cannot be empty",
			Code:    CodeInvalidEdge,
		}
	}
	if _, exists := b.index[id]; !exists {
		return &WorkflowError{
			Message: role + " executor does not exist: " + id,
			Code:    CodeExecutorNotFound,
		}
	}
	return nil
}

// Connect creates an unconditional direct edge from one executor to
// another. Self-edges and cycles are permitted; termination comes from
// messages no longer being emitted, bounded by the runner's iteration
// cap.
func (b *Builder) Connect(from, to string) error {
	return b.connect(from, to, nil)
}

// ConnectWhen creates a direct edge gated by a predicate. The message
// is delivered only when the predicate returns true for its payload.
func (b *Builder) ConnectWhen(from, to string, when Predicate) error {
	if when == nil {
		return &WorkflowError{
			Message: "edge predicate cannot be nil; use Connect for unconditional edges",
			Code:    CodeInvalidEdge,
		}
	}
	return b.connect(from, to, when)
}

func (b *Builder) connect(from, to string, when Predicate) error {
	if err := b.requireExecutor(from, "source"); err != nil {
		return err
	}
	if err := b.requireExecutor(to, "target"); err != nil {
		return err
	}

	b.edges = append(b.edges, &EdgeGroup{
		kind:    edgeDirect,
		sources: []string{from},
		targets: []string{to},
		when:    when,
	})
	return nil
}

// FanOut creates an edge group delivering each message from the source
// to every target.
func (b *Builder) FanOut(from string, targets ...string) error {
	if err := b.requireExecutor(from, "source"); err != nil {
		return err
	}
	if len(targets) == 0 {
		return &WorkflowError{
			Message: "fan-out requires at least one target",
			Code:    CodeEmptyParticipants,
		}
	}
	for _, t := range targets {
		if err := b.requireExecutor(t, "target"); err != nil {
			return err
		}
	}

	b.edges = append(b.edges, &EdgeGroup{
		kind:    edgeFanOut,
		sources: []string{from},
		targets: append([]string(nil), targets...),
	})
	return nil
}

// FanIn creates an edge group collecting messages from the sources into
// per-superstep Aggregate deliveries to the target. At most one fan-in
// group may collect into a given target.
func (b *Builder) FanIn(sources []string, target string) error {
	if len(sources) == 0 {
		return &WorkflowError{
			Message: "fan-in requires at least one source",
			Code:    CodeEmptyParticipants,
		}
	}
	for _, s := range sources {
		if err := b.requireExecutor(s, "source"); err != nil {
			return err
		}
	}
	if err := b.requireExecutor(target, "target"); err != nil {
		return err
	}
	for _, g := range b.edges {
		if g.kind == edgeFanIn && g.targets[0] == target {
			return &WorkflowError{
				Message: "fan-in target already has a collecting edge group: " + target,
				Code:    CodeInvalidEdge,
			}
		}
	}

	b.edges = append(b.edges, &EdgeGroup{
		kind:    edgeFanIn,
		sources: append([]string(nil), sources...),
		targets: []string{target},
	})
	return nil
}

// Switch creates an edge group routing each message to the first case
// whose predicate matches. When no case matches, the message goes to
// defaultTarget; with an empty defaultTarget an unmatched message is a
// runtime routing error.
func (b *Builder) Switch(from string, cases []SwitchCase, defaultTarget string) error {
	if err := b.requireExecutor(from, "source"); err != nil {
		return err
	}
	if len(cases) == 0 {
		return &WorkflowError{
			Message: "switch requires at least one case",
			Code:    CodeEmptyParticipants,
		}
	}
	for i, c := range cases {
		if c.When == nil {
			return &WorkflowError{
				Message: fmt.Sprintf("switch case %d has a nil predicate", i),
				Code:    CodeInvalidEdge,
			}
		}
		if err := b.requireExecutor(c.Target, "case target"); err != nil {
			return err
		}
	}
	if defaultTarget != "" {
		if err := b.requireExecutor(defaultTarget, "default target"); err != nil {
			return err
		}
	}

	b.edges = append(b.edges, &EdgeGroup{
		kind:          edgeSwitch,
		sources:       []string{from},
		cases:         append([]SwitchCase(nil), cases...),
		defaultTarget: defaultTarget,
		targets:       switchTargets(cases, defaultTarget),
	})
	return nil
}

// switchTargets collects the distinct destinations of a switch group in
// declaration order, for fingerprinting and diagnostics.
func switchTargets(cases []SwitchCase, defaultTarget string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cases {
		if !seen[c.Target] {
			seen[c.Target] = true
			out = append(out, c.Target)
		}
	}
	if defaultTarget != "" && !seen[defaultTarget] {
		out = append(out, defaultTarget)
	}
	return out
}

// RegisterMessageType declares a payload type for the checkpoint codec.
// Types already known from handler registrations do not need declaring;
// use this for payloads only produced dynamically.
func (b *Builder) RegisterMessageType(prototype any) error {
	if prototype == nil {
		return &WorkflowError{
			Message: "message type prototype cannot be nil",
			Code:    CodeInvalidOption,
		}
	}
	b.prototypes = append(b.prototypes, prototype)
	return nil
}

// Build validates the assembled configuration and returns an immutable
// Workflow.
func (b *Builder) Build() (*Workflow, error) {
	if b.name == "" {
		return nil, &WorkflowError{
			Message: "workflow name cannot be empty",
			Code:    CodeInvalidOption,
		}
	}
	if len(b.executors) == 0 {
		return nil, &WorkflowError{
			Message: "workflow has no executors",
			Code:    CodeEmptyParticipants,
		}
	}
	if b.start == "" {
		return nil, &WorkflowError{
			Message: "workflow has no start executor; call StartAt",
			Code:    CodeNoStartExecutor,
		}
	}

	codec := newMessageCodec()
	for _, p := range b.prototypes {
		if err := codec.registerPrototype(p); err != nil {
			return nil, err
		}
	}
	for _, exec := range b.executors {
		if err := registerExecutorTypes(codec, exec); err != nil {
			return nil, err
		}
	}

	wf := &Workflow{
		name:      b.name,
		executors: append([]Executor(nil), b.executors...),
		index:     make(map[string]int, len(b.index)),
		edges:     append([]*EdgeGroup(nil), b.edges...),
		start:     b.index[b.start],
		codec:     codec,
	}
	for id, i := range b.index {
		wf.index[id] = i
	}
	return wf, nil
}

// codecContributor is implemented by executors that bring their own
// message type registrations, such as sub-workflows.
type codecContributor interface {
	contributeTypes(c *messageCodec) error
}

func registerExecutorTypes(codec *messageCodec, exec Executor) error {
	if he, ok := exec.(*HandlerExecutor); ok {
		for _, t := range he.inputTypes() {
			if err := codec.register(t); err != nil {
				return err
			}
		}
		for _, t := range he.outputTypes() {
			if err := codec.register(t); err != nil {
				return err
			}
		}
	}
	if cc, ok := exec.(codecContributor); ok {
		if err := cc.contributeTypes(codec); err != nil {
			return err
		}
	}
	return nil
}
