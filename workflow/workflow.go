package workflow

// Workflow is an immutable, validated executor graph produced by a
// Builder. Executors live in an arena indexed by ID; edges reference
// executors by ID only, so cycles are ordinary edges and need no
// special construction.
//
// A Workflow holds no run state. Concurrent runs of one Workflow are
// allowed, each through its own Runner.
type Workflow struct {
	name      string
	executors []Executor
	index     map[string]int
	edges     []*EdgeGroup
	start     int
	codec     *messageCodec
}

// Name returns the workflow's name.
func (w *Workflow) Name() string {
	return w.name
}

// StartID returns the ID of the start executor.
func (w *Workflow) StartID() string {
	return w.executors[w.start].ID()
}

// Executor returns the executor registered under id.
func (w *Workflow) Executor(id string) (Executor, bool) {
	i, ok := w.index[id]
	if !ok {
		return nil, false
	}
	return w.executors[i], true
}

// ExecutorIDs returns every executor ID in registration order.
func (w *Workflow) ExecutorIDs() []string {
	ids := make([]string, len(w.executors))
	for i, e := range w.executors {
		ids[i] = e.ID()
	}
	return ids
}

// startExecutor returns the workflow's entry executor.
func (w *Workflow) startExecutor() Executor {
	return w.executors[w.start]
}

// edgesFrom returns the edge groups leaving source, in declaration
// order.
func (w *Workflow) edgesFrom(sourceID string) []*EdgeGroup {
	var out []*EdgeGroup
	for _, g := range w.edges {
		for _, s := range g.sources {
			if s == sourceID {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// fanInGroupFor returns the fan-in group collecting into target, if
// any. The Builder guarantees at most one per target.
func (w *Workflow) fanInGroupFor(targetID string) *EdgeGroup {
	for _, g := range w.edges {
		if g.kind == edgeFanIn && len(g.targets) == 1 && g.targets[0] == targetID {
			return g
		}
	}
	return nil
}

// fanInMember reports whether sourceID contributes to the fan-in group.
func (g *EdgeGroup) fanInMember(sourceID string) bool {
	for _, s := range g.sources {
		if s == sourceID {
			return true
		}
	}
	return false
}
