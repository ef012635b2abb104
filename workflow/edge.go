package workflow

// Predicate evaluates a message payload to decide whether an edge should
// carry it.
//
// Predicates enable conditional routing based on message content. They
// should be pure functions (deterministic, no side effects): the engine
// may evaluate them in any order, and they are not part of the workflow
// fingerprint.
type Predicate func(msg any) bool

// SwitchCase pairs a predicate with a destination for switch-style
// routing. Cases are evaluated in declaration order; the first match
// wins.
type SwitchCase struct {
	// Target is the destination executor ID.
	Target string

	// When decides whether this case matches the message.
	When Predicate
}

// edgeKind discriminates the routing behavior of an EdgeGroup.
type edgeKind int

const (
	// edgeDirect carries a message from one source to one target,
	// optionally gated by a predicate.
	edgeDirect edgeKind = iota

	// edgeFanOut duplicates a message from one source to every target.
	edgeFanOut

	// edgeFanIn collects messages from several sources into a single
	// Aggregate delivered to one target.
	edgeFanIn

	// edgeSwitch routes a message to the first matching case, or to the
	// default target when no case matches.
	edgeSwitch
)

func (k edgeKind) String() string {
	switch k {
	case edgeDirect:
		return "direct"
	case edgeFanOut:
		return "fan-out"
	case edgeFanIn:
		return "fan-in"
	case edgeSwitch:
		return "switch"
	}
	return "unknown"
}

// EdgeGroup is a routing rule attached to one or more source executors.
// Groups are created through the Builder and are immutable once the
// workflow is built.
type EdgeGroup struct {
	kind          edgeKind
	sources       []string
	targets       []string
	when          Predicate
	cases         []SwitchCase
	defaultTarget string
}

// Contribution is one source's payload within an Aggregate.
type Contribution struct {
	Source  string `json:"source"`
	Payload any    `json:"payload"`
}

// Aggregate is the message type delivered to a fan-in target. It holds
// one Contribution per distinct source that emitted toward the target in
// the same superstep, ordered by source ID.
//
// Aggregation never spans supersteps: whichever sources contributed in
// the batch form the aggregate. A source that emits several messages to
// the same fan-in target in one superstep produces several aggregates,
// grouped round-robin so each still carries at most one entry per source.
type Aggregate []Contribution

// Payloads returns the contribution payloads in source order.
func (a Aggregate) Payloads() []any {
	out := make([]any, len(a))
	for i, c := range a {
		out[i] = c.Payload
	}
	return out
}
