package workflow

// Envelope is an addressed message traveling between executors. Messages
// emitted during one superstep are enqueued and delivered together at the
// start of the next.
type Envelope struct {
	// SourceID identifies the executor that emitted the message. The
	// engine sets it; for the initial input it is empty.
	SourceID string

	// TargetID is the explicit destination, if any. When empty the
	// message is routed through the edge groups leaving SourceID.
	TargetID string

	// Payload is the message value delivered to the target handler.
	Payload any

	// Superstep records the superstep in which the message was emitted.
	Superstep int
}
