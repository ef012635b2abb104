package emit

// NullEmitter implements Emitter by discarding all events.
//
// It is the default emitter when none is configured, for runs where
// observability overhead is unwanted.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that discards every event.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}
