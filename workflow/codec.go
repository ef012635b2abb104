package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/dshills/stepflow-go/workflow/store"
)

// messageCodec serializes message payloads and shared-state values for
// checkpoints. Payloads are stored as {type, data} pairs against a type
// registry, so a resumed run restores the exact concrete Go types
// rather than generic JSON values (an int payload comes back as int,
// not float64).
//
// The registry is populated while the workflow is built: handler input
// types, declared output types, and Builder.RegisterMessageType
// prototypes, plus the primitive types below. Interface types are
// skipped; the concrete types of their implementations must be
// registered instead.
type messageCodec struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

func newMessageCodec() *messageCodec {
	c := &messageCodec{types: make(map[string]reflect.Type)}
	for _, proto := range []any{
		false, "", int(0), int32(0), int64(0), float32(0), float64(0),
		[]any(nil), []string(nil), []int(nil), map[string]any(nil),
		Aggregate(nil), Contribution{},
	} {
		// Registering distinct primitives cannot collide.
		_ = c.register(reflect.TypeOf(proto))
	}
	return c
}

// typeName derives the registry key for a type: package path plus name
// for named types, the Go syntax otherwise ("int", "[]string").
func typeName(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func (c *messageCodec) register(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("cannot register nil message type")
	}
	if t.Kind() == reflect.Interface {
		return nil
	}
	name := typeName(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.types[name]; ok {
		if existing != t {
			return fmt.Errorf("message type name %s is already registered to %s", name, existing)
		}
		return nil
	}
	c.types[name] = t
	return nil
}

func (c *messageCodec) registerPrototype(prototype any) error {
	if prototype == nil {
		return fmt.Errorf("cannot register nil message prototype")
	}
	return c.register(reflect.TypeOf(prototype))
}

// merge copies every registration from other into c.
func (c *messageCodec) merge(other *messageCodec) error {
	other.mu.RLock()
	types := make([]reflect.Type, 0, len(other.types))
	for _, t := range other.types {
		types = append(types, t)
	}
	other.mu.RUnlock()

	for _, t := range types {
		if err := c.register(t); err != nil {
			return err
		}
	}
	return nil
}

var aggregateTypeName = typeName(reflect.TypeOf(Aggregate(nil)))

// wireContribution is the serialized form of one fan-in contribution.
// The payload is encoded through the codec so its concrete type
// survives the round trip.
type wireContribution struct {
	Source  string      `json:"source"`
	Payload store.Value `json:"payload"`
}

// encode serializes a payload as a typed value. Encoding an unregistered
// type fails with an error naming the type.
func (c *messageCodec) encode(v any) (store.Value, error) {
	if v == nil {
		return store.Value{}, nil
	}

	if agg, ok := v.(Aggregate); ok {
		return c.encodeAggregate(agg)
	}

	t := reflect.TypeOf(v)
	name := typeName(t)
	c.mu.RLock()
	_, ok := c.types[name]
	c.mu.RUnlock()
	if !ok {
		return store.Value{}, fmt.Errorf(
			"message type %s is not registered for checkpointing; declare it with WithOutputTypes or RegisterMessageType", name)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return store.Value{}, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return store.Value{Type: name, Data: data}, nil
}

func (c *messageCodec) encodeAggregate(agg Aggregate) (store.Value, error) {
	wire := make([]wireContribution, len(agg))
	for i, contrib := range agg {
		payload, err := c.encode(contrib.Payload)
		if err != nil {
			return store.Value{}, err
		}
		wire[i] = wireContribution{Source: contrib.Source, Payload: payload}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return store.Value{}, fmt.Errorf("failed to encode aggregate: %w", err)
	}
	return store.Value{Type: aggregateTypeName, Data: data}, nil
}

// decode restores a typed value saved by encode.
func (c *messageCodec) decode(val store.Value) (any, error) {
	if val.Type == "" {
		return nil, nil
	}

	if val.Type == aggregateTypeName {
		return c.decodeAggregate(val)
	}

	c.mu.RLock()
	t, ok := c.types[val.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("message type %s is not registered; the workflow cannot restore this checkpoint", val.Type)
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(val.Data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", val.Type, err)
	}
	return ptr.Elem().Interface(), nil
}

func (c *messageCodec) decodeAggregate(val store.Value) (any, error) {
	var wire []wireContribution
	if err := json.Unmarshal(val.Data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate: %w", err)
	}

	agg := make(Aggregate, len(wire))
	for i, wc := range wire {
		payload, err := c.decode(wc.Payload)
		if err != nil {
			return nil, err
		}
		agg[i] = Contribution{Source: wc.Source, Payload: payload}
	}
	return agg, nil
}

// encodeStateMap serializes a shared-state export.
func (c *messageCodec) encodeStateMap(values map[string]any) (map[string]store.Value, error) {
	out := make(map[string]store.Value, len(values))
	for k, v := range values {
		val, err := c.encode(v)
		if err != nil {
			return nil, fmt.Errorf("shared state key %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// encodeValues serializes yielded outputs in order.
func (c *messageCodec) encodeValues(values []any) ([]store.Value, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]store.Value, len(values))
	for i, v := range values {
		val, err := c.encode(v)
		if err != nil {
			return nil, fmt.Errorf("yielded output %d: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}

// decodeValues restores yielded outputs saved by encodeValues.
func (c *messageCodec) decodeValues(values []store.Value) ([]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]any, len(values))
	for i, val := range values {
		v, err := c.decode(val)
		if err != nil {
			return nil, fmt.Errorf("yielded output %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// decodeStateMap restores a shared-state export.
func (c *messageCodec) decodeStateMap(values map[string]store.Value) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, val := range values {
		v, err := c.decode(val)
		if err != nil {
			return nil, fmt.Errorf("shared state key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
