package workflow

import (
	"strings"
	"sync"
)

// deleteSentinel marks a pending key for removal at commit time.
type deleteSentinel struct{}

// SharedState is the mutable key-value store shared by every executor in
// a workflow run. Writes follow a staged commit protocol tied to the
// superstep cycle:
//
//   - Set and Delete stage changes into a pending buffer.
//   - Reads see pending changes layered over committed values, so a
//     handler observes its own writes immediately.
//   - After all handlers of a superstep return successfully, the engine
//     commits the pending buffer atomically. If any handler fails, the
//     buffer is discarded and committed state is untouched.
//
// All methods are safe for concurrent use; handlers within one superstep
// share a single instance. When two handlers stage a value for the same
// key in the same superstep, exactly one value survives the commit.
// Which one is unspecified.
//
// Keys beginning with "_" are reserved. Framework bookkeeping lives in a
// separate namespace that user operations never observe, and user writes
// to reserved keys are rejected with ErrReservedKey.
type SharedState struct {
	mu        sync.RWMutex
	committed map[string]any
	pending   map[string]any
	internal  map[string]any
}

// NewSharedState returns an empty SharedState.
func NewSharedState() *SharedState {
	return &SharedState{
		committed: make(map[string]any),
		pending:   make(map[string]any),
		internal:  make(map[string]any),
	}
}

func reservedKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// Get returns the value for key and whether it is present. Pending
// changes take precedence over committed values: a staged Set is
// visible, and a staged Delete reads as absent.
func (s *SharedState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.pending[key]; ok {
		if _, deleted := v.(deleteSentinel); deleted {
			return nil, false
		}
		return v, true
	}
	v, ok := s.committed[key]
	return v, ok
}

// Has reports whether key is present, with the same pending-over-committed
// precedence as Get.
func (s *SharedState) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stages a value for key in the pending buffer. The value becomes
// part of committed state only when the current superstep commits.
// Keys beginning with "_" are rejected with ErrReservedKey.
func (s *SharedState) Set(key string, value any) error {
	if reservedKey(key) {
		return ErrReservedKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = value
	return nil
}

// Delete stages removal of key. Deleting a key that is not present in
// either the pending or the committed view returns ErrKeyNotFound.
//
// A key that exists only in the pending buffer is removed immediately.
// A key that exists in committed state is marked for removal at commit.
func (s *SharedState) Delete(key string) error {
	if reservedKey(key) {
		return ErrReservedKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.pending[key]; ok {
		if _, deleted := v.(deleteSentinel); deleted {
			return ErrKeyNotFound
		}
		if _, inCommitted := s.committed[key]; inCommitted {
			s.pending[key] = deleteSentinel{}
		} else {
			delete(s.pending, key)
		}
		return nil
	}
	if _, ok := s.committed[key]; ok {
		s.pending[key] = deleteSentinel{}
		return nil
	}
	return ErrKeyNotFound
}

// commit folds the pending buffer into committed state. Staged values
// overwrite, staged deletes remove. The pending buffer is left empty.
func (s *SharedState) commit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.pending {
		if _, deleted := v.(deleteSentinel); deleted {
			delete(s.committed, k)
			continue
		}
		s.committed[k] = v
	}
	s.pending = make(map[string]any)
}

// discard drops the pending buffer without touching committed state.
func (s *SharedState) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]any)
}

// Export returns a copy of the committed view. Pending changes and
// framework bookkeeping are not included.
func (s *SharedState) Export() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.committed))
	for k, v := range s.committed {
		out[k] = v
	}
	return out
}

// Import merges values directly into committed state, bypassing the
// pending buffer. It is intended for restoring a checkpoint before a
// run begins.
func (s *SharedState) Import(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.committed[k] = v
	}
}

// setInternal records framework bookkeeping. Internal entries live in
// their own namespace and are invisible to Get, Has, and Export.
func (s *SharedState) setInternal(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.internal[key] = value
}

func (s *SharedState) internalValue(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.internal[key]
	return v, ok
}
