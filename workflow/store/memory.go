package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process workflows
//   - Short-lived workflows where persistence isn't required
//
// MemStore is thread-safe. Data is lost when the process terminates;
// use SQLiteStore, MySQLStore, or FileStore for durable checkpoints.
type MemStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	order       []string // checkpoint IDs in save order
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

// Save stores a checkpoint. Returns ErrDuplicateID when the ID exists.
func (m *MemStore) Save(ctx context.Context, cp Checkpoint) error {
	clone, err := cloneCheckpoint(cp)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.checkpoints[cp.ID]; exists {
		return ErrDuplicateID
	}
	m.checkpoints[cp.ID] = clone
	m.order = append(m.order, cp.ID)
	return nil
}

// Get retrieves a checkpoint by ID.
func (m *MemStore) Get(ctx context.Context, id string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cloneCheckpoint(cp)
}

// List returns the checkpoints saved for a workflow, oldest first.
func (m *MemStore) List(ctx context.Context, workflowName string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Checkpoint{}
	for _, id := range m.order {
		cp := m.checkpoints[id]
		if cp.WorkflowName != workflowName {
			continue
		}
		clone, err := cloneCheckpoint(cp)
		if err != nil {
			return nil, err
		}
		result = append(result, clone)
	}
	return result, nil
}
