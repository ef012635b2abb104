package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore is a directory-backed implementation of Store. Each
// checkpoint is one JSON document named <id>.json.
//
// Designed for:
//   - Single-node deployments without a database
//   - Inspectable checkpoints (plain JSON on disk)
//
// Writes are atomic: the document is written to a temporary file and
// renamed into place, so a crash mid-write never leaves a partial
// checkpoint.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

// Save writes a checkpoint document. Returns ErrDuplicateID when a
// document for the ID already exists.
func (f *FileStore) Save(ctx context.Context, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(cp.ID)
	if _, err := os.Stat(path); err == nil {
		return ErrDuplicateID
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return nil
}

// Get reads a checkpoint document by ID.
func (f *FileStore) Get(ctx context.Context, id string) (Checkpoint, error) {
	data, err := os.ReadFile(f.path(id))
	if os.IsNotExist(err) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode checkpoint %s: %w", id, err)
	}
	return cp, nil
}

// List reads every checkpoint for a workflow, ordered by creation time.
func (f *FileStore) List(ctx context.Context, workflowName string) ([]Checkpoint, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	result := []Checkpoint{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		cp, err := f.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if cp.WorkflowName != workflowName {
			continue
		}
		result = append(result, cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
