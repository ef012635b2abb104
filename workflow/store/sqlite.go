package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It persists checkpoints in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process workflows requiring durable checkpoints
//   - Prototyping before migrating to a server database
//
// SQLiteStore uses WAL mode for concurrent reads and a single writer
// connection.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./checkpoints.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically creates the database file and schema,
// enables WAL mode, and configures lock timeouts.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./checkpoints.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	st := &SQLiteStore{db: db, path: path}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			run_id TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow ON workflow_checkpoints(workflow_name, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON workflow_checkpoints(run_id)",
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts a checkpoint row. Returns ErrDuplicateID when the ID
// already exists. The write lock covers the duplicate check and the
// insert together, so concurrent saves of one ID cannot both pass the
// check.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workflow_checkpoints WHERE id = ?", cp.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check checkpoint ID: %w", err)
	}
	if exists > 0 {
		return ErrDuplicateID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints
			(id, workflow_name, run_id, fingerprint, iteration, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.WorkflowName, cp.RunID, cp.Fingerprint, cp.Iteration,
		string(payload), cp.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Get retrieves a checkpoint row by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, fmt.Errorf("store is closed")
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM workflow_checkpoints WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode checkpoint %s: %w", id, err)
	}
	return cp, nil
}

// List retrieves a workflow's checkpoints in creation order.
func (s *SQLiteStore) List(ctx context.Context, workflowName string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM workflow_checkpoints
		WHERE workflow_name = ?
		ORDER BY created_at ASC, id ASC`, workflowName)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	result := []Checkpoint{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		var cp Checkpoint
		if err := json.Unmarshal([]byte(payload), &cp); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		result = append(result, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return result, nil
}

// Close releases the database connection. The store cannot be used
// after Close.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
