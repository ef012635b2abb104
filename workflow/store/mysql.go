package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// Designed for:
//   - Production workflows requiring durable checkpoints
//   - Deployments where several processes share one checkpoint store
//   - Audit trails over workflow runs
//
// MySQLStore uses connection pooling; rows are written once and never
// updated.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Never hardcode credentials in source. Use environment variables:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore(dsn)
//
// The store verifies connectivity and creates its schema on startup.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore{db: db}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			id VARCHAR(255) PRIMARY KEY,
			workflow_name VARCHAR(255) NOT NULL,
			run_id VARCHAR(255) NOT NULL,
			fingerprint VARCHAR(255) NOT NULL,
			iteration INT NOT NULL,
			payload JSON NOT NULL,
			created_at VARCHAR(64) NOT NULL,
			INDEX idx_checkpoints_workflow (workflow_name, created_at),
			INDEX idx_checkpoints_run (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// Save inserts a checkpoint row. Returns ErrDuplicateID when the ID
// already exists.
func (m *MySQLStore) Save(ctx context.Context, cp Checkpoint) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}

	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// The primary key is the duplicate check: other processes share
	// this table, so a pre-insert SELECT could not be authoritative.
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints
			(id, workflow_name, run_id, fingerprint, iteration, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.WorkflowName, cp.RunID, cp.Fingerprint, cp.Iteration,
		string(payload), cp.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Get retrieves a checkpoint row by ID.
func (m *MySQLStore) Get(ctx context.Context, id string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Checkpoint{}, fmt.Errorf("store is closed")
	}

	var payload string
	err := m.db.QueryRowContext(ctx,
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
func (m *MySQLStore) List(ctx context.Context, workflowName string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := m.db.QueryContext(ctx, `
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

// Close releases the connection pool. The store cannot be used after
// Close.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
