package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCheckpointer is a single-file SQLite-backed Checkpointer: WAL mode,
// a single-writer connection pool, and a schema keyed by the Checkpointer
// contract's thread_id/checkpoint_id addressing.
type SQLiteCheckpointer struct {
	db  *sql.DB
	mu  sync.Mutex
	seq int64
}

func NewSQLiteCheckpointer(path string) (*SQLiteCheckpointer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	c := &SQLiteCheckpointer{db: db}
	if err := c.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return c, nil
}

func (c *SQLiteCheckpointer) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			parent_id TEXT,
			created_at TIMESTAMP NOT NULL,
			state_payload TEXT NOT NULL,
			metadata TEXT NOT NULL,
			seq INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, seq);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

func (c *SQLiteCheckpointer) Close() error {
	return c.db.Close()
}

func (c *SQLiteCheckpointer) Save(threadID string, state State, metadata map[string]any) (string, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	id := fmt.Sprintf("%s-%d", threadID, seq)

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}

	var parentID sql.NullString
	if prev, found, err := c.latest(threadID); err == nil && found {
		parentID = sql.NullString{String: prev.ID, Valid: true}
	}

	_, err = c.db.Exec(
		`INSERT INTO checkpoints (checkpoint_id, thread_id, parent_id, created_at, state_payload, metadata, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, threadID, parentID, time.Now(), string(stateJSON), string(metaJSON), seq,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *SQLiteCheckpointer) latest(threadID string) (*Checkpoint, bool, error) {
	row := c.db.QueryRow(
		`SELECT checkpoint_id, thread_id, parent_id, created_at, state_payload, metadata
		 FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID)
	return scanCheckpointRow(row)
}

func (c *SQLiteCheckpointer) Load(threadID, checkpointID string) (*Checkpoint, bool, error) {
	if checkpointID == "" {
		return c.latest(threadID)
	}
	row := c.db.QueryRow(
		`SELECT checkpoint_id, thread_id, parent_id, created_at, state_payload, metadata
		 FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`, threadID, checkpointID)
	return scanCheckpointRow(row)
}

func (c *SQLiteCheckpointer) List(threadID string) ([]string, error) {
	rows, err := c.db.Query(
		`SELECT checkpoint_id FROM checkpoints WHERE thread_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *SQLiteCheckpointer) Delete(threadID, checkpointID string) error {
	res, err := c.db.Exec(`DELETE FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`, threadID, checkpointID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCheckpointNotFound
	}
	return nil
}

func scanCheckpointRow(row *sql.Row) (*Checkpoint, bool, error) {
	var (
		id, threadID string
		parentID     sql.NullString
		createdAt    time.Time
		stateJSON    string
		metaJSON     string
	)
	if err := row.Scan(&id, &threadID, &parentID, &createdAt, &stateJSON, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	var state State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, false, err
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
		return nil, false, err
	}

	return &Checkpoint{
		ID:           id,
		ThreadID:     threadID,
		ParentID:     parentID.String,
		CreatedAt:    createdAt,
		StatePayload: state,
		Metadata:     metadata,
	}, true, nil
}
