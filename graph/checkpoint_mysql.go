package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLCheckpointer is a connection-pooled MySQL/MariaDB-backed
// Checkpointer, with a schema addressed by thread_id/checkpoint_id.
type MySQLCheckpointer struct {
	db  *sql.DB
	seq atomicCounter
}

// atomicCounter is a tiny monotonic sequence generator; the row's AUTO_INCREMENT
// id is the durable ordering key, this only disambiguates ids minted with the
// same nanosecond timestamp within one process.
type atomicCounter struct {
	n int64
}

func (c *atomicCounter) next() int64 {
	return atomic.AddInt64(&c.n, 1)
}

func NewMySQLCheckpointer(dsn string) (*MySQLCheckpointer, error) {
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

	c := &MySQLCheckpointer{db: db}
	if err := c.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return c, nil
}

func (c *MySQLCheckpointer) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS checkpoints (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			checkpoint_id VARCHAR(255) NOT NULL UNIQUE,
			thread_id VARCHAR(255) NOT NULL,
			parent_id VARCHAR(255),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			state_payload JSON NOT NULL,
			metadata JSON NOT NULL,
			INDEX idx_thread_seq (thread_id, seq)
		) ENGINE=InnoDB
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

func (c *MySQLCheckpointer) Close() error {
	return c.db.Close()
}

func (c *MySQLCheckpointer) Save(threadID string, state State, metadata map[string]any) (string, error) {
	id := fmt.Sprintf("%s-%d-%d", threadID, time.Now().UnixNano(), c.seq.next())

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
		`INSERT INTO checkpoints (checkpoint_id, thread_id, parent_id, state_payload, metadata) VALUES (?, ?, ?, ?, ?)`,
		id, threadID, parentID, string(stateJSON), string(metaJSON),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *MySQLCheckpointer) latest(threadID string) (*Checkpoint, bool, error) {
	row := c.db.QueryRow(
		`SELECT checkpoint_id, thread_id, parent_id, created_at, state_payload, metadata
		 FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID)
	return scanMySQLCheckpointRow(row)
}

func (c *MySQLCheckpointer) Load(threadID, checkpointID string) (*Checkpoint, bool, error) {
	if checkpointID == "" {
		return c.latest(threadID)
	}
	row := c.db.QueryRow(
		`SELECT checkpoint_id, thread_id, parent_id, created_at, state_payload, metadata
		 FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`, threadID, checkpointID)
	return scanMySQLCheckpointRow(row)
}

func (c *MySQLCheckpointer) List(threadID string) ([]string, error) {
	rows, err := c.db.Query(`SELECT checkpoint_id FROM checkpoints WHERE thread_id = ? ORDER BY seq ASC`, threadID)
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

func (c *MySQLCheckpointer) Delete(threadID, checkpointID string) error {
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

func scanMySQLCheckpointRow(row *sql.Row) (*Checkpoint, bool, error) {
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
