// Package journal keeps a local history of blob moves in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Method is how a move was carried out
type Method string

const (
	MethodRename Method = "rename"
	MethodCopy   Method = "copy"
)

// Status is the outcome of a move
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// MoveRecord represents a single move of a blob
type MoveRecord struct {
	ID        int64
	Source    string // external id
	Target    string // external id
	Method    Method
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Bytes     int64 // bytes copied, 0 for a rename
	Error     string
}

// Duration returns how long the move took
func (r MoveRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Journal persists move records
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// 單一連線避免 "database is locked"
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS moves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		method TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		bytes INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_moves_source ON moves(source, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_moves_target ON moves(target, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_moves_status ON moves(status);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Record stores a finished move
func (j *Journal) Record(ctx context.Context, record MoveRecord) error {
	if record.Status != StatusSuccess && record.Status != StatusFailed {
		return fmt.Errorf("invalid status: %s (must be 'success' or 'failed')", record.Status)
	}
	if record.Method != MethodRename && record.Method != MethodCopy {
		return fmt.Errorf("invalid method: %s (must be 'rename' or 'copy')", record.Method)
	}

	query := `
		INSERT INTO moves (source, target, method, start_time, end_time, status, bytes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		record.Source,
		record.Target,
		string(record.Method),
		record.StartTime,
		record.EndTime,
		string(record.Status),
		record.Bytes,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save move record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, source, target, method, start_time, end_time, status, bytes, error FROM moves`

// History returns the moves that touched a blob, as source or target, newest first
func (j *Journal) History(ctx context.Context, id string, limit int) ([]MoveRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return j.query(ctx, selectColumns+` WHERE source = ? OR target = ? ORDER BY start_time DESC, id DESC LIMIT ?`, id, id, limit)
}

// Recent returns the latest moves of any blob
func (j *Journal) Recent(ctx context.Context, limit int) ([]MoveRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return j.query(ctx, selectColumns+` ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
}

// Failed returns the latest failed moves
func (j *Journal) Failed(ctx context.Context, limit int) ([]MoveRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return j.query(ctx, selectColumns+` WHERE status = 'failed' ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]MoveRecord, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query moves: %w", err)
	}
	defer rows.Close()

	var records []MoveRecord
	for rows.Next() {
		var (
			record         MoveRecord
			method, status string
			errText        sql.NullString
		)
		err := rows.Scan(
			&record.ID,
			&record.Source,
			&record.Target,
			&method,
			&record.StartTime,
			&record.EndTime,
			&status,
			&record.Bytes,
			&errText,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.Method = Method(method)
		record.Status = Status(status)
		record.Error = errText.String
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
