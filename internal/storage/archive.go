// Package storage provides the SQLite-backed reference Sink. Hosts may
// substitute any other Sink; the engine only sees the interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Record is one archived payload
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResultArchive persists tagged payloads (collection results, task
// outputs, rule store actions) to SQLite
type ResultArchive struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewResultArchive opens (or creates) the archive database
func NewResultArchive(logger *zap.Logger, dbPath string) (*ResultArchive, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	archive := &ResultArchive{
		logger: logger.Named("archive"),
		db:     db,
	}

	if err := archive.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return archive, nil
}

// initialize creates the necessary tables if they don't exist
func (a *ResultArchive) initialize() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS archive (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_archive_kind ON archive(kind);
		CREATE INDEX IF NOT EXISTS idx_archive_created_at ON archive(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements collab.Sink
func (a *ResultArchive) Store(ctx context.Context, kind string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO archive (id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		uuid.New().String(),
		kind,
		string(data),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

// List retrieves records of a kind, newest first. An empty kind matches
// every record.
func (a *ResultArchive) List(ctx context.Context, kind string, offset, limit int) ([]*Record, error) {
	query := "SELECT id, kind, payload, created_at FROM archive"
	args := make([]interface{}, 0, 3)
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record := &Record{}
		var payload string
		if err := rows.Scan(&record.ID, &record.Kind, &payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.Payload = json.RawMessage(payload)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count returns the number of records matching a kind (empty = all)
func (a *ResultArchive) Count(ctx context.Context, kind string) (int, error) {
	query := "SELECT COUNT(*) FROM archive"
	args := make([]interface{}, 0, 1)
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}

	var count int
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// DeleteBefore deletes records older than the specified time
func (a *ResultArchive) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := a.db.ExecContext(ctx, "DELETE FROM archive WHERE created_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	a.logger.Info("Deleted old archive records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (a *ResultArchive) Close() error {
	return a.db.Close()
}
