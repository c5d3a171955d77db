package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/tramites/internal/checksum"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS collections (
	key        TEXT PRIMARY KEY,
	data       TEXT NOT NULL DEFAULT '[]',
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite stores each collection as one JSON document row.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Load(ctx context.Context, key string) ([]json.RawMessage, error) {
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM collections WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load %s: %w", key, err)
	}
	out, err := decode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return out, nil
}

// Save upserts the collection row. Unchanged content is not rewritten.
func (s *SQLite) Save(ctx context.Context, key string, records []json.RawMessage) error {
	content, err := encode(records)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var current string
	err = tx.QueryRowContext(ctx, `SELECT checksum FROM collections WHERE key = ?`, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("storage: read checksum: %w", err)
	}
	if checksum.Equal(content, current) {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO collections (key, data, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data       = excluded.data,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, key, string(content), checksum.Sum(content), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: upsert %s: %w", key, err)
	}
	return tx.Commit()
}
