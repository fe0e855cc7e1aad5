package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLite is a KV stored in a single-table SQLite database file.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the cache database at path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	kv, err := cache.OpenSQLite(filepath.Join(stateDir, "cache.db"))
//	if err != nil {
//	    return err
//	}
//	defer kv.Close()
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	// The CLI and a running daemon may share this file.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	kv := &SQLite{conn: conn, path: path}

	const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := conn.Exec(schema); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return kv, nil
}

// Path returns the database file location.
func (kv *SQLite) Path() string {
	return kv.path
}

// Close checkpoints the WAL and closes the connection.
func (kv *SQLite) Close() error {
	if kv.conn == nil {
		return nil
	}
	if _, err := kv.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint cache WAL: %v\n", err)
	}
	if err := kv.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	kv.conn = nil
	return nil
}

// Get implements KV.
func (kv *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := kv.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, nil
}

// Set implements KV.
func (kv *SQLite) Set(ctx context.Context, key string, value []byte) error {
	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := kv.conn.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// Delete implements KV. Deleting an absent key is not an error.
func (kv *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := kv.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}
