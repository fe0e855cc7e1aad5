// Package sqldb implements gateway.Backend over database/sql.
//
// Three dialects share one code path:
//   - postgres: PostgreSQL via lib/pq, TIMESTAMPTZ columns, $n placeholders
//   - libsql: Turso, sqld or a local libSQL file via go-libsql
//   - sqlite: an embedded file via ncruces/go-sqlite3 (tests, single-user setups)
//
// In the SQLite family timestamps are stored as fixed-width RFC 3339 TEXT and
// the store fills created_at and updated_at from its own clock on insert.
//
// Example:
//
//	db, err := sqldb.Open(ctx, sqldb.Config{Driver: "libsql", DSN: "libsql://tasks.turso.io?authToken=..."})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	g := gateway.NewWithBackend(db, nil)
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/fieldwork/tasksync/internal/gateway"
)

// Config selects and tunes the backend.
type Config struct {
	// Driver is postgres, libsql or sqlite.
	Driver string

	// DSN is the driver connection string; for sqlite, a file path.
	DSN string

	// AutoMigrate creates the tasks table if it is missing.
	AutoMigrate bool

	// MaxOpenConns caps the pool (default 10).
	MaxOpenConns int
}

// DB is a gateway.Backend on a SQL database.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

var _ gateway.Backend = (*DB)(nil)

const columns = `id, title, description, assigned_to, assigned_date, due_date, completed, status, created_at, updated_at, created_by`

// Open connects to the configured database. A missing driver or DSN, or an
// unknown driver, is reported as gateway.ErrNotConfigured.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.Driver) == "" || strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: remote.driver and remote.dsn are required", gateway.ErrNotConfigured)
	}
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrNotConfigured, err)
	}

	if dialect == SQLite {
		path, _, _ := strings.Cut(strings.TrimPrefix(cfg.DSN, "file:"), "?")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open(dialect.driverName(), dialect.dataSource(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", gateway.ErrNotConfigured, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, dialect: dialect}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.EnsureSchema(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return db, nil
}

// Dialect returns the backend's dialect.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// EnsureSchema creates the tasks table and its index if they do not exist.
// This is idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range db.dialect.schemaStatements() {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// List implements gateway.Backend.
func (db *DB) List(ctx context.Context) ([]gateway.Row, error) {
	query := `SELECT ` + columns + ` FROM tasks ORDER BY updated_at DESC, id ASC`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []gateway.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return out, nil
}

// Insert implements gateway.Backend.
func (db *DB) Insert(ctx context.Context, row gateway.Row) (gateway.Row, error) {
	query := db.dialect.rebind(`
	INSERT INTO tasks (id, title, description, assigned_to, assigned_date, due_date, completed, status, created_by)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING ` + columns)

	stored, err := scanRow(db.conn.QueryRowContext(ctx, query,
		row.ID,
		row.Title,
		row.Description,
		row.AssignedTo,
		db.dialect.timeArg(row.AssignedDate),
		db.nullTime(row.DueDate),
		db.dialect.boolArg(row.Completed),
		row.Status,
		row.CreatedBy,
	))
	if err != nil {
		return gateway.Row{}, fmt.Errorf("failed to insert task %s: %w", row.ID, err)
	}
	return stored, nil
}

// Update implements gateway.Backend.
func (db *DB) Update(ctx context.Context, id string, patch gateway.Patch) (gateway.Row, error) {
	assignments := patch.Assignments()
	sets := make([]string, 0, len(assignments))
	args := make([]any, 0, len(assignments)+1)
	for _, a := range assignments {
		sets = append(sets, a.Column+" = ?")
		args = append(args, db.arg(a.Value))
	}
	args = append(args, id)

	query := db.dialect.rebind(`UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + columns)
	stored, err := scanRow(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.Row{}, gateway.ErrNotFound
	}
	if err != nil {
		return gateway.Row{}, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return stored, nil
}

// Upsert implements gateway.Backend. created_at and created_by of an
// existing row are kept.
func (db *DB) Upsert(ctx context.Context, row gateway.Row) error {
	query := db.dialect.rebind(`
	INSERT INTO tasks (` + columns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		assigned_to = excluded.assigned_to,
		assigned_date = excluded.assigned_date,
		due_date = excluded.due_date,
		completed = excluded.completed,
		status = excluded.status,
		updated_at = excluded.updated_at
	`)

	_, err := db.conn.ExecContext(ctx, query,
		row.ID,
		row.Title,
		row.Description,
		row.AssignedTo,
		db.dialect.timeArg(row.AssignedDate),
		db.nullTime(row.DueDate),
		db.dialect.boolArg(row.Completed),
		row.Status,
		db.dialect.timeArg(row.CreatedAt),
		db.dialect.timeArg(row.UpdatedAt),
		row.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", row.ID, err)
	}
	return nil
}

// Delete implements gateway.Backend.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, db.dialect.rebind(`DELETE FROM tasks WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// Count returns the number of rows in the tasks table.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

func (db *DB) arg(v any) any {
	switch v := v.(type) {
	case time.Time:
		return db.dialect.timeArg(v)
	case bool:
		return db.dialect.boolArg(v)
	case nil:
		return nil
	default:
		return v
	}
}

func (db *DB) nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return db.dialect.timeArg(*t)
}
