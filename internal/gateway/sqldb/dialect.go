package sqldb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	// Postgres talks to PostgreSQL through lib/pq.
	Postgres Dialect = "postgres"
	// LibSQL talks to Turso / sqld, or a local libSQL file, through go-libsql.
	LibSQL Dialect = "libsql"
	// SQLite uses an embedded database file through ncruces/go-sqlite3.
	SQLite Dialect = "sqlite"
)

// ParseDialect accepts the configured driver name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "libsql", "turso":
		return LibSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported remote driver %q (want postgres, libsql or sqlite)", s)
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	switch d {
	case Postgres:
		return "postgres"
	case LibSQL:
		return "libsql"
	default:
		return "sqlite3"
	}
}

// dataSource turns the configured DSN into what the driver expects. SQLite
// connections all get a busy timeout, so pooled writers wait on the lock.
func (d Dialect) dataSource(dsn string) string {
	if d != SQLite {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if !strings.Contains(dsn, "busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	return dsn
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Timestamps are TEXT in the SQLite family, written with a fixed-width
// fraction so ORDER BY on the text matches time order.
const textTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (d Dialect) timeArg(t time.Time) any {
	if d == Postgres {
		return t.UTC()
	}
	return t.UTC().Format(textTimeLayout)
}

func (d Dialect) boolArg(b bool) any {
	if d == Postgres {
		return b
	}
	if b {
		return 1
	}
	return 0
}

// schemaStatements creates the tasks table with store-side timestamps.
func (d Dialect) schemaStatements() []string {
	if d == Postgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				assigned_to TEXT NOT NULL DEFAULT '',
				assigned_date TIMESTAMPTZ NOT NULL DEFAULT now(),
				due_date TIMESTAMPTZ,
				completed BOOLEAN NOT NULL DEFAULT FALSE,
				status TEXT NOT NULL DEFAULT 'not_started'
					CHECK (status IN ('not_started', 'in_progress', 'completed')),
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				created_by TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at DESC)`,
		}
	}

	const now = `(strftime('%Y-%m-%dT%H:%M:%f', 'now') || '000000Z')`
	return []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			assigned_to TEXT NOT NULL DEFAULT '',
			assigned_date TEXT NOT NULL DEFAULT ` + now + `,
			due_date TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'not_started'
				CHECK (status IN ('not_started', 'in_progress', 'completed')),
			created_at TEXT NOT NULL DEFAULT ` + now + `,
			updated_at TEXT NOT NULL DEFAULT ` + now + `,
			created_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at)`,
	}
}
